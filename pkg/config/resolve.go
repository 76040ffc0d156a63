package config

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/projectmill/pkg/tree"
)

// 📂 Resolve anchors every project under root. Projects whose source is not
// a visible entry of <root>/project are dropped with a warning. Sources and
// destinations in the returned set are absolute.
func Resolve(ctx context.Context, set *Set, root string, opts ...tree.Option) (*Set, error) {
	logger := zerolog.Ctx(ctx)

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Errorf("resolving project root: %w", err)
	}
	out := &Set{Root: abs}

	names, err := tree.ListDir(ctx, out.ProjectDir(), opts...)
	if err != nil {
		return nil, errors.Errorf("listing projects: %w", err)
	}
	available := make(map[string]bool, len(names))
	for _, n := range names {
		available[n] = true
	}

	for _, p := range set.Projects {
		if !available[p.Source] {
			logger.Warn().Str("project", p.ID).Str("source", p.Source).Msg("source project doesn't exist")
			continue
		}
		p.Source = filepath.Join(out.ProjectDir(), p.Source)
		p.Destination = filepath.Join(out.ProjectDir(), p.Destination)
		out.Projects = append(out.Projects, p)
	}
	return out, nil
}
