// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tree

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/projectmill/pkg/serial"
	"gitlab.com/tozd/go/errors"
)

// 🗑️ Removal is one step of a removal plan
type Removal struct {
	Path string
	Dir  bool
}

// RemovalPlan orders the deletion of a walked tree: every file first, then
// every directory deepest first, then root itself.
func RemovalPlan(root string, listing *Listing) []Removal {
	plan := make([]Removal, 0, len(listing.Files)+len(listing.Dirs)+1)
	for _, f := range listing.Files {
		plan = append(plan, Removal{Path: filepath.Join(root, f.Path)})
	}

	// discovery order already puts parents before children; reversing it
	// and then sorting by depth keeps siblings in a stable order
	dirs := make([]string, len(listing.Dirs))
	for i, d := range listing.Dirs {
		dirs[len(dirs)-1-i] = d
	}
	sort.SliceStable(dirs, func(i, j int) bool {
		return depth(dirs[i]) > depth(dirs[j])
	})
	for _, d := range dirs {
		plan = append(plan, Removal{Path: filepath.Join(root, d), Dir: true})
	}

	return append(plan, Removal{Path: filepath.Clean(root), Dir: true})
}

func depth(rel string) int {
	return strings.Count(filepath.ToSlash(rel), "/")
}

// 🧹 RemoveTree deletes root and everything below it, hidden entries
// included. The first failed unlink or rmdir stops the remaining deletions
// and is returned. A symlinked root is unlinked; its target is left alone.
func RemoveTree(ctx context.Context, root string, opts ...Option) error {
	o := newOptions(opts)
	o.hidden = true
	o.dirs = true
	o.ignore = nil

	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := o.fsys.Lstat(root)
	if err != nil {
		return errors.Errorf("checking tree root: %w", err)
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		zerolog.Ctx(ctx).Debug().Str("root", root).Msg("root is a symlink, unlinking it")
		if err := o.fsys.Remove(root); err != nil {
			return errors.Errorf("removing symlink %s: %w", root, err)
		}
		return nil
	}

	listing, err := walk(ctx, root, o)
	if err != nil {
		return errors.Errorf("listing tree for removal: %w", err)
	}

	plan := RemovalPlan(root, listing)
	steps := make([]serial.Step, 0, len(plan))
	for _, r := range plan {
		r := r
		steps = append(steps, serial.Do(func(ctx context.Context) error {
			zerolog.Ctx(ctx).Trace().Str("path", r.Path).Bool("dir", r.Dir).Msg("removing")
			if err := o.fsys.Remove(r.Path); err != nil {
				if r.Dir {
					return errors.Errorf("removing directory %s: %w", r.Path, err)
				}
				return errors.Errorf("removing file %s: %w", r.Path, err)
			}
			return nil
		}))
	}

	if res := serial.Run(ctx, steps...); res.Err != nil {
		return res.Err
	}

	zerolog.Ctx(ctx).Debug().Str("root", root).Int("removed", len(plan)).Msg("tree removed")
	return nil
}
