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

// Package mill copies a source project into its destination, rewriting the
// project document and stylesheets on the way.
package mill

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/walteh/projectmill/pkg/config"
	"github.com/walteh/projectmill/pkg/log"
	"github.com/walteh/projectmill/pkg/serial"
	"github.com/walteh/projectmill/pkg/status"
	"github.com/walteh/projectmill/pkg/transform"
	"github.com/walteh/projectmill/pkg/tree"
)

// ErrSkip marks a soft failure: the work is skipped, logged, and siblings
// carry on
var ErrSkip = errors.Base("skipping")

// 🙋 Confirmer asks the user a yes/no question
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(ctx context.Context, question string) (bool, error)

// Confirm calls f
func (f ConfirmFunc) Confirm(ctx context.Context, question string) (bool, error) {
	return f(ctx, question)
}

// ⚙️ Options controls a Miller
type Options struct {
	// Force replaces existing destinations without asking
	Force bool
	// Parallel mills up to this many projects at once; 0 or 1 is serial
	Parallel int
	// Confirmer is asked before replacing an existing destination
	Confirmer Confirmer
	// Tree is passed to every tree helper
	Tree []tree.Option
}

// 🏭 Miller mills projects
type Miller struct {
	opts Options
	// asking serialises prompts when projects run in parallel
	asking sync.Mutex
}

// New creates a Miller
func New(opts Options) *Miller {
	return &Miller{opts: opts}
}

// Triage logs and absorbs a soft failure. Hard failures are returned.
func Triage(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSkip) {
		log.FromContext(ctx).Warning(err.Error())
		zerolog.Ctx(ctx).Debug().Err(err).Msg("soft failure absorbed")
		return nil
	}
	return err
}

// Confirm asks c, or answers with force when c is nil. Prompts are never
// shown concurrently.
func (m *Miller) Confirm(ctx context.Context, question string) (bool, error) {
	if m.opts.Force {
		return true, nil
	}
	if m.opts.Confirmer == nil {
		return false, nil
	}
	m.asking.Lock()
	defer m.asking.Unlock()
	ok, err := m.opts.Confirmer.Confirm(ctx, question)
	if err != nil {
		return false, errors.Errorf("asking for confirmation: %w", err)
	}
	return ok, nil
}

// 🗺️ Mill runs the pipeline of one project: check the destination, replace
// it or skip, walk the source, then write every entry
func (m *Miller) Mill(ctx context.Context, p config.Project) error {
	_, err := m.mill(ctx, p)
	return err
}

func (m *Miller) mill(ctx context.Context, p config.Project) (int, error) {
	plog := log.FromContext(ctx).StartProject(ctx, log.ProjectOperation{
		ID:          p.ID,
		Action:      "mill",
		Source:      p.Source,
		Destination: p.Destination,
	})
	ctx = log.NewContext(ctx, plog)
	defer plog.EndProject(ctx)

	res := serial.Run(ctx,
		serial.Do(func(ctx context.Context) error {
			return m.prepareDestination(ctx, p)
		}),
		serial.Then(func(ctx context.Context, _ any) (any, error) {
			opts := append([]tree.Option{tree.WithIgnore(p.Ignore...)}, m.opts.Tree...)
			listing, err := tree.Walk(ctx, p.Source, opts...)
			if err != nil {
				return nil, errors.Errorf("walking source: %w", err)
			}
			listing.Sort()
			return listing, nil
		}),
		serial.Then(func(ctx context.Context, v any) (any, error) {
			return m.writeEntries(ctx, p, v.(*tree.Listing))
		}),
	)
	if res.Err != nil {
		return 0, res.Err
	}
	return res.Value.(int), nil
}

// prepareDestination is the CHECK_DEST state: a missing destination
// proceeds, an existing one is removed when replacing is allowed and
// skipped otherwise
func (m *Miller) prepareDestination(ctx context.Context, p config.Project) error {
	exists, err := tree.Exists(ctx, p.Destination, m.opts.Tree...)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	replace, err := m.Confirm(ctx, fmt.Sprintf("Project %s already exists. Re-mill?", p.ID))
	if err != nil {
		return err
	}
	if !replace {
		return errors.Errorf("%w project %s: destination already exists", ErrSkip, p.ID)
	}

	log.FromContext(ctx).LogFileOperation(ctx, log.FileOperation{Path: p.Destination, Kind: log.OpRemove})
	if err := tree.RemoveTree(ctx, p.Destination, m.opts.Tree...); err != nil {
		return errors.Errorf("removing project %s: %w", p.ID, err)
	}
	return nil
}

// writeEntries materialises a listing under the destination, one serial
// step per entry. It returns the number of entries written.
func (m *Miller) writeEntries(ctx context.Context, p config.Project, listing *tree.Listing) (int, error) {
	steps := make([]serial.Step, 0, len(listing.Files))
	for _, e := range listing.Files {
		e := e
		steps = append(steps, serial.Do(func(ctx context.Context) error {
			return m.writeEntry(ctx, p, e)
		}))
	}
	if res := serial.Run(ctx, steps...); res.Err != nil {
		return 0, res.Err
	}
	return len(listing.Files), nil
}

// DestinationPath maps a source-relative path to its destination. Project
// documents other than project.mml are named after the project, since the
// renderer looks a project up by its directory name.
func DestinationPath(p config.Project, rel string) string {
	if filepath.Ext(rel) == ".mml" && rel != "project.mml" {
		return filepath.Join(p.Destination, p.ID+".mml")
	}
	return filepath.Join(p.Destination, rel)
}

func (m *Miller) writeEntry(ctx context.Context, p config.Project, e tree.Entry) error {
	logger := log.FromContext(ctx)
	src := filepath.Join(p.Source, e.Path)
	dst := DestinationPath(p, e.Path)
	rel, err := filepath.Rel(p.Destination, dst)
	if err != nil {
		rel = dst
	}

	dir := filepath.Dir(dst)
	created, err := tree.EnsureDir(ctx, dir, m.opts.Tree...)
	if err != nil {
		return errors.Errorf("creating directory for %s: %w", e.Path, err)
	}
	if created {
		dirRel, _ := filepath.Rel(p.Destination, dir)
		logger.LogFileOperation(ctx, log.FileOperation{Path: dirRel, Kind: log.OpMkdir})
	}

	ext := filepath.Ext(e.Path)
	switch {
	case e.IsSymlink():
		if err := tree.Symlink(ctx, e.LinkTarget, dst, m.opts.Tree...); err != nil {
			return err
		}
		logger.LogFileOperation(ctx, log.FileOperation{Path: rel, Kind: log.OpLink, Detail: e.LinkTarget})
	case ext == ".mml" && p.MML != nil:
		changes, err := m.transformFile(ctx, src, dst, transform.NewMMLTransformer(p.MML))
		if err != nil {
			return err
		}
		logger.LogFileOperation(ctx, log.FileOperation{Path: rel, Kind: log.OpMML, Changes: changes})
	case ext == ".mss" && p.CartoVars != nil:
		changes, err := m.transformFile(ctx, src, dst, transform.NewMSSTransformer(p.CartoVars))
		if err != nil {
			return err
		}
		logger.LogFileOperation(ctx, log.FileOperation{Path: rel, Kind: log.OpMSS, Changes: changes})
	default:
		if _, err := tree.CopyFile(ctx, src, dst, m.opts.Tree...); err != nil {
			return errors.Errorf("copying %s: %w", e.Path, err)
		}
		logger.LogFileOperation(ctx, log.FileOperation{Path: rel, Kind: log.OpCopy})
	}
	return nil
}

func (m *Miller) transformFile(ctx context.Context, src, dst string, t transform.Transformer) (int, error) {
	content, err := tree.ReadFile(ctx, src, m.opts.Tree...)
	if err != nil {
		return 0, err
	}
	res, err := t.Transform(ctx, content)
	if err != nil {
		return 0, errors.Errorf("transforming %s: %w", src, err)
	}
	if err := tree.WriteFile(ctx, dst, res.Content, m.opts.Tree...); err != nil {
		return 0, err
	}
	return res.Changes, nil
}

// 🏭 MillAll mills every project and records each outcome in report (a new
// report when nil). Projects are independent: a skip or failure never stops
// the others.
func (m *Miller) MillAll(ctx context.Context, projects []config.Project, report *status.Report) *status.Report {
	if report == nil {
		report = status.NewReport()
	}

	run := func(ctx context.Context, p config.Project) {
		files, err := m.mill(ctx, p)
		Record(ctx, report, p.ID, status.StageMill, err)
		if err == nil {
			report.Set(p.ID, status.StageMill, status.StageResult{Outcome: status.Done, Files: files})
		}
	}

	if m.opts.Parallel <= 1 {
		for _, p := range projects {
			run(ctx, p)
		}
		return report
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Parallel)
	for _, p := range projects {
		p := p
		g.Go(func() error {
			run(gctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return report
}

// Record triages err and stores the outcome of a stage
func Record(ctx context.Context, report *status.Report, id string, stage status.Stage, err error) {
	switch {
	case err == nil:
		report.Record(id, stage, status.Done, nil)
	case Triage(ctx, err) == nil:
		report.Skip(id, stage, err.Error())
	default:
		log.FromContext(ctx).Errorf("%s %s: %v", stage, id, err)
		zerolog.Ctx(ctx).Error().Err(err).Str("project", id).Str("stage", stage.String()).Msg("project failed")
		report.Fail(id, stage, err)
	}
}
