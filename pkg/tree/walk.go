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
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// 📄 Entry is a file found by Walk. Path is relative to the walk root.
// LinkTarget holds the link text when the entry is a symbolic link.
type Entry struct {
	Path       string
	LinkTarget string
}

// IsSymlink reports whether the entry is a symbolic link
func (e Entry) IsSymlink() bool {
	return e.LinkTarget != ""
}

// 📋 Listing is the outcome of a walk. Order follows completion order
// unless Sort is called, except that a directory always appears in Dirs
// after its parent.
type Listing struct {
	Files []Entry
	Dirs  []string
	// Skipped counts entries dropped because of a filesystem error
	Skipped int
}

// Sort orders files and directories by path
func (l *Listing) Sort() {
	sort.Slice(l.Files, func(i, j int) bool { return l.Files[i].Path < l.Files[j].Path })
	sort.Strings(l.Dirs)
}

// Paths returns the relative paths of all files
func (l *Listing) Paths() []string {
	out := make([]string, 0, len(l.Files))
	for _, f := range l.Files {
		out = append(out, f.Path)
	}
	return out
}

type walker struct {
	root string
	opts options
	sem  *semaphore.Weighted
	grp  *errgroup.Group

	mu      sync.Mutex
	listing Listing

	visited atomic.Int64
	skipped atomic.Int64
}

// 🚶 Walk lists every regular file and symbolic link below root.
//
// Siblings are visited concurrently. A failure to read root itself is
// returned; any failure below it is logged and the entry is skipped so one
// bad entry does not lose the rest of the scan. Links are recorded, not
// followed.
func Walk(ctx context.Context, root string, opts ...Option) (*Listing, error) {
	return walk(ctx, root, newOptions(opts))
}

func walk(ctx context.Context, root string, o options) (*Listing, error) {
	logger := zerolog.Ctx(ctx)

	w := &walker{
		root: filepath.Clean(root),
		opts: o,
		sem:  semaphore.NewWeighted(o.concurrency),
	}

	entries, err := w.readDir(ctx, w.root)
	if err != nil {
		return nil, errors.Errorf("reading directory %s: %w", w.root, err)
	}

	grp, gctx := errgroup.WithContext(ctx)
	w.grp = grp
	w.fanOut(gctx, "", entries)

	if err := grp.Wait(); err != nil {
		return nil, errors.Errorf("walking %s: %w", w.root, err)
	}

	w.listing.Skipped = int(w.skipped.Load())
	logger.Debug().
		Str("root", w.root).
		Int64("visited", w.visited.Load()).
		Int("files", len(w.listing.Files)).
		Int("dirs", len(w.listing.Dirs)).
		Int("skipped", w.listing.Skipped).
		Msg("walk complete")

	return &w.listing, nil
}

// fanOut schedules one visit per child. It must be called from within the
// group (or before Wait) so the group never drains while work remains.
func (w *walker) fanOut(ctx context.Context, base string, entries []fs.DirEntry) {
	for _, e := range entries {
		name := e.Name()
		if !w.opts.hidden && strings.HasPrefix(name, ".") {
			continue
		}
		rel := filepath.Join(base, name)
		if w.ignored(ctx, rel) {
			continue
		}
		w.grp.Go(func() error {
			return w.visit(ctx, rel)
		})
	}
}

func (w *walker) visit(ctx context.Context, rel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.visited.Add(1)

	full := filepath.Join(w.root, rel)
	info, err := w.lstat(ctx, full)
	if err != nil {
		return w.soft(ctx, rel, "lstat", err)
	}

	mode := info.Mode()
	switch {
	case mode.IsDir():
		entries, err := w.readDir(ctx, full)
		if err != nil {
			return w.soft(ctx, rel, "readdir", err)
		}
		if w.opts.dirs {
			w.mu.Lock()
			w.listing.Dirs = append(w.listing.Dirs, rel)
			w.mu.Unlock()
		}
		w.fanOut(ctx, rel, entries)
	case mode.IsRegular():
		w.add(Entry{Path: rel})
	case mode&fs.ModeSymlink != 0:
		target, err := w.readlink(ctx, full)
		if err != nil {
			return w.soft(ctx, rel, "readlink", err)
		}
		w.add(Entry{Path: rel, LinkTarget: target})
	default:
		zerolog.Ctx(ctx).Debug().Str("path", rel).Str("mode", mode.String()).Msg("skipping special file")
	}
	return nil
}

func (w *walker) add(e Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listing.Files = append(w.listing.Files, e)
}

// soft logs a per-entry failure and keeps the walk going. Context errors
// are still returned so cancellation stops the walk.
func (w *walker) soft(ctx context.Context, rel, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	w.skipped.Add(1)
	zerolog.Ctx(ctx).Warn().Err(err).Str("path", rel).Str("op", op).Msg("skipping entry")
	return nil
}

func (w *walker) ignored(ctx context.Context, rel string) bool {
	slashed := filepath.ToSlash(rel)
	for _, pattern := range w.opts.ignore {
		matched, err := doublestar.Match(pattern, slashed)
		if err != nil {
			zerolog.Ctx(ctx).Debug().Str("pattern", pattern).Err(err).Msg("bad ignore pattern")
			continue
		}
		if matched {
			zerolog.Ctx(ctx).Debug().Str("path", rel).Str("pattern", pattern).Msg("ignored by pattern")
			return true
		}
	}
	return false
}

func (w *walker) readDir(ctx context.Context, name string) ([]fs.DirEntry, error) {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer w.sem.Release(1)
	return w.opts.fsys.ReadDir(name)
}

func (w *walker) lstat(ctx context.Context, name string) (fs.FileInfo, error) {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer w.sem.Release(1)
	return w.opts.fsys.Lstat(name)
}

func (w *walker) readlink(ctx context.Context, name string) (string, error) {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer w.sem.Release(1)
	return w.opts.fsys.Readlink(name)
}
