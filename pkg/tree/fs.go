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
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// 💾 FS is the set of filesystem calls the tree helpers make.
// Paths are native OS paths.
type FS interface {
	ReadDir(name string) ([]fs.DirEntry, error)
	Lstat(name string) (fs.FileInfo, error)
	Stat(name string) (fs.FileInfo, error)
	Readlink(name string) (string, error)
	Mkdir(name string, perm fs.FileMode) error
	Remove(name string) error
	Open(name string) (io.ReadCloser, error)
	Create(name string) (File, error)
	Symlink(target, name string) error
}

// File is a file opened for writing
type File interface {
	io.WriteCloser
	Sync() error
}

// OSFS implements FS with the os package
type OSFS struct{}

func (OSFS) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }
func (OSFS) Lstat(name string) (fs.FileInfo, error)     { return os.Lstat(name) }
func (OSFS) Stat(name string) (fs.FileInfo, error)      { return os.Stat(name) }
func (OSFS) Readlink(name string) (string, error)       { return os.Readlink(name) }
func (OSFS) Mkdir(name string, perm fs.FileMode) error  { return os.Mkdir(name, perm) }
func (OSFS) Remove(name string) error                   { return os.Remove(name) }
func (OSFS) Open(name string) (io.ReadCloser, error)    { return os.Open(name) }
func (OSFS) Create(name string) (File, error)           { return os.Create(name) }
func (OSFS) Symlink(target, name string) error          { return os.Symlink(target, name) }

const defaultConcurrency = 64

// Option configures the tree helpers
type Option func(*options)

type options struct {
	fsys        FS
	hidden      bool
	dirs        bool
	ignore      []string
	concurrency int64
}

func newOptions(opts []Option) options {
	o := options{
		fsys:        OSFS{},
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithFS swaps the filesystem implementation
func WithFS(fsys FS) Option {
	return func(o *options) { o.fsys = fsys }
}

// WithHidden includes entries whose name starts with a dot
func WithHidden(hidden bool) Option {
	return func(o *options) { o.hidden = hidden }
}

// WithDirs records visited directories in Listing.Dirs
func WithDirs(dirs bool) Option {
	return func(o *options) { o.dirs = dirs }
}

// WithIgnore skips entries whose relative slash path matches one of the
// doublestar patterns. A matching directory is not descended into.
func WithIgnore(patterns ...string) Option {
	return func(o *options) { o.ignore = append(o.ignore, patterns...) }
}

// WithConcurrency bounds the number of filesystem calls in flight during a walk
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = int64(n)
		}
	}
}

// ListDir returns the sorted names in dir, without hidden entries unless
// WithHidden is given
func ListDir(ctx context.Context, dir string, opts ...Option) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	entries, err := o.fsys.ReadDir(dir)
	if err != nil {
		return nil, errors.Errorf("reading directory %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !o.hidden && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether path exists without following a final symlink
func Exists(ctx context.Context, path string, opts ...Option) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	o := newOptions(opts)
	_, err := o.fsys.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, errors.Errorf("checking %s: %w", path, err)
	}
}
