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

	"gitlab.com/tozd/go/errors"
)

// 📋 CopyFile streams src into dst and returns the number of bytes written.
// It only returns once dst is flushed and closed. A failed copy may leave a
// partial dst behind.
func CopyFile(ctx context.Context, src, dst string, opts ...Option) (n int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	o := newOptions(opts)

	out, err := o.fsys.Create(dst)
	if err != nil {
		return 0, errors.Errorf("creating destination file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = errors.Errorf("closing destination file: %w", cerr)
		}
	}()

	in, err := o.fsys.Open(src)
	if err != nil {
		return 0, errors.Errorf("opening source file: %w", err)
	}
	defer in.Close()

	n, err = io.Copy(out, in)
	if err != nil {
		return n, errors.Errorf("copying file content: %w", err)
	}

	if err := out.Sync(); err != nil {
		return n, errors.Errorf("flushing destination file: %w", err)
	}

	return n, nil
}

// ReadFile returns the whole content of path
func ReadFile(ctx context.Context, path string, opts ...Option) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := newOptions(opts)

	f, err := o.fsys.Open(path)
	if err != nil {
		return nil, errors.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// WriteFile creates or truncates path and writes data to it
func WriteFile(ctx context.Context, path string, data []byte, opts ...Option) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	o := newOptions(opts)

	f, err := o.fsys.Create(path)
	if err != nil {
		return errors.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Errorf("closing %s: %w", path, cerr)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return errors.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// 🔗 Symlink creates dst as a link pointing at target. The link text is
// kept as is, relative targets stay relative.
func Symlink(ctx context.Context, target, dst string, opts ...Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o := newOptions(opts)
	if err := o.fsys.Symlink(target, dst); err != nil {
		return errors.Errorf("creating symlink: %w", err)
	}
	return nil
}
