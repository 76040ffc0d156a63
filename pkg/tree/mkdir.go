package tree

import (
	"context"
	"io/fs"
	"path/filepath"

	"gitlab.com/tozd/go/errors"
)

// ErrRelativePath is returned by EnsureDir for a path that is not absolute
var ErrRelativePath = errors.Base("relative path")

// 📁 EnsureDir makes sure path and all of its parents exist. It reports
// whether anything had to be created. path must be absolute.
func EnsureDir(ctx context.Context, path string, opts ...Option) (bool, error) {
	if !filepath.IsAbs(path) {
		return false, errors.Errorf("%w: %s", ErrRelativePath, path)
	}
	o := newOptions(opts)
	return ensureDir(ctx, o.fsys, filepath.Clean(path))
}

func ensureDir(ctx context.Context, fsys FS, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if info, err := fsys.Stat(path); err == nil {
		if !info.IsDir() {
			return false, errors.Errorf("%s exists and is not a directory", path)
		}
		return false, nil
	}

	if parent := filepath.Dir(path); parent != path {
		if _, err := ensureDir(ctx, fsys, parent); err != nil {
			return false, err
		}
	}

	// someone else may have created it since the stat
	if err := fsys.Mkdir(path, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, errors.Errorf("creating directory %s: %w", path, err)
	}
	return true, nil
}
