package tree

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func setupTestLogger(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}

// writeTree creates files below root; a trailing slash creates an empty dir
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if strings.HasSuffix(rel, "/") {
			require.NoError(t, os.MkdirAll(p, 0o755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// faultyFS fails selected calls and records removals
type faultyFS struct {
	OSFS
	failLstat  string
	failRemove string
	failCreate string

	mu      sync.Mutex
	removed []string
	calls   int
}

func (f *faultyFS) Lstat(name string) (fs.FileInfo, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.failLstat != "" && strings.HasSuffix(name, f.failLstat) {
		return nil, errors.New("lstat exploded")
	}
	return f.OSFS.Lstat(name)
}

func (f *faultyFS) Stat(name string) (fs.FileInfo, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.OSFS.Stat(name)
}

func (f *faultyFS) Create(name string) (File, error) {
	if f.failCreate != "" && strings.HasSuffix(name, f.failCreate) {
		return nil, errors.New("create exploded")
	}
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.OSFS.Create(name)
}

func (f *faultyFS) Remove(name string) error {
	if f.failRemove != "" && strings.HasSuffix(name, f.failRemove) {
		return errors.New("remove exploded")
	}
	f.mu.Lock()
	f.removed = append(f.removed, name)
	f.mu.Unlock()
	return f.OSFS.Remove(name)
}

func TestWalk(t *testing.T) {
	ctx := setupTestLogger(t)

	t.Run("lists_files_recursively", func(t *testing.T) {
		root := t.TempDir()
		writeTree(t, root, map[string]string{
			"project.mml":        "{}",
			"style.mss":          "@a: 1;",
			"layers/roads.mss":   "",
			"layers/deep/x.json": "",
			"empty/":             "",
		})

		listing, err := Walk(ctx, root)
		require.NoError(t, err)
		listing.Sort()

		assert.Equal(t, []string{
			filepath.Join("layers", "deep", "x.json"),
			filepath.Join("layers", "roads.mss"),
			"project.mml",
			"style.mss",
		}, listing.Paths())
		assert.Empty(t, listing.Dirs, "dirs are only recorded on request")
		assert.Zero(t, listing.Skipped)
	})

	t.Run("records_dirs_parents_first", func(t *testing.T) {
		root := t.TempDir()
		writeTree(t, root, map[string]string{
			"a/b/c/file.txt": "x",
			"a/d/":           "",
		})

		listing, err := Walk(ctx, root, WithDirs(true))
		require.NoError(t, err)

		index := map[string]int{}
		for i, d := range listing.Dirs {
			index[d] = i
		}
		require.Len(t, index, 4)
		assert.Less(t, index["a"], index[filepath.Join("a", "b")])
		assert.Less(t, index[filepath.Join("a", "b")], index[filepath.Join("a", "b", "c")])
		assert.Less(t, index["a"], index[filepath.Join("a", "d")])
	})

	t.Run("skips_hidden_unless_requested", func(t *testing.T) {
		root := t.TempDir()
		writeTree(t, root, map[string]string{
			".git/config":  "",
			".hidden":      "",
			"visible.txt":  "",
			"sub/.secret":  "",
			"sub/open.txt": "",
		})

		listing, err := Walk(ctx, root)
		require.NoError(t, err)
		listing.Sort()
		assert.Equal(t, []string{filepath.Join("sub", "open.txt"), "visible.txt"}, listing.Paths())

		listing, err = Walk(ctx, root, WithHidden(true))
		require.NoError(t, err)
		assert.Len(t, listing.Files, 5)
	})

	t.Run("records_symlinks_without_following", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("symlinks need privileges on windows")
		}
		root := t.TempDir()
		outside := t.TempDir()
		writeTree(t, outside, map[string]string{"big/data.shp": "x"})
		writeTree(t, root, map[string]string{"style.mss": ""})
		require.NoError(t, os.Symlink(filepath.Join(outside, "big"), filepath.Join(root, "layers")))
		require.NoError(t, os.Symlink("style.mss", filepath.Join(root, "alias.mss")))

		listing, err := Walk(ctx, root)
		require.NoError(t, err)
		listing.Sort()

		require.Len(t, listing.Files, 3)
		assert.Equal(t, Entry{Path: "alias.mss", LinkTarget: "style.mss"}, listing.Files[0])
		assert.Equal(t, Entry{Path: "layers", LinkTarget: filepath.Join(outside, "big")}, listing.Files[1])
		assert.True(t, listing.Files[1].IsSymlink())
		assert.False(t, listing.Files[2].IsSymlink())
	})

	t.Run("ignore_patterns", func(t *testing.T) {
		root := t.TempDir()
		writeTree(t, root, map[string]string{
			"style.mss":           "",
			"cache/tile.png":      "",
			"layers/a.shp":        "",
			"layers/a.shp.backup": "",
		})

		listing, err := Walk(ctx, root, WithIgnore("cache", "**/*.backup"))
		require.NoError(t, err)
		listing.Sort()
		assert.Equal(t, []string{filepath.Join("layers", "a.shp"), "style.mss"}, listing.Paths())
	})

	t.Run("entry_failure_is_soft", func(t *testing.T) {
		root := t.TempDir()
		writeTree(t, root, map[string]string{
			"good.txt":     "",
			"bad.txt":      "",
			"sub/fine.txt": "",
		})

		listing, err := Walk(ctx, root, WithFS(&faultyFS{failLstat: "bad.txt"}))
		require.NoError(t, err)
		listing.Sort()
		assert.Equal(t, []string{"good.txt", filepath.Join("sub", "fine.txt")}, listing.Paths())
		assert.Equal(t, 1, listing.Skipped)
	})

	t.Run("root_failure_is_fatal", func(t *testing.T) {
		_, err := Walk(ctx, filepath.Join(t.TempDir(), "missing"))
		require.Error(t, err)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("cancelled_context", func(t *testing.T) {
		root := t.TempDir()
		writeTree(t, root, map[string]string{"a.txt": ""})
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Walk(cctx, root)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("walk_then_copy_reproduces_tree", func(t *testing.T) {
		src := t.TempDir()
		files := map[string]string{
			"a.txt":         "alpha",
			"b/c.txt":       "charlie",
			"b/d/e.txt":     "echo",
			"f/g/h/i/j.txt": "juliet",
		}
		for i := 0; i < 40; i++ {
			files[filepath.ToSlash(filepath.Join("wide", strings.Repeat("w", i%5+1), string(rune('a'+i%26))+".txt"))] = "w"
		}
		writeTree(t, src, files)

		listing, err := Walk(ctx, src, WithConcurrency(3))
		require.NoError(t, err)

		dst := filepath.Join(t.TempDir(), "copy")
		for _, f := range listing.Files {
			target := filepath.Join(dst, f.Path)
			_, err := EnsureDir(ctx, filepath.Dir(target))
			require.NoError(t, err)
			_, err = CopyFile(ctx, filepath.Join(src, f.Path), target)
			require.NoError(t, err)
		}

		for rel, content := range files {
			got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(rel)))
			require.NoError(t, err, rel)
			assert.Equal(t, content, string(got), rel)
		}

		again, err := Walk(ctx, dst)
		require.NoError(t, err)
		assert.Len(t, again.Files, len(files))
	})
}

func TestRemovalPlan(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "tmp", "proj")
	listing := &Listing{
		Files: []Entry{{Path: filepath.Join("a", "b", "file.txt")}},
		Dirs:  []string{"a", filepath.Join("a", "b"), filepath.Join("a", "c")},
	}

	plan := RemovalPlan(root, listing)

	assert.Equal(t, []Removal{
		{Path: filepath.Join(root, "a", "b", "file.txt")},
		{Path: filepath.Join(root, "a", "c"), Dir: true},
		{Path: filepath.Join(root, "a", "b"), Dir: true},
		{Path: filepath.Join(root, "a"), Dir: true},
		{Path: root, Dir: true},
	}, plan)
}

func TestRemoveTree(t *testing.T) {
	ctx := setupTestLogger(t)

	t.Run("removes_children_before_parents", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "victim")
		writeTree(t, root, map[string]string{
			"a/b/file.txt": "x",
			"a/c/":         "",
			".hidden/x":    "",
		})

		fsys := &faultyFS{}
		require.NoError(t, RemoveTree(ctx, root, WithFS(fsys)))

		_, err := os.Stat(root)
		assert.ErrorIs(t, err, fs.ErrNotExist)

		pos := map[string]int{}
		for i, p := range fsys.removed {
			pos[p] = i
		}
		file := filepath.Join(root, "a", "b", "file.txt")
		assert.Less(t, pos[file], pos[filepath.Join(root, "a", "b")])
		assert.Less(t, pos[filepath.Join(root, "a", "b")], pos[filepath.Join(root, "a")])
		assert.Less(t, pos[filepath.Join(root, "a", "c")], pos[filepath.Join(root, "a")])
		assert.Equal(t, root, fsys.removed[len(fsys.removed)-1])
	})

	t.Run("removes_symlinks_not_targets", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("symlinks need privileges on windows")
		}
		outside := t.TempDir()
		writeTree(t, outside, map[string]string{"keep.txt": "keep"})
		root := filepath.Join(t.TempDir(), "victim")
		writeTree(t, root, map[string]string{"x.txt": ""})
		require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

		require.NoError(t, RemoveTree(ctx, root))

		_, err := os.Stat(filepath.Join(outside, "keep.txt"))
		assert.NoError(t, err)
	})

	t.Run("removes_symlinked_root_not_target", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("symlinks need privileges on windows")
		}
		outside := t.TempDir()
		writeTree(t, outside, map[string]string{
			"keep.txt":     "keep",
			"sub/deep.txt": "deep",
		})
		root := filepath.Join(t.TempDir(), "victim")
		require.NoError(t, os.Symlink(outside, root))

		fsys := &faultyFS{}
		require.NoError(t, RemoveTree(ctx, root, WithFS(fsys)))

		assert.Equal(t, []string{root}, fsys.removed)
		_, err := os.Lstat(root)
		assert.ErrorIs(t, err, fs.ErrNotExist)
		_, err = os.Stat(filepath.Join(outside, "keep.txt"))
		assert.NoError(t, err)
		_, err = os.Stat(filepath.Join(outside, "sub", "deep.txt"))
		assert.NoError(t, err)
	})

	t.Run("failure_stops_remaining_deletions", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "victim")
		writeTree(t, root, map[string]string{
			"a/stuck.txt": "x",
		})

		fsys := &faultyFS{failRemove: "stuck.txt"}
		err := RemoveTree(ctx, root, WithFS(fsys))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "removing file")
		assert.Empty(t, fsys.removed, "nothing after the failed step runs")

		_, err = os.Stat(filepath.Join(root, "a"))
		assert.NoError(t, err)
	})

	t.Run("missing_root", func(t *testing.T) {
		err := RemoveTree(ctx, filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestEnsureDir(t *testing.T) {
	ctx := setupTestLogger(t)

	t.Run("creates_missing_parents", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "a", "b", "c")
		created, err := EnsureDir(ctx, p)
		require.NoError(t, err)
		assert.True(t, created)

		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("idempotent", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "x")
		_, err := EnsureDir(ctx, p)
		require.NoError(t, err)
		created, err := EnsureDir(ctx, p)
		require.NoError(t, err)
		assert.False(t, created)

		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("relative_path_touches_nothing", func(t *testing.T) {
		fsys := &faultyFS{}
		_, err := EnsureDir(ctx, filepath.Join("rel", "path"), WithFS(fsys))
		assert.ErrorIs(t, err, ErrRelativePath)
		assert.Zero(t, fsys.calls)
	})

	t.Run("file_in_the_way", func(t *testing.T) {
		root := t.TempDir()
		writeTree(t, root, map[string]string{"blocker": "x"})
		_, err := EnsureDir(ctx, filepath.Join(root, "blocker", "sub"))
		require.Error(t, err)
	})
}

func TestCopyFile(t *testing.T) {
	ctx := setupTestLogger(t)

	t.Run("copies_bytes", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "src.bin")
		content := strings.Repeat("tile data ", 10000)
		require.NoError(t, os.WriteFile(src, []byte(content), 0o644))

		n, err := CopyFile(ctx, src, filepath.Join(dir, "dst.bin"))
		require.NoError(t, err)
		assert.Equal(t, int64(len(content)), n)

		got, err := os.ReadFile(filepath.Join(dir, "dst.bin"))
		require.NoError(t, err)
		assert.Equal(t, content, string(got))
	})

	t.Run("missing_source", func(t *testing.T) {
		dir := t.TempDir()
		_, err := CopyFile(ctx, filepath.Join(dir, "nope"), filepath.Join(dir, "dst"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "opening source file")
	})

	t.Run("missing_destination_dir", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "src")
		require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))
		_, err := CopyFile(ctx, src, filepath.Join(dir, "no", "dst"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "creating destination file")
	})
}

func TestFileHelpersUseFS(t *testing.T) {
	ctx := setupTestLogger(t)

	t.Run("copy_creates_through_fs", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "src")
		require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

		_, err := CopyFile(ctx, src, filepath.Join(dir, "dst.png"), WithFS(&faultyFS{failCreate: "dst.png"}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "create exploded")
		assert.NoFileExists(t, filepath.Join(dir, "dst.png"))
	})

	t.Run("write_then_read", func(t *testing.T) {
		dir := t.TempDir()
		fsys := &faultyFS{}
		p := filepath.Join(dir, "style.mss")

		require.NoError(t, WriteFile(ctx, p, []byte("@a: 1;"), WithFS(fsys)))
		got, err := ReadFile(ctx, p, WithFS(fsys))
		require.NoError(t, err)
		assert.Equal(t, "@a: 1;", string(got))
		assert.Equal(t, 1, fsys.calls, "one create went through the fs")
	})

	t.Run("write_failure", func(t *testing.T) {
		err := WriteFile(ctx, filepath.Join(t.TempDir(), "out.mml"), []byte("{}"), WithFS(&faultyFS{failCreate: "out.mml"}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "creating")
	})

	t.Run("read_missing", func(t *testing.T) {
		_, err := ReadFile(ctx, filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("symlink_keeps_link_text", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("symlinks need privileges on windows")
		}
		dir := t.TempDir()
		require.NoError(t, Symlink(ctx, "data/land.geojson", filepath.Join(dir, "land"), WithFS(&faultyFS{})))
		target, err := os.Readlink(filepath.Join(dir, "land"))
		require.NoError(t, err)
		assert.Equal(t, "data/land.geojson", target)
	})
}

func TestListDir(t *testing.T) {
	ctx := setupTestLogger(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"b/":      "",
		"a/x.mml": "{}",
		".git/":   "",
		"c.txt":   "",
	})

	names, err := ListDir(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c.txt"}, names)

	names, err = ListDir(ctx, root, WithHidden(true))
	require.NoError(t, err)
	assert.Equal(t, []string{".git", "a", "b", "c.txt"}, names)

	_, err = ListDir(ctx, filepath.Join(root, "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading directory")
}

func TestExists(t *testing.T) {
	ctx := setupTestLogger(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{"file": "x"})
	require.NoError(t, os.Symlink(filepath.Join(root, "gone"), filepath.Join(root, "dangling")))

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "file", path: "file", want: true},
		{name: "dangling_symlink", path: "dangling", want: true},
		{name: "missing", path: "nope", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Exists(ctx, filepath.Join(root, tt.path))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
