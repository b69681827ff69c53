package mount

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ShoshinNikita/gameicons/gameicons"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	dir := t.TempDir()

	dirTitle := gameicons.Title{ID: 1, Path: filepath.Join(dir, "title")}
	require.NoError(t, os.MkdirAll(filepath.Join(dirTitle.Path, "meta"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dirTitle.Path, gameicons.IconPath), []byte("dir icon"), 0o600))

	zipTitle := gameicons.Title{ID: 2, Path: filepath.Join(dir, "title.ZIP")}
	writeZip(t, zipTitle.Path, map[string]string{
		gameicons.IconPath: "zip icon",
		"code/app.xml":     "<app/>",
	})

	t.Run("directory", func(t *testing.T) {
		r := require.New(t)

		table := NewTable()
		mountPath := table.UniqueMountPath()
		r.True(strings.HasPrefix(mountPath, "/mnt/tmp/"))

		r.NoError(table.Mount(ctx, dirTitle, mountPath))
		r.Equal(1, table.Len())

		data, ok := table.ExtractFile(mountPath + "/" + gameicons.IconPath)
		r.True(ok)
		r.Equal("dir icon", string(data))

		_, ok = table.ExtractFile(mountPath + "/meta/missing.tga")
		r.False(ok)

		// Paths outside the mount point must be rejected.
		_, ok = table.ExtractFile(mountPath + "/../title/" + gameicons.IconPath)
		r.False(ok)

		r.ErrorIs(table.Mount(ctx, dirTitle, mountPath), ErrAlreadyMounted)

		r.NoError(table.Unmount(mountPath))
		r.Equal(0, table.Len())

		_, ok = table.ExtractFile(mountPath + "/" + gameicons.IconPath)
		r.False(ok)

		r.ErrorIs(table.Unmount(mountPath), ErrNotMounted)
	})

	t.Run("zip", func(t *testing.T) {
		r := require.New(t)

		table := NewTable()
		first, second := table.UniqueMountPath(), table.UniqueMountPath()
		r.NotEqual(first, second)

		r.NoError(table.Mount(ctx, zipTitle, first))
		r.NoError(table.Mount(ctx, dirTitle, second))

		data, ok := table.ExtractFile(first + "/" + gameicons.IconPath)
		r.True(ok)
		r.Equal("zip icon", string(data))

		data, ok = table.ExtractFile(second + "/" + gameicons.IconPath)
		r.True(ok)
		r.Equal("dir icon", string(data))

		r.NoError(table.Unmount(first))
		r.NoError(table.Unmount(second))
	})

	t.Run("invalid sources", func(t *testing.T) {
		r := require.New(t)

		table := NewTable()

		err := table.Mount(ctx, gameicons.Title{Path: filepath.Join(dir, "missing")}, table.UniqueMountPath())
		r.ErrorIs(err, os.ErrNotExist)

		plainFile := filepath.Join(dir, "title.rpx")
		r.NoError(os.WriteFile(plainFile, []byte("data"), 0o600))
		err = table.Mount(ctx, gameicons.Title{Path: plainFile}, table.UniqueMountPath())
		r.ErrorContains(err, "unsupported title source")

		brokenZip := filepath.Join(dir, "broken.zip")
		r.NoError(os.WriteFile(brokenZip, []byte("not a zip"), 0o600))
		err = table.Mount(ctx, gameicons.Title{Path: brokenZip}, table.UniqueMountPath())
		r.ErrorContains(err, "couldn't open zip archive")

		canceledCtx, cancel := context.WithCancel(ctx)
		cancel()
		err = table.Mount(canceledCtx, dirTitle, table.UniqueMountPath())
		r.ErrorIs(err, context.Canceled)

		r.Equal(0, table.Len())
	})
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}
