// Package mount provides access to title files through a table of virtual mount points.
// A title can be either a directory or a .zip archive.
package mount

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	pkgPath "path"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ShoshinNikita/gameicons/gameicons"
	"github.com/ShoshinNikita/gameicons/pkg/metrics"
	"github.com/ShoshinNikita/gameicons/pkg/rlog"
)

const tempMountDir = "/mnt/tmp"

var (
	ErrAlreadyMounted = errors.New("mount point is already in use")
	ErrNotMounted     = errors.New("nothing is mounted")
)

// Table is a set of mount points. It is safe for concurrent use.
type Table struct {
	mu     sync.Mutex
	mounts map[string]mountedSource
}

type mountedSource struct {
	fsys   fs.FS
	closer io.Closer
}

func NewTable() *Table {
	return &Table{
		mounts: make(map[string]mountedSource),
	}
}

// UniqueMountPath returns a new mount point path that is not used by anyone else.
func (*Table) UniqueMountPath() string {
	return pkgPath.Join(tempMountDir, uuid.NewString())
}

// Mount opens the title source and mounts it at the passed path.
func (t *Table) Mount(ctx context.Context, title gameicons.Title, mountPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mountPath = pkgPath.Clean(mountPath)

	t.mu.Lock()
	_, busy := t.mounts[mountPath]
	t.mu.Unlock()
	if busy {
		return fmt.Errorf("%w: %q", ErrAlreadyMounted, mountPath)
	}

	source, err := openSource(title.Path)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Check again, the path could be used while the source was opening.
	if _, busy := t.mounts[mountPath]; busy {
		if source.closer != nil {
			source.closer.Close()
		}
		return fmt.Errorf("%w: %q", ErrAlreadyMounted, mountPath)
	}
	t.mounts[mountPath] = source
	metrics.LoaderMountedSources.Inc()

	return nil
}

func openSource(path string) (mountedSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return mountedSource{}, fmt.Errorf("couldn't open title source: %w", err)
	}

	if info.IsDir() {
		return mountedSource{
			fsys: os.DirFS(path),
		}, nil
	}

	if !strings.EqualFold(pkgPath.Ext(path), ".zip") {
		return mountedSource{}, fmt.Errorf("unsupported title source %q: must be a directory or a .zip archive", path)
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		return mountedSource{}, fmt.Errorf("couldn't open zip archive: %w", err)
	}
	return mountedSource{
		fsys:   r,
		closer: r,
	}, nil
}

// Unmount releases the source mounted at the passed path.
func (t *Table) Unmount(mountPath string) error {
	mountPath = pkgPath.Clean(mountPath)

	t.mu.Lock()
	source, ok := t.mounts[mountPath]
	delete(t.mounts, mountPath)
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w at %q", ErrNotMounted, mountPath)
	}

	metrics.LoaderMountedSources.Dec()

	if source.closer != nil {
		if err := source.closer.Close(); err != nil {
			return fmt.Errorf("couldn't close source: %w", err)
		}
	}
	return nil
}

// ExtractFile reads a file by its absolute path, for example "/mnt/tmp/<id>/meta/iconTex.tga".
func (t *Table) ExtractFile(path string) ([]byte, bool) {
	path = pkgPath.Clean(path)

	t.mu.Lock()
	fsys, name, ok := t.resolve(path)
	t.mu.Unlock()
	if !ok {
		return nil, false
	}

	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			rlog.Warnf("couldn't read %q: %s", path, err)
		}
		return nil, false
	}
	return data, true
}

// resolve finds the mount point for the path. It must be called under mu.
func (t *Table) resolve(path string) (fsys fs.FS, name string, ok bool) {
	for mountPath, source := range t.mounts {
		rel, found := strings.CutPrefix(path, mountPath+"/")
		if !found || !fs.ValidPath(rel) {
			continue
		}
		return source.fsys, rel, true
	}
	return nil, "", false
}

// Len returns the number of mounted sources.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.mounts)
}
