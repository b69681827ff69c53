package gameicons

import (
	"context"
	"errors"
)

var (
	ErrIconNotFound  = errors.New("icon not found")
	ErrTitleNotFound = errors.New("title not found")
	ErrCacheMiss     = errors.New("cache miss")
	ErrNoIconData    = errors.New("no icon data")
)

// IconPath is the path of the icon file relative to the title root.
const IconPath = "meta/iconTex.tga"

// IconLoadedFn is called every time an icon is loaded or found in the cache. pix must not be modified.
type IconLoadedFn func(id TitleID, pix []byte, width, height int)

type Title struct {
	ID   TitleID `json:"id"`
	Name string  `json:"name"`
	// Path is either a directory or a .zip archive with the title files.
	Path string `json:"path"`
}

type TitleResolver interface {
	Resolve(ctx context.Context, id TitleID) (Title, error)
}

// Mounter gives access to title files. Every successful Mount call must be followed by Unmount.
type Mounter interface {
	UniqueMountPath() string
	Mount(ctx context.Context, title Title, mountPath string) error
	Unmount(mountPath string) error
}

type Extractor interface {
	// ExtractFile returns the file content. It returns false if the file doesn't exist or can't be read.
	ExtractFile(path string) ([]byte, bool)
}

type IconDecoder interface {
	Decode(data []byte) (Icon, error)
}

// IconCache is a persistent icon storage. Load returns [ErrCacheMiss] for unknown titles.
type IconCache interface {
	Load(ctx context.Context, id TitleID) (Icon, error)
	Save(ctx context.Context, id TitleID, icon Icon) error
	Shutdown(context.Context) error
}
