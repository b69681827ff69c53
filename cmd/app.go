package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/gofrs/flock"

	"github.com/ShoshinNikita/gameicons/gameicons"
	"github.com/ShoshinNikita/gameicons/iconloader"
	"github.com/ShoshinNikita/gameicons/imagedec"
	"github.com/ShoshinNikita/gameicons/mount"
	"github.com/ShoshinNikita/gameicons/pkg/cache"
	"github.com/ShoshinNikita/gameicons/pkg/rlog"
	"github.com/ShoshinNikita/gameicons/titles"
	"github.com/ShoshinNikita/gameicons/web"
)

const (
	lockFilename  = "gameicons.lock"
	iconsFilename = "icons.db"
)

type App struct {
	cfg gameicons.Config

	lock *flock.Flock

	titles *titles.Catalog
	mounts *mount.Table

	iconCache   *cache.SQLiteCache
	iconCleaner *cache.Cleaner

	loader *iconloader.Loader
	events *web.EventHub

	server *web.Server
}

func NewApp(cfg gameicons.Config) *App {
	return &App{
		cfg: cfg,
	}
}

func (a *App) Prepare() (err error) {
	if err := os.MkdirAll(a.cfg.Dir, 0700); err != nil {
		return fmt.Errorf("couldn't create app data dir %q: %w", a.cfg.Dir, err)
	}

	// The icon cache can't be shared by multiple processes.
	lock := flock.New(filepath.Join(a.cfg.Dir, lockFilename))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("couldn't lock app data dir %q: %w", a.cfg.Dir, err)
	}
	if !locked {
		return fmt.Errorf("app data dir %q is used by another process", a.cfg.Dir)
	}
	a.lock = lock

	// Titles
	a.titles, err = titles.Load(a.cfg.TitlesFile)
	if err != nil {
		return fmt.Errorf("couldn't load title catalog: %w", err)
	}
	rlog.Infof("title catalog contains %d title(s)", a.titles.Len())

	a.mounts = mount.NewTable()

	// Icon Cache
	opts := iconloader.Options{
		LoadTimeout: a.cfg.LoadTimeout,
	}
	if a.cfg.IconCacheSize > 0 {
		a.iconCache, err = cache.NewSQLiteCache(filepath.Join(a.cfg.Dir, iconsFilename), a.cfg.IconMaxSize)
		if err != nil {
			return fmt.Errorf("couldn't prepare icon cache: %w", err)
		}
		a.iconCleaner = cache.NewCleaner(a.iconCache, a.cfg.IconCacheMaxAge, a.cfg.IconCacheSize.Bytes())

		opts.Cache = a.iconCache

	} else {
		rlog.Debug("persistent icon cache is disabled")
	}

	// Icon Loader
	a.loader = iconloader.New(a.titles, a.mounts, imagedec.NewDecoder(a.cfg.IconMaxSize), opts)

	a.events = web.NewEventHub()
	a.loader.SetOnIconLoaded(a.events.OnIconLoaded)

	// Web Server
	a.server = web.NewServer(a.cfg, a.loader, a.titles, a.events)

	return nil
}

func (a *App) Start(onError func()) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		var wg sync.WaitGroup
		for name, s := range map[string]interface{ Start() error }{
			"web server": a.server,
		} {
			wg.Add(1)
			go func() {
				defer wg.Done()

				if err := s.Start(); err != nil {
					rlog.Errorf("%s error: %s", name, err)
					onError()
				}
			}()
		}
		wg.Wait()

		close(done)
	}()

	return done
}

// Shutdown shutdowns all components. It is safe to call this method even if Prepare has failed.
func (a *App) Shutdown(ctx context.Context) error {
	var failed int
	for _, v := range []struct {
		name string
		s    shutdowner
	}{
		{"web server", a.server},
		// The loader can still save an icon, so the cache must be closed after it.
		{"icon loader", a.loader},
		{"icon cleaner", a.iconCleaner},
		{"icon cache", a.iconCache},
	} {
		err := safeShutdown(ctx, v.s)
		if err != nil {
			rlog.Errorf("couldn't gracefully shutdown %s: %s", v.name, err)
			failed++
		}
	}

	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			rlog.Errorf("couldn't unlock app data dir: %s", err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("couldn't gracefully shutdown %d component(s), see logs for more info", failed)
	}
	return nil
}

// FetchIcon requests the icon and waits until it is loaded. The icon callback is replaced,
// so FetchIcon must not be used together with the web server.
func (a *App) FetchIcon(ctx context.Context, id gameicons.TitleID) (gameicons.Icon, error) {
	loaded := make(chan gameicons.Icon, 1)
	a.loader.SetOnIconLoaded(func(loadedID gameicons.TitleID, pix []byte, width, height int) {
		if loadedID != id {
			return
		}
		icon := gameicons.Icon{
			Width:  width,
			Height: height,
			Pix:    append([]byte(nil), pix...),
		}
		select {
		case loaded <- icon:
		default:
		}
	})
	defer a.loader.SetOnIconLoaded(a.events.OnIconLoaded)

	a.loader.RequestIcon(id)

	select {
	case icon := <-loaded:
		return icon, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return gameicons.Icon{}, errors.New("icon wasn't loaded in time, see logs for more info")
		}
		return gameicons.Icon{}, ctx.Err()
	}
}

type shutdowner interface {
	Shutdown(context.Context) error
}

// safeShutdown calls Shutdown method only on initialized components.
func safeShutdown(ctx context.Context, s shutdowner) error {
	v := reflect.ValueOf(s)
	if !v.IsValid() || v.IsNil() {
		return nil
	}
	return s.Shutdown(ctx)
}
