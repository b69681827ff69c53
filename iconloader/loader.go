package iconloader

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/ShoshinNikita/gameicons/gameicons"
	"github.com/ShoshinNikita/gameicons/pkg/metrics"
	"github.com/ShoshinNikita/gameicons/pkg/rlog"
	"github.com/prometheus/client_golang/prometheus"
)

// maxInvalidIconDataSize is the maximum size of icon data that is still considered invalid.
const maxInvalidIconDataSize = 16

const defaultLoadTimeout = time.Minute

// Source provides access to title files.
type Source interface {
	gameicons.Mounter
	gameicons.Extractor
}

type Options struct {
	// Cache is an optional persistent cache. It is checked before mounting a title,
	// and all loaded icons are saved to it.
	Cache gameicons.IconCache
	// LoadTimeout limits the time spent on a single request. Default is 1 minute.
	LoadTimeout time.Duration
}

// Loader loads title icons in the background. All requests are processed one by one
// by a single worker, so the same icon is never decoded concurrently.
type Loader struct {
	titles      gameicons.TitleResolver
	source      Source
	decoder     gameicons.IconDecoder
	cache       gameicons.IconCache
	loadTimeout time.Duration

	// mu guards all fields below.
	mu           sync.Mutex
	cond         *sync.Cond
	queue        requestQueue
	icons        iconStore
	onIconLoaded gameicons.IconLoadedFn
	running      bool

	workerDone chan struct{}
}

type Stats struct {
	QueueLength int `json:"queue_length"`
	StoredIcons int `json:"stored_icons"`
}

// New creates a new [Loader] and starts its worker. [Loader.Shutdown] must be called
// to stop the worker.
func New(titles gameicons.TitleResolver, source Source, decoder gameicons.IconDecoder, opts Options) *Loader {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = defaultLoadTimeout
	}

	l := &Loader{
		titles:      titles,
		source:      source,
		decoder:     decoder,
		cache:       opts.Cache,
		loadTimeout: opts.LoadTimeout,
		//
		icons:   newIconStore(),
		running: true,
		//
		workerDone: make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)

	go l.startWorker()

	return l
}

// RequestIcon adds the title to the load queue and returns immediately. The registered
// [gameicons.IconLoadedFn] is called once the icon is loaded. Failed loads are only logged.
//
// Requests sent after [Loader.Shutdown] call are ignored.
func (l *Loader) RequestIcon(id gameicons.TitleID) {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()

		rlog.Warnf("ignore icon request for title %s after shutdown", id)
		return
	}
	l.queue.push(id)
	metrics.LoaderQueueLength.Set(float64(l.queue.len()))
	l.mu.Unlock()

	l.cond.Signal()

	metrics.LoaderRequests.Inc()
}

// GetGameIcon returns an already loaded icon. It doesn't load icons, so it returns
// [gameicons.ErrIconNotFound] for titles that were never requested or failed to load.
func (l *Loader) GetGameIcon(id gameicons.TitleID) (gameicons.Icon, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	icon, ok := l.icons.get(id)
	if !ok {
		return gameicons.Icon{}, fmt.Errorf("%w: %s", gameicons.ErrIconNotFound, id)
	}
	return icon, nil
}

// SetOnIconLoaded replaces the callback. The new callback receives only future notifications.
// Pass nil to disable notifications.
func (l *Loader) SetOnIconLoaded(fn gameicons.IconLoadedFn) {
	l.mu.Lock()
	l.onIconLoaded = fn
	l.mu.Unlock()

	l.cond.Signal()
}

func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		QueueLength: l.queue.len(),
		StoredIcons: l.icons.len(),
	}
}

// Shutdown drops all queued requests and waits for the one in progress with respect
// of the passed context. It is safe to call Shutdown multiple times.
func (l *Loader) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.running = false
	dropped := l.queue.clear()
	metrics.LoaderQueueLength.Set(0)
	l.mu.Unlock()

	l.cond.Broadcast()

	if dropped > 0 {
		rlog.Debugf("%d icon requests were dropped on shutdown", dropped)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.workerDone:
		return nil
	}
}

func (l *Loader) startWorker() {
	defer close(l.workerDone)

	for {
		id, ok := l.waitForRequest()
		if !ok {
			return
		}
		l.processRequest(id)
	}
}

// waitForRequest blocks until there is a request to process or the loader is stopped.
// It returns false when the worker must exit.
func (l *Loader) waitForRequest() (gameicons.TitleID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for l.queue.len() == 0 && l.running {
		l.cond.Wait()
	}
	if !l.running && l.queue.len() == 0 {
		return 0, false
	}

	id := l.queue.pop()
	metrics.LoaderQueueLength.Set(float64(l.queue.len()))

	return id, true
}

func (l *Loader) processRequest(id gameicons.TitleID) {
	ctx, cancel := context.WithTimeout(context.Background(), l.loadTimeout)
	defer cancel()

	now := time.Now()
	icon, result, err := l.loadIcon(ctx, id)
	dur := time.Since(now)

	metrics.LoaderResults.With(prometheus.Labels{"result": result}).Inc()

	switch result {
	case metrics.ResultNoTitle:
		rlog.Debugf("skip icon for title %s: %s", id, err)
		return

	case metrics.ResultMountError:
		rlog.Warnf("couldn't load icon for title %s: %s", id, err)
		return

	case metrics.ResultNoIconData, metrics.ResultDecodeError:
		rlog.Errorf("couldn't load icon for title %s: %s", id, err)
		return

	case metrics.ResultCacheHit:
		rlog.Debugf("icon for title %s is already loaded", id)

	case metrics.ResultPersistentHit:
		rlog.Debugf("icon for title %s was loaded from cache in %s", id, dur)

	default:
		metrics.LoaderLoadDuration.Observe(dur.Seconds())
		rlog.Debugf("icon for title %s was loaded in %s, %dx%d", id, dur, icon.Width, icon.Height)
	}

	l.notify(id, icon)

	if result == metrics.ResultLoaded && l.cache != nil {
		if err := l.cache.Save(ctx, id, icon); err != nil {
			rlog.Errorf("couldn't save icon for title %s to cache: %s", id, err)
		}
	}
}

// loadIcon returns the icon and the load result, one of metrics.Result* constants.
func (l *Loader) loadIcon(ctx context.Context, id gameicons.TitleID) (gameicons.Icon, string, error) {
	title, err := l.titles.Resolve(ctx, id)
	if err != nil {
		return gameicons.Icon{}, metrics.ResultNoTitle, err
	}

	l.mu.Lock()
	icon, ok := l.icons.get(id)
	l.mu.Unlock()
	if ok {
		return icon, metrics.ResultCacheHit, nil
	}

	if l.cache != nil {
		icon, err := l.cache.Load(ctx, id)
		switch {
		case err == nil:
			return l.storeIcon(id, icon), metrics.ResultPersistentHit, nil
		case errors.Is(err, gameicons.ErrCacheMiss):
			// Load from source.
		default:
			rlog.Errorf("couldn't load icon for title %s from cache: %s", id, err)
		}
	}

	icon, result, err := l.readIcon(ctx, title)
	if err != nil {
		return gameicons.Icon{}, result, err
	}
	return l.storeIcon(id, icon), result, nil
}

// readIcon mounts the title and decodes its icon. The title is always unmounted.
func (l *Loader) readIcon(ctx context.Context, title gameicons.Title) (gameicons.Icon, string, error) {
	mountPath := l.source.UniqueMountPath()
	if err := l.source.Mount(ctx, title, mountPath); err != nil {
		return gameicons.Icon{}, metrics.ResultMountError, fmt.Errorf("couldn't mount %q: %w", title.Path, err)
	}
	defer func() {
		if err := l.source.Unmount(mountPath); err != nil {
			rlog.Errorf("couldn't unmount %q: %s", mountPath, err)
		}
	}()

	data, ok := l.source.ExtractFile(path.Join(mountPath, gameicons.IconPath))
	if !ok || len(data) <= maxInvalidIconDataSize {
		return gameicons.Icon{}, metrics.ResultNoIconData, fmt.Errorf("%w: got %d bytes", gameicons.ErrNoIconData, len(data))
	}

	icon, err := l.decoder.Decode(data)
	if err != nil {
		return gameicons.Icon{}, metrics.ResultDecodeError, fmt.Errorf("couldn't decode icon: %w", err)
	}
	return icon, metrics.ResultLoaded, nil
}

func (l *Loader) storeIcon(id gameicons.TitleID, icon gameicons.Icon) gameicons.Icon {
	l.mu.Lock()
	icon = l.icons.insert(id, icon)
	storedIcons := l.icons.len()
	l.mu.Unlock()

	metrics.LoaderStoredIcons.Set(float64(storedIcons))

	return icon
}

// notify calls the current callback outside the critical section.
func (l *Loader) notify(id gameicons.TitleID, icon gameicons.Icon) {
	l.mu.Lock()
	fn := l.onIconLoaded
	l.mu.Unlock()

	if fn != nil {
		fn(id, icon.Pix, icon.Width, icon.Height)
	}
}
