package cache

import (
	"context"
	"slices"
	"time"

	"github.com/ShoshinNikita/gameicons/pkg/metrics"
	"github.com/ShoshinNikita/gameicons/pkg/misc"
	"github.com/ShoshinNikita/gameicons/pkg/rlog"
)

// Cleaner can be used remove old icons and control total size of the persistent cache.
// It never touches icons that are already loaded into memory.
type Cleaner struct {
	cache           *SQLiteCache
	cleanupInterval time.Duration
	maxAge          time.Duration
	maxTotalSize    int64 // in bytes

	stopCh                 chan struct{}
	cleanupProcessFinished chan struct{}
}

func NewCleaner(cache *SQLiteCache, maxAge time.Duration, maxTotalSize int64) *Cleaner {
	c := &Cleaner{
		cache:           cache,
		cleanupInterval: 5 * time.Minute,
		maxAge:          maxAge,
		maxTotalSize:    maxTotalSize,
		//
		stopCh:                 make(chan struct{}),
		cleanupProcessFinished: make(chan struct{}),
	}

	go c.startCleanupProcess()

	return c
}

func (c *Cleaner) startCleanupProcess() {
	defer close(c.cleanupProcessFinished)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		// Run immediately.
		c.cleanup(time.Now())

		select {
		case <-ticker.C:
			continue
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cleaner) cleanup(now time.Time) {
	rlog.Debugf("start icon cache cleanup")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	entries, err := c.cache.loadAllEntries(ctx)
	if err != nil {
		rlog.Errorf("couldn't load icon cache entries to clean: %s", err)
		return
	}

	toRemove := c.getEntriesToRemove(entries, now)
	if len(toRemove) == 0 {
		rlog.Debug("no icons to remove from cache")
		return
	}

	removed, cleanedSpace, errs := c.removeEntries(ctx, toRemove)
	for _, err := range errs {
		rlog.Error(err)
	}
	if removed > 0 {
		metrics.CacheRemovedEntries.Add(float64(removed))
		rlog.Infof(
			"%d icons have been removed from cache for a total of %s freed, got %d errors",
			removed, misc.FormatFileSize(cleanedSpace), len(errs),
		)
	}
}

func (c *Cleaner) getEntriesToRemove(entries []entryInfo, now time.Time) []entryInfo {
	minModTime := now.Add(-c.maxAge)

	var (
		oldEntries      []entryInfo
		activeEntries   []entryInfo
		activeTotalSize int64
	)
	for _, e := range entries {
		if e.modTime.Before(minModTime) {
			oldEntries = append(oldEntries, e)
		} else {
			activeEntries = append(activeEntries, e)
			activeTotalSize += e.size
		}
	}
	if activeTotalSize < c.maxTotalSize {
		// Should remove only old entries.
		return oldEntries
	}

	// Remove old entries first.
	slices.SortFunc(activeEntries, func(a, b entryInfo) int {
		return a.modTime.Compare(b.modTime)
	})

	var index int
	for i, e := range activeEntries {
		activeTotalSize -= e.size
		if activeTotalSize < c.maxTotalSize {
			// Other entries satisfy the size limit.
			index = i + 1
			break
		}
	}
	if index == 0 {
		// Impossible, just in case, remove all entries.
		index = len(activeEntries)
	}

	return append(oldEntries, activeEntries[:index]...)
}

func (c *Cleaner) removeEntries(ctx context.Context, entries []entryInfo) (removed int, cleanedSpace int64, errs []error) {
	for _, e := range entries {
		err := c.cache.Remove(ctx, e.id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
		cleanedSpace += e.size
	}
	return removed, cleanedSpace, errs
}

func (c *Cleaner) Shutdown(ctx context.Context) error {
	close(c.stopCh)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.cleanupProcessFinished:
		return nil
	}
}
