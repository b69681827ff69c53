package cache

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"image/png"
	"time"

	"golang.org/x/image/draw"
	_ "modernc.org/sqlite"

	"github.com/ShoshinNikita/gameicons/gameicons"
	"github.com/ShoshinNikita/gameicons/pkg/metrics"
)

// SQLiteCache stores icons as PNG images in a SQLite database.
// Icons are bound to the max icon size they were decoded with, icons saved with a different
// max size are treated as missing.
type SQLiteCache struct {
	db          *sql.DB
	path        string
	iconMaxSize int
}

var _ gameicons.IconCache = (*SQLiteCache)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS icons (
	title_id   TEXT    PRIMARY KEY,
	width      INTEGER NOT NULL,
	height     INTEGER NOT NULL,
	max_size   INTEGER NOT NULL,
	data       BLOB    NOT NULL,
	size       INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`

func NewSQLiteCache(path string, iconMaxSize int) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("couldn't open sqlite db: %w", err)
	}

	for _, query := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		schema,
	} {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("couldn't prepare sqlite db, query %q: %w", query, err)
		}
	}

	return &SQLiteCache{
		db:          db,
		path:        path,
		iconMaxSize: iconMaxSize,
	}, nil
}

// Load returns a cached icon. If the icon is not cached, it returns [gameicons.ErrCacheMiss].
// Successful loads refresh the entry, so the [Cleaner] removes rarely used icons first.
func (c *SQLiteCache) Load(ctx context.Context, id gameicons.TitleID) (gameicons.Icon, error) {
	var data []byte
	err := c.db.QueryRowContext(ctx, "SELECT data FROM icons WHERE title_id = ? AND max_size = ?", id.String(), c.iconMaxSize,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.CacheMisses.Inc()
			return gameicons.Icon{}, gameicons.ErrCacheMiss
		}

		metrics.CacheErrors.Inc()
		return gameicons.Icon{}, fmt.Errorf("couldn't query icon: %w", err)
	}

	icon, err := decodePNG(data)
	if err != nil {
		metrics.CacheErrors.Inc()
		return gameicons.Icon{}, fmt.Errorf("couldn't decode cached icon: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		"UPDATE icons SET updated_at = ? WHERE title_id = ?", time.Now().Unix(), id.String(),
	)
	if err != nil {
		metrics.CacheErrors.Inc()
		return gameicons.Icon{}, fmt.Errorf("couldn't update icon access time: %w", err)
	}

	metrics.CacheHits.Inc()
	return icon, nil
}

func (c *SQLiteCache) Save(ctx context.Context, id gameicons.TitleID, icon gameicons.Icon) error {
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, icon.Image()); err != nil {
		return fmt.Errorf("couldn't encode icon: %w", err)
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO icons (title_id, width, height, max_size, data, size, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(title_id) DO UPDATE SET
			width = excluded.width,
			height = excluded.height,
			max_size = excluded.max_size,
			data = excluded.data,
			size = excluded.size,
			updated_at = excluded.updated_at`,
		id.String(), icon.Width, icon.Height, c.iconMaxSize, buf.Bytes(), buf.Len(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("couldn't save icon: %w", err)
	}
	return nil
}

// Remove removes the icon. To remove icons over time use [Cleaner].
func (c *SQLiteCache) Remove(ctx context.Context, id gameicons.TitleID) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM icons WHERE title_id = ?", id.String())
	if err != nil {
		return fmt.Errorf("couldn't remove icon: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Shutdown(context.Context) error {
	return c.db.Close()
}

type entryInfo struct {
	id      gameicons.TitleID
	modTime time.Time
	size    int64
}

func (c *SQLiteCache) loadAllEntries(ctx context.Context) (entries []entryInfo, err error) {
	rows, err := c.db.QueryContext(ctx, "SELECT title_id, updated_at, size FROM icons")
	if err != nil {
		return nil, fmt.Errorf("couldn't query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rawID     string
			updatedAt int64
			size      int64
		)
		if err := rows.Scan(&rawID, &updatedAt, &size); err != nil {
			return nil, fmt.Errorf("couldn't scan entry: %w", err)
		}
		id, err := gameicons.ParseTitleID(rawID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entryInfo{
			id:      id,
			modTime: time.Unix(updatedAt, 0),
			size:    size,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("couldn't read entries: %w", err)
	}
	return entries, nil
}

func decodePNG(data []byte) (gameicons.Icon, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return gameicons.Icon{}, err
	}

	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		// Opaque icons are encoded without alpha channel.
		b := img.Bounds()
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	return gameicons.NewIconFromNRGBA(nrgba), nil
}
