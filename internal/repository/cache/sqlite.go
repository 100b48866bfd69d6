package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"strings"

	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/logger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteCache keeps tiles in an MBTiles-like tiles table. Rows hold the
// pyramid's own row number, not the TMS-flipped one.
type SQLiteCache struct {
	db     *sql.DB
	logger logger.Logger
}

func NewSQLiteCache(path string, l logger.Logger) (*SQLiteCache, error) {
	l = logger.OrNop(l)
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, err
	}

	c := &SQLiteCache{
		db:     db,
		logger: l,
	}

	err = c.runMigrations()
	if err != nil {
		db.Close()
		return nil, err
	}

	l.Info("sqlite cache initialized", "path", path)

	return c, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000&_journal_mode=WAL"
}

func (c *SQLiteCache) runMigrations() error {
	goose.SetBaseFS(migrations)

	err := goose.SetDialect("sqlite3")
	if err != nil {
		return err
	}

	err = goose.Up(c.db, "migrations")
	if err != nil {
		return err
	}

	return nil
}

var _ TileCache = (*SQLiteCache)(nil)

func (c *SQLiteCache) Get(ctx context.Context, k tiling.TileIndex) ([]byte, bool, error) {
	c.logger.Debug("sqlite cache get", "z", k.Level, "x", k.X, "y", k.Y)

	query := `SELECT tile_data
	FROM tiles
	WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`

	var tileData []byte
	err := c.db.QueryRowContext(ctx, query, k.Level, k.X, k.Y).Scan(&tileData)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		c.logger.Error("sqlite cache get failed", "z", k.Level, "x", k.X, "y", k.Y, "error", err)
		return nil, false, err
	}

	return tileData, true, nil
}

func (c *SQLiteCache) Set(ctx context.Context, k tiling.TileIndex, v []byte) error {
	c.logger.Debug("sqlite cache set", "z", k.Level, "x", k.X, "y", k.Y)

	query := `INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(zoom_level, tile_column, tile_row) DO UPDATE SET
		tile_data = excluded.tile_data,
		updated_at = strftime('%s', 'now')`

	_, err := c.db.ExecContext(ctx, query, k.Level, k.X, k.Y, v)
	if err != nil {
		c.logger.Error("sqlite cache set failed", "z", k.Level, "x", k.X, "y", k.Y, "error", err)
		return err
	}

	return nil
}

func (c *SQLiteCache) Delete(ctx context.Context, k tiling.TileIndex) error {
	query := `DELETE FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`

	_, err := c.db.ExecContext(ctx, query, k.Level, k.X, k.Y)
	return err
}

// Len counts stored tiles.
func (c *SQLiteCache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tiles`).Scan(&n)
	return n, err
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
