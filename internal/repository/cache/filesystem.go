package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
	"github.com/jaennil/guide_helper/backend/vtiles/pkg/logger"
)

// FilesystemCache lays tiles out as root/z/x/y.mvt.
type FilesystemCache struct {
	root   string
	logger logger.Logger
}

func NewFilesystemCache(root string, l logger.Logger) (*FilesystemCache, error) {
	l = logger.OrNop(l)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	l.Info("filesystem cache initialized", "root", root)
	return &FilesystemCache{
		root:   root,
		logger: l,
	}, nil
}

var _ TileCache = (*FilesystemCache)(nil)

func (c *FilesystemCache) Get(ctx context.Context, k tiling.TileIndex) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	content, err := os.ReadFile(c.pathFor(k))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return content, true, nil
}

// Set writes to a temporary file next to the target and renames it into
// place, so a reader sees either the old tile, the new one or nothing.
func (c *FilesystemCache) Set(ctx context.Context, k tiling.TileIndex, v []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := c.pathFor(k)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create tile dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tile-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(v); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write tile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close tile: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move tile into place: %w", err)
	}

	c.logger.Debug("filesystem cache set", "path", path, "size", len(v))
	return nil
}

func (c *FilesystemCache) Delete(_ context.Context, k tiling.TileIndex) error {
	err := os.Remove(c.pathFor(k))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (c *FilesystemCache) pathFor(k tiling.TileIndex) string {
	return filepath.Join(c.root, strconv.Itoa(k.Level), strconv.Itoa(k.X), strconv.Itoa(k.Y)+".mvt")
}
