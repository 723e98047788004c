package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrCacheWrite wraps every failure to persist a program.
var ErrCacheWrite = errors.New("artifact: cache write failed")

// Cache loads and saves programs on the local filesystem.
type Cache struct {
	logger     *zap.Logger
	generators []Generator
}

// Option customizes a Cache during construction.
type Option func(*Cache)

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithGenerators replaces the candidate generators probed on load.
func WithGenerators(generators ...Generator) Option {
	return func(c *Cache) {
		if len(generators) > 0 {
			c.generators = append([]Generator(nil), generators...)
		}
	}
}

// NewCache builds a filesystem program cache.
func NewCache(opts ...Option) *Cache {
	cache := &Cache{
		logger:     zap.NewNop(),
		generators: DefaultGenerators,
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

// Entry describes the canonical and probed locations for a logical path.
func (c *Cache) Entry(name, path string) Entry {
	return Entry{
		Name:       name,
		Canonical:  CanonicalPath(path),
		Candidates: Candidates(path, c.generators...),
	}
}

// Load returns the program stored at the first existing candidate for path.
// Candidates that exist but cannot be read or decoded are logged and skipped.
func (c *Cache) Load(path string) (*Program, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, false
	}
	for _, candidate := range Candidates(path, c.generators...) {
		info, err := os.Stat(candidate)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				c.logger.Warn("program candidate unreadable", zap.String("path", candidate), zap.Error(err))
			}
			continue
		}
		if info.IsDir() {
			continue
		}
		data, err := os.ReadFile(candidate)
		if err != nil {
			c.logger.Warn("program candidate unreadable", zap.String("path", candidate), zap.Error(err))
			continue
		}
		program, err := decodeProgram(data, candidate)
		if err != nil {
			c.logger.Warn("program candidate corrupt", zap.String("path", candidate), zap.Error(err))
			continue
		}
		if candidate != path {
			c.logger.Info("loaded program",
				zap.String("path", candidate),
				zap.String("requested", path),
			)
		} else {
			c.logger.Info("loaded program", zap.String("path", candidate))
		}
		return program, true
	}
	c.logger.Debug("program not cached", zap.String("path", path))
	return nil, false
}

// Save writes program to the canonical path for path and returns it. Once the
// write succeeds a legacy double-suffixed duplicate is removed best-effort.
func (c *Cache) Save(program *Program, path string) (string, error) {
	if program == nil {
		return "", fmt.Errorf("%w: nil program", ErrCacheWrite)
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path for %s", ErrCacheWrite, program.Name)
	}
	canonical, replaced := canonicalize(path)
	if replaced {
		c.logger.Warn("unsupported program extension, saving as json",
			zap.String("requested", path),
			zap.String("path", canonical),
		)
	}
	data, err := encodeProgram(program, canonical)
	if err != nil {
		c.logger.Error("program save failed", zap.String("path", canonical), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	if err := writeFileAtomic(canonical, data); err != nil {
		c.logger.Error("program save failed", zap.String("path", canonical), zap.Error(err))
		return "", fmt.Errorf("%w: %s: %w", ErrCacheWrite, canonical, err)
	}
	c.removeLegacy(canonical)
	c.logger.Info("saved program", zap.String("name", program.Name), zap.String("path", canonical))
	return canonical, nil
}

func (c *Cache) removeLegacy(canonical string) {
	legacy := legacyDuplicate(canonical)
	if legacy == "" || legacy == canonical {
		return
	}
	if _, err := os.Stat(legacy); err != nil {
		return
	}
	if err := os.Remove(legacy); err != nil {
		c.logger.Warn("legacy program not removed", zap.String("path", legacy), zap.Error(err))
		return
	}
	c.logger.Debug("removed legacy program", zap.String("path", legacy))
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
