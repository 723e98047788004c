package artifact

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ResultKey derives the cache key for a vendor website: the first 12 hex
// characters of the md5 of the lower-cased URL without scheme, with slashes
// replaced by underscores.
func ResultKey(website string) string {
	clean := strings.ToLower(strings.TrimSpace(website))
	clean = strings.ReplaceAll(clean, "https://", "")
	clean = strings.ReplaceAll(clean, "http://", "")
	clean = strings.ReplaceAll(clean, "/", "_")
	sum := md5.Sum([]byte(clean))
	return hex.EncodeToString(sum[:])[:12]
}

// ResultCache stores one JSON document per vendor website under dir. A nil
// ResultCache is valid and caches nothing.
type ResultCache[T any] struct {
	dir    string
	logger *zap.Logger
}

// NewResultCache builds a result cache rooted at dir.
func NewResultCache[T any](dir string, logger *zap.Logger) *ResultCache[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache[T]{dir: dir, logger: logger}
}

// Dir returns the directory results are stored in.
func (c *ResultCache[T]) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *ResultCache[T]) path(website string) string {
	return filepath.Join(c.dir, ResultKey(website)+extJSON)
}

// Load returns the cached result for website. Missing or corrupt entries are
// a miss.
func (c *ResultCache[T]) Load(website string) (T, bool) {
	var zero T
	if c == nil || c.dir == "" || strings.TrimSpace(website) == "" {
		return zero, false
	}
	path := c.path(website)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("cached result unreadable", zap.String("path", path), zap.Error(err))
		}
		return zero, false
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		c.logger.Warn("cached result corrupt", zap.String("path", path), zap.Error(err))
		return zero, false
	}
	return value, true
}

// Save stores value for website. Failures are logged and returned; callers
// may ignore them.
func (c *ResultCache[T]) Save(website string, value T) error {
	if c == nil || c.dir == "" || strings.TrimSpace(website) == "" {
		return nil
	}
	path := c.path(website)
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		c.logger.Warn("result not cached", zap.String("website", website), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrCacheWrite, err)
	}
	if err := writeFileAtomic(path, append(data, '\n')); err != nil {
		c.logger.Warn("result not cached", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrCacheWrite, path, err)
	}
	return nil
}

// Keys lists the cached entry keys in sorted order.
func (c *ResultCache[T]) Keys() ([]string, error) {
	if c == nil || c.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("artifact: list result cache: %w", err)
	}
	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != extJSON {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, extJSON))
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes every cached entry and returns how many were removed.
func (c *ResultCache[T]) Clear() (int, error) {
	keys, err := c.Keys()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		if err := os.Remove(filepath.Join(c.dir, key+extJSON)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("artifact: clear result cache: %w", err)
		}
		removed++
	}
	return removed, nil
}
