package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/sources"
)

// ProfileCache stores per-file analyses between runs. Entries are advisory:
// deleting any of them only forces re-analysis.
type ProfileCache interface {
	// Get returns a cached analysis that is still valid for src. A non-nil
	// warning reports an entry that existed but had to be ignored.
	Get(ctx context.Context, src sources.Source) (*FileAnalysis, *models.Warning)
	Put(src sources.Source, analysis *FileAnalysis) error
}

// ProfileCacheConfig configures a file-backed profile cache.
type ProfileCacheConfig struct {
	Dir string
	TTL time.Duration
	// Now is the clock used for TTL checks. Defaults to time.Now.
	Now func() time.Time
}

type profileCacheEntry struct {
	Identity    string        `json:"identity"`
	Filename    string        `json:"filename"`
	Fingerprint string        `json:"fingerprint"`
	Columns     []string      `json:"columns"`
	CreatedAt   time.Time     `json:"created_at"`
	Analysis    *FileAnalysis `json:"analysis"`
}

type fileProfileCache struct {
	dir    string
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewFileProfileCache creates a cache with one JSON document per source under cfg.Dir.
func NewFileProfileCache(cfg ProfileCacheConfig, logger *zap.Logger) (ProfileCache, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", cfg.Dir, err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &fileProfileCache{
		dir:    cfg.Dir,
		ttl:    cfg.TTL,
		now:    now,
		logger: logger.Named("profile-cache"),
	}, nil
}

// entryPath keys the entry by (identity, filename).
func (c *fileProfileCache) entryPath(src sources.Source) string {
	sum := sha256.Sum256([]byte(src.Identity() + "\x00" + filepath.Base(src.Path())))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json")
}

func (c *fileProfileCache) Get(ctx context.Context, src sources.Source) (*FileAnalysis, *models.Warning) {
	p := c.entryPath(src)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, nil
	}

	ignore := func(reason string) (*FileAnalysis, *models.Warning) {
		_ = os.Remove(p)
		c.logger.Warn("Ignoring profile cache entry",
			zap.String("source", src.Identity()),
			zap.String("reason", reason))
		return nil, &models.Warning{
			Kind:   models.WarningCacheIgnored,
			Source: src.Identity(),
			Detail: reason,
		}
	}

	var entry profileCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Analysis == nil {
		return ignore("cache entry is corrupt")
	}
	if entry.Identity != src.Identity() {
		return nil, nil
	}
	if entry.Fingerprint != src.Fingerprint() {
		c.logger.Debug("Cache entry stale", zap.String("source", src.Identity()))
		return nil, nil
	}
	if c.ttl > 0 && c.now().Sub(entry.CreatedAt) > c.ttl {
		c.logger.Debug("Cache entry expired", zap.String("source", src.Identity()))
		return nil, nil
	}

	columns, err := peekColumns(ctx, src, entry.Analysis.Encoding)
	if err != nil || !slices.Equal(columns, entry.Columns) {
		c.logger.Debug("Cache entry column set changed", zap.String("source", src.Identity()))
		return nil, nil
	}

	return entry.Analysis, nil
}

func (c *fileProfileCache) Put(src sources.Source, analysis *FileAnalysis) error {
	entry := profileCacheEntry{
		Identity:    src.Identity(),
		Filename:    filepath.Base(src.Path()),
		Fingerprint: src.Fingerprint(),
		Columns:     analysis.Columns,
		CreatedAt:   c.now().UTC(),
		Analysis:    analysis,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry for %s: %w", src.Identity(), err)
	}
	if err := writeFileAtomic(c.entryPath(src), data); err != nil {
		return fmt.Errorf("write cache entry for %s: %w", src.Identity(), err)
	}
	return nil
}

// peekColumns reads only the header of src.
func peekColumns(ctx context.Context, src sources.Source, enc sources.Encoding) ([]string, error) {
	it, err := src.Open(ctx, enc)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	return it.Columns(), nil
}

// writeFileAtomic writes data next to target and renames it into place.
func writeFileAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// ============================================================================
// Disabled cache
// ============================================================================

type noopProfileCache struct{}

// NewNoopProfileCache returns a cache that never hits.
func NewNoopProfileCache() ProfileCache { return noopProfileCache{} }

func (noopProfileCache) Get(context.Context, sources.Source) (*FileAnalysis, *models.Warning) {
	return nil, nil
}

func (noopProfileCache) Put(sources.Source, *FileAnalysis) error { return nil }
