package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// fileWatermarkRepository keeps watermarks in one JSON document, rewritten
// atomically (temp file + rename) on every save.
type fileWatermarkRepository struct {
	path string
	mu   sync.Mutex
}

// NewFileWatermarkRepository stores watermarks in the JSON file at path.
func NewFileWatermarkRepository(path string) WatermarkRepository {
	return &fileWatermarkRepository{path: path}
}

type watermarkDocument struct {
	Watermarks []models.Watermark `json:"watermarks"`
}

func (r *fileWatermarkRepository) load() (map[string]models.Watermark, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]models.Watermark{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read watermarks: %w", err)
	}

	var doc watermarkDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrWatermarkCorrupt, r.path, err)
	}

	byKey := make(map[string]models.Watermark, len(doc.Watermarks))
	for _, wm := range doc.Watermarks {
		byKey[watermarkKey(wm.RunFingerprint, wm.Table)] = wm
	}
	return byKey, nil
}

func (r *fileWatermarkRepository) store(byKey map[string]models.Watermark) error {
	doc := watermarkDocument{Watermarks: make([]models.Watermark, 0, len(byKey))}
	for _, wm := range byKey {
		doc.Watermarks = append(doc.Watermarks, wm)
	}
	sort.Slice(doc.Watermarks, func(i, j int) bool {
		a, b := doc.Watermarks[i], doc.Watermarks[j]
		if a.RunFingerprint != b.RunFingerprint {
			return a.RunFingerprint < b.RunFingerprint
		}
		return a.Table < b.Table
	})

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode watermarks: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create watermark dir: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write watermarks: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace watermarks: %w", err)
	}
	return nil
}

func (r *fileWatermarkRepository) Get(_ context.Context, runFingerprint, table string) (*models.Watermark, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byKey, err := r.load()
	if err != nil {
		return nil, err
	}
	if wm, ok := byKey[watermarkKey(runFingerprint, table)]; ok {
		return &wm, nil
	}
	return &models.Watermark{RunFingerprint: runFingerprint, Table: table}, nil
}

func (r *fileWatermarkRepository) Save(_ context.Context, wm *models.Watermark) error {
	if wm.NextChunk < 0 {
		return fmt.Errorf("%w: negative chunk %d for %s", apperrors.ErrWatermarkCorrupt, wm.NextChunk, wm.Table)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byKey, err := r.load()
	if err != nil {
		return err
	}
	byKey[watermarkKey(wm.RunFingerprint, wm.Table)] = *wm
	return r.store(byKey)
}

func (r *fileWatermarkRepository) Clear(_ context.Context, runFingerprint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byKey, err := r.load()
	if err != nil {
		return err
	}
	for k, wm := range byKey {
		if wm.RunFingerprint == runFingerprint {
			delete(byKey, k)
		}
	}
	return r.store(byKey)
}

func watermarkKey(runFingerprint, table string) string {
	return runFingerprint + "\x00" + table
}

var _ WatermarkRepository = (*fileWatermarkRepository)(nil)
