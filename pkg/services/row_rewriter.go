package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/logging"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/repositories"
	"github.com/ekaya-inc/ekaya-ingest/pkg/sources"
)

// maxUnmatchedSampleRows bounds the row numbers kept per unmatched description.
const maxUnmatchedSampleRows = 5

// ============================================================================
// Conflict index
// ============================================================================

type resolvedConflict struct {
	conflict *models.Conflict
	// byDescription maps a normalised description to the first variation index carrying it.
	byDescription map[string]int
}

// ConflictIndex looks up resolved conflicts by entity type and natural key.
type ConflictIndex struct {
	entries map[string]map[string]*resolvedConflict
}

// NewConflictIndex indexes conflicts after synthetic keys have been assigned.
func NewConflictIndex(conflicts []models.Conflict) *ConflictIndex {
	idx := &ConflictIndex{entries: make(map[string]map[string]*resolvedConflict)}
	for i := range conflicts {
		c := &conflicts[i]
		byKey := idx.entries[c.EntityType]
		if byKey == nil {
			byKey = make(map[string]*resolvedConflict)
			idx.entries[c.EntityType] = byKey
		}
		rc := &resolvedConflict{conflict: c, byDescription: make(map[string]int, len(c.Variations))}
		for vi, v := range c.Variations {
			norm := NormalizeDescription(v.Description)
			if _, ok := rc.byDescription[norm]; !ok {
				rc.byDescription[norm] = vi
			}
		}
		byKey[c.NaturalKey] = rc
	}
	return idx
}

// HasEntity reports whether any natural key of the entity is in conflict.
func (x *ConflictIndex) HasEntity(entityType string) bool {
	return len(x.entries[entityType]) > 0
}

func (x *ConflictIndex) lookup(entityType, naturalKey string) *resolvedConflict {
	return x.entries[entityType][naturalKey]
}

// ============================================================================
// Row rewriter
// ============================================================================

// RewriteInput is one fact table to stream through the rewriter.
type RewriteInput struct {
	Table    *models.TableSpec
	Source   sources.Source
	Encoding sources.Encoding
}

// RewriteStats summarises one rewritten table. Stats cover every row, including
// rows in chunks that a previous attempt already wrote.
type RewriteStats struct {
	Table         string
	Rows          int64
	Rewritten     int64
	Chunks        int
	ChunksSkipped int
	Unmatched     []models.UnmatchedVariation
	UnmatchedRows int64
	Warnings      []models.Warning
}

// RowRewriter streams a fact table, moves foreign keys of conflicting variations
// to their synthetic keys, and writes the result in durable chunks.
type RowRewriter interface {
	Rewrite(ctx context.Context, runFingerprint string, in RewriteInput, index *ConflictIndex) (*RewriteStats, error)
}

// RowRewriterConfig configures chunked output.
type RowRewriterConfig struct {
	OutputDir string
	ChunkSize int
}

type rowRewriter struct {
	cfg         RowRewriterConfig
	conventions *models.NamingConventions
	watermarks  repositories.WatermarkRepository
	logger      *zap.Logger
}

func NewRowRewriter(
	cfg RowRewriterConfig,
	conventions *models.NamingConventions,
	watermarks repositories.WatermarkRepository,
	logger *zap.Logger,
) RowRewriter {
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = 50000
	}
	return &rowRewriter{
		cfg:         cfg,
		conventions: conventions,
		watermarks:  watermarks,
		logger:      logger.Named("row-rewriter"),
	}
}

// ChunkFileName names the output file of one chunk.
func ChunkFileName(table string, chunk int) string {
	return fmt.Sprintf("%s.part-%05d.csv", table, chunk)
}

type unmatchedKey struct{ entity, key, desc string }

type rewriteRun struct {
	table      *models.TableSpec
	index      *ConflictIndex
	bindings   []models.ForeignKeyBinding
	formatting map[string]models.ValueFormatting
	extensions []string
	output     []models.ColumnProfile

	stats     *RewriteStats
	unmatched map[unmatchedKey]*models.UnmatchedVariation
	order     []unmatchedKey
	warned    map[string]bool
}

func (r *rowRewriter) Rewrite(ctx context.Context, runFingerprint string, in RewriteInput, index *ConflictIndex) (*RewriteStats, error) {
	table := in.Table
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	wm, err := r.watermarks.Get(ctx, runFingerprint, table.Name)
	if err != nil {
		return nil, fmt.Errorf("load watermark for %s: %w", table.Name, err)
	}

	run := &rewriteRun{
		table:      table,
		index:      index,
		bindings:   table.ForeignKeys,
		formatting: make(map[string]models.ValueFormatting),
		output:     table.OutputColumns(),
		stats:      &RewriteStats{Table: table.Name},
		unmatched:  make(map[unmatchedKey]*models.UnmatchedVariation),
		warned:     make(map[string]bool),
	}
	for _, b := range run.bindings {
		if def, ok := r.conventions.Entity(b.EntityType); ok {
			run.formatting[b.EntityType] = def.Formatting
		}
		run.extensions = append(run.extensions, b.FactColumn)
	}

	it, err := in.Source.Open(ctx, in.Encoding)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", in.Source.Identity(), err)
	}
	defer it.Close()

	header := make([]string, len(run.output))
	for i, c := range run.output {
		header[i] = c.SQLName
	}

	// Rows already covered by the watermark are re-read for statistics but not
	// re-emitted. Resuming by row count keeps output intact when the chunk size
	// changed between attempts.
	var (
		chunk   = wm.NextChunk
		pending [][]string
		written = wm.RowsWritten
	)
	run.stats.ChunksSkipped = wm.NextChunk
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := r.writeChunk(table.Name, chunk, header, pending); err != nil {
			return err
		}
		written += int64(len(pending))
		chunk++
		pending = pending[:0]
		return r.watermarks.Save(ctx, &models.Watermark{
			RunFingerprint: runFingerprint,
			Table:          table.Name,
			NextChunk:      chunk,
			RowsWritten:    written,
		})
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", table.Name, run.stats.Rows+1, err)
		}
		run.stats.Rows++

		hybrid, changed := run.rewrite(row)
		if changed {
			run.stats.Rewritten++
		}
		if run.stats.Rows <= wm.RowsWritten {
			continue
		}
		values := make([]string, len(run.output))
		for i, c := range run.output {
			values[i] = hybrid.String(c.CSVName)
		}
		pending = append(pending, values)

		if len(pending) >= r.cfg.ChunkSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	run.stats.Chunks = chunk

	removed, err := r.removeStaleChunks(table.Name, chunk)
	if err != nil {
		return nil, err
	}

	for _, k := range run.order {
		run.stats.Unmatched = append(run.stats.Unmatched, *run.unmatched[k])
	}

	r.logger.Info("Rewrote fact table",
		zap.String("table", table.Name),
		zap.Int64("rows", run.stats.Rows),
		zap.Int64("rewritten", run.stats.Rewritten),
		zap.Int64("unmatched", run.stats.UnmatchedRows),
		zap.Int("chunks", run.stats.Chunks),
		zap.Int("chunks_skipped", run.stats.ChunksSkipped),
		zap.Int("stale_chunks_removed", removed))

	return run.stats, nil
}

// rewrite resolves every bound foreign key of one row and reports whether any
// key moved to a synthetic key.
func (run *rewriteRun) rewrite(row models.Row) (*models.HybridRow, bool) {
	hybrid := models.NewHybridRow(row, run.extensions)
	changed := false
	for _, b := range run.bindings {
		raw := row.Get(b.FactColumn)
		key := raw
		if !IsNullToken(raw) {
			key = FormatKey(run.formatting[b.EntityType], raw)
		}
		hybrid.SetExtension(b.FactColumn, key)

		rc := run.index.lookup(b.EntityType, key)
		if rc == nil {
			continue
		}

		if b.DescriptionColumn == "" {
			run.warnOnce(b, models.Warning{
				Kind:   models.WarningAmbiguousConflict,
				Source: run.table.SourceIdentity,
				Column: b.FactColumn,
				Detail: fmt.Sprintf("no description column to disambiguate conflicting %s keys; rows keep the natural key", b.EntityType),
			})
			continue
		}

		// A blank description cannot be matched to any variation.
		desc := row.Get(b.DescriptionColumn)
		if IsTrivialDescription(desc) {
			run.recordUnmatched(b.EntityType, key, desc, row.Number)
			continue
		}
		vi, ok := rc.byDescription[NormalizeDescription(desc)]
		if !ok {
			run.recordUnmatched(b.EntityType, key, desc, row.Number)
			continue
		}
		resolved := rc.conflict.KeyFor(vi)
		if resolved != key {
			hybrid.SetExtension(b.FactColumn, resolved)
			changed = true
		}
	}
	return hybrid, changed
}

func (run *rewriteRun) warnOnce(b models.ForeignKeyBinding, w models.Warning) {
	if run.warned[b.EntityType] {
		return
	}
	run.warned[b.EntityType] = true
	run.stats.Warnings = append(run.stats.Warnings, w)
}

func (run *rewriteRun) recordUnmatched(entityType, key, desc string, rowNumber int64) {
	run.stats.UnmatchedRows++
	k := unmatchedKey{entityType, key, desc}
	u, ok := run.unmatched[k]
	if !ok {
		u = &models.UnmatchedVariation{
			FactTable:   run.table.Name,
			EntityType:  entityType,
			NaturalKey:  key,
			Description: desc,
		}
		run.unmatched[k] = u
		run.order = append(run.order, k)
	}
	u.RowCount++
	if len(u.SampleRows) < maxUnmatchedSampleRows {
		u.SampleRows = append(u.SampleRows, rowNumber)
	}
}

func (r *rowRewriter) writeChunk(table string, chunk int, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("encode chunk %d of %s: %w", chunk, table, err)
	}

	target := filepath.Join(r.cfg.OutputDir, ChunkFileName(table, chunk))
	if err := writeFileAtomic(target, buf.Bytes()); err != nil {
		return fmt.Errorf("write chunk %d of %s: %w", chunk, table, err)
	}

	r.logger.Debug("Wrote chunk",
		zap.String("table", table),
		zap.Int("chunk", chunk),
		zap.Int("rows", len(rows)),
		zap.String("first_cell", firstCell(rows)))
	return nil
}

// removeStaleChunks deletes chunk files numbered from next upward, left by an
// earlier run that produced more chunks.
func (r *rowRewriter) removeStaleChunks(table string, next int) (int, error) {
	removed := 0
	for i := next; ; i++ {
		err := os.Remove(filepath.Join(r.cfg.OutputDir, ChunkFileName(table, i)))
		if errors.Is(err, fs.ErrNotExist) {
			return removed, nil
		}
		if err != nil {
			return removed, fmt.Errorf("remove stale chunk %d of %s: %w", i, table, err)
		}
		removed++
	}
}

func firstCell(rows [][]string) string {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return ""
	}
	return logging.SanitizeValue(rows[0][0])
}
