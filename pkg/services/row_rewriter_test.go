package services

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/config"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/repositories"
	"github.com/ekaya-inc/ekaya-ingest/pkg/sources"
)

// failingWatermarks fails the nth Save, simulating a crash between chunks.
type failingWatermarks struct {
	repositories.WatermarkRepository
	failOn int
	saves  int
}

func (f *failingWatermarks) Save(ctx context.Context, wm *models.Watermark) error {
	f.saves++
	if f.saves == f.failOn {
		return errors.New("interrupted")
	}
	return f.WatermarkRepository.Save(ctx, wm)
}

func areaConflictIndex() *ConflictIndex {
	return NewConflictIndex([]models.Conflict{{
		EntityType: "area",
		NaturalKey: "1",
		Variations: []models.ReferenceVariation{
			{Description: "Algeria", SourceDataset: "a.csv"},
			{Description: "Afghanistan", SourceDataset: "b.csv"},
		},
		Clusters:     []int{0, 1},
		AssignedKeys: map[int]string{0: "1", 1: "1000000000"},
	}})
}

func productionTable(descColumn string) *models.TableSpec {
	return &models.TableSpec{
		Name:           "production",
		SourceIdentity: "production.csv",
		Role:           models.TableRoleFact,
		Columns: []models.ColumnProfile{
			{CSVName: "Area Code", SQLName: "area_code"},
			{CSVName: "Area", SQLName: "area"},
			{CSVName: "Value", SQLName: "value_"},
		},
		ForeignKeys: []models.ForeignKeyBinding{
			{FactColumn: "Area Code", EntityType: "area", MatchedEntityColumn: "Area Code", DescriptionColumn: descColumn},
		},
		ExcludedColumns: []string{"Area"},
	}
}

func productionRows() sources.Source {
	return sources.NewMemorySource("production.csv", []string{"Area Code", "Area", "Value"}, [][]string{
		{"1", "Algeria", "10"},
		{"1", "Afghanistan ", "20"},
		{"'2", "Albania", "30"},
		{"1", "Atlantis", "40"},
		{"1", "", "50"},
	})
}

func readChunks(t *testing.T, dir, table string) [][]string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, table+".part-*.csv"))
	require.NoError(t, err)

	var rows [][]string
	for _, f := range files {
		fh, err := os.Open(f)
		require.NoError(t, err)
		records, err := csv.NewReader(fh).ReadAll()
		fh.Close()
		require.NoError(t, err)
		require.NotEmpty(t, records)
		assert.Equal(t, []string{"area_code", "value_"}, records[0])
		rows = append(rows, records[1:]...)
	}
	return rows
}

func newTestRewriter(dir string, wm repositories.WatermarkRepository) RowRewriter {
	return NewRowRewriter(RowRewriterConfig{OutputDir: dir, ChunkSize: 2}, config.DefaultConventions(), wm, zap.NewNop())
}

func TestRowRewriter_Rewrite(t *testing.T) {
	dir := t.TempDir()
	wm := repositories.NewFileWatermarkRepository(filepath.Join(dir, "watermarks.json"))
	rw := newTestRewriter(dir, wm)

	stats, err := rw.Rewrite(context.Background(), "run-1", RewriteInput{
		Table:    productionTable("Area"),
		Source:   productionRows(),
		Encoding: sources.EncodingUTF8,
	}, areaConflictIndex())
	require.NoError(t, err)

	assert.Equal(t, int64(5), stats.Rows)
	assert.Equal(t, int64(1), stats.Rewritten)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 0, stats.ChunksSkipped)
	assert.Equal(t, int64(2), stats.UnmatchedRows)
	assert.Equal(t, []models.UnmatchedVariation{
		{
			FactTable:   "production",
			EntityType:  "area",
			NaturalKey:  "1",
			Description: "Atlantis",
			RowCount:    1,
			SampleRows:  []int64{4},
		},
		{
			FactTable:  "production",
			EntityType: "area",
			NaturalKey: "1",
			RowCount:   1,
			SampleRows: []int64{5},
		},
	}, stats.Unmatched)

	assert.Equal(t, [][]string{
		{"1", "10"},
		{"1000000000", "20"},
		{"2", "30"},
		{"1", "40"},
		{"1", "50"},
	}, readChunks(t, dir, "production"))

	saved, err := wm.Get(context.Background(), "run-1", "production")
	require.NoError(t, err)
	assert.Equal(t, 3, saved.NextChunk)
	assert.Equal(t, int64(5), saved.RowsWritten)
}

func TestRowRewriter_ResumeMatchesUninterruptedRun(t *testing.T) {
	ctx := context.Background()
	input := RewriteInput{Table: productionTable("Area"), Source: productionRows(), Encoding: sources.EncodingUTF8}

	cleanDir := t.TempDir()
	_, err := newTestRewriter(cleanDir, repositories.NewFileWatermarkRepository(filepath.Join(cleanDir, "wm.json"))).
		Rewrite(ctx, "run-1", input, areaConflictIndex())
	require.NoError(t, err)
	expected := readChunks(t, cleanDir, "production")

	dir := t.TempDir()
	store := repositories.NewFileWatermarkRepository(filepath.Join(dir, "wm.json"))
	_, err = newTestRewriter(dir, &failingWatermarks{WatermarkRepository: store, failOn: 2}).
		Rewrite(ctx, "run-1", input, areaConflictIndex())
	require.Error(t, err)

	saved, err := store.Get(ctx, "run-1", "production")
	require.NoError(t, err)
	assert.Equal(t, 1, saved.NextChunk)

	stats, err := newTestRewriter(dir, store).Rewrite(ctx, "run-1", input, areaConflictIndex())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChunksSkipped)
	assert.Equal(t, int64(5), stats.Rows)
	assert.Equal(t, int64(1), stats.Rewritten)

	assert.Equal(t, expected, readChunks(t, dir, "production"))

	saved, err = store.Get(ctx, "run-1", "production")
	require.NoError(t, err)
	assert.Equal(t, int64(5), saved.RowsWritten)
}

func TestRowRewriter_BlankDescriptionIsUnmatched(t *testing.T) {
	dir := t.TempDir()
	rw := newTestRewriter(dir, repositories.NewFileWatermarkRepository(filepath.Join(dir, "wm.json")))
	src := sources.NewMemorySource("production.csv", []string{"Area Code", "Area", "Value"}, [][]string{
		{"1", "", "5"},
		{"1", "  ", "6"},
		{"2", "", "7"},
	})

	stats, err := rw.Rewrite(context.Background(), "run-1", RewriteInput{
		Table:    productionTable("Area"),
		Source:   src,
		Encoding: sources.EncodingUTF8,
	}, areaConflictIndex())
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.UnmatchedRows, "only keys in conflict are flagged")
	require.Len(t, stats.Unmatched, 2)
	assert.Equal(t, "", stats.Unmatched[0].Description)
	assert.Equal(t, []int64{1}, stats.Unmatched[0].SampleRows)
	assert.Equal(t, "  ", stats.Unmatched[1].Description)
	assert.Equal(t, [][]string{{"1", "5"}, {"1", "6"}, {"2", "7"}}, readChunks(t, dir, "production"))
}

func eightProductionRows() sources.Source {
	var rows [][]string
	for i, desc := range []string{"Algeria", "Afghanistan", "Algeria", "Afghanistan", "Algeria", "Afghanistan", "Algeria", "Afghanistan"} {
		rows = append(rows, []string{"1", desc, strconv.Itoa(i + 1)})
	}
	return sources.NewMemorySource("production.csv", []string{"Area Code", "Area", "Value"}, rows)
}

func TestRowRewriter_ResumeWithDifferentChunkSize(t *testing.T) {
	tests := []struct {
		name        string
		firstChunk  int
		failOn      int
		resumeChunk int
	}{
		{name: "smaller chunks on resume", firstChunk: 4, failOn: 2, resumeChunk: 2},
		{name: "larger chunks on resume", firstChunk: 2, failOn: 3, resumeChunk: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			input := RewriteInput{Table: productionTable("Area"), Source: eightProductionRows(), Encoding: sources.EncodingUTF8}
			newRewriter := func(dir string, chunkSize int, wm repositories.WatermarkRepository) RowRewriter {
				return NewRowRewriter(RowRewriterConfig{OutputDir: dir, ChunkSize: chunkSize}, config.DefaultConventions(), wm, zap.NewNop())
			}

			cleanDir := t.TempDir()
			_, err := newRewriter(cleanDir, tt.resumeChunk, repositories.NewFileWatermarkRepository(filepath.Join(cleanDir, "wm.json"))).
				Rewrite(ctx, "run-1", input, areaConflictIndex())
			require.NoError(t, err)
			expected := readChunks(t, cleanDir, "production")
			require.Len(t, expected, 8)

			dir := t.TempDir()
			store := repositories.NewFileWatermarkRepository(filepath.Join(dir, "wm.json"))
			_, err = newRewriter(dir, tt.firstChunk, &failingWatermarks{WatermarkRepository: store, failOn: tt.failOn}).
				Rewrite(ctx, "run-1", input, areaConflictIndex())
			require.Error(t, err)

			stats, err := newRewriter(dir, tt.resumeChunk, store).Rewrite(ctx, "run-1", input, areaConflictIndex())
			require.NoError(t, err)
			assert.Equal(t, int64(8), stats.Rows)
			assert.Equal(t, int64(4), stats.Rewritten)

			assert.Equal(t, expected, readChunks(t, dir, "production"))

			saved, err := store.Get(ctx, "run-1", "production")
			require.NoError(t, err)
			assert.Equal(t, int64(8), saved.RowsWritten)
		})
	}
}

func TestRowRewriter_RemovesStaleChunks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := repositories.NewFileWatermarkRepository(filepath.Join(dir, "wm.json"))
	input := RewriteInput{Table: productionTable("Area"), Source: productionRows(), Encoding: sources.EncodingUTF8}

	stats, err := newTestRewriter(dir, store).Rewrite(ctx, "run-1", input, areaConflictIndex())
	require.NoError(t, err)
	require.Equal(t, 3, stats.Chunks)

	larger := NewRowRewriter(RowRewriterConfig{OutputDir: dir, ChunkSize: 4}, config.DefaultConventions(), store, zap.NewNop())
	stats, err = larger.Rewrite(ctx, "run-2", input, areaConflictIndex())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Chunks)

	_, err = os.Stat(filepath.Join(dir, ChunkFileName("production", 2)))
	assert.True(t, os.IsNotExist(err))
	assert.Len(t, readChunks(t, dir, "production"), 5)
}

func TestRowRewriter_NoDescriptionColumn(t *testing.T) {
	dir := t.TempDir()
	rw := newTestRewriter(dir, repositories.NewFileWatermarkRepository(filepath.Join(dir, "wm.json")))

	stats, err := rw.Rewrite(context.Background(), "run-1", RewriteInput{
		Table:    productionTable(""),
		Source:   productionRows(),
		Encoding: sources.EncodingUTF8,
	}, areaConflictIndex())
	require.NoError(t, err)

	assert.Equal(t, int64(0), stats.Rewritten)
	require.Len(t, stats.Warnings, 1)
	assert.Equal(t, models.WarningAmbiguousConflict, stats.Warnings[0].Kind)
	assert.Equal(t, "1", readChunks(t, dir, "production")[1][0])
}

func TestConflictIndex(t *testing.T) {
	idx := areaConflictIndex()
	assert.True(t, idx.HasEntity("area"))
	assert.False(t, idx.HasEntity("item"))

	rc := idx.lookup("area", "1")
	require.NotNil(t, rc)
	assert.Equal(t, 1, rc.byDescription["afghanistan"])
	assert.Nil(t, idx.lookup("area", "2"))
}

func TestChunkFileName(t *testing.T) {
	assert.Equal(t, "trade.part-00012.csv", ChunkFileName("trade", 12))
}
