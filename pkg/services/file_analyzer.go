package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/logging"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/sources"
	"github.com/ekaya-inc/ekaya-ingest/pkg/sql"
)

// FileAnalysis is everything phase one learns about a single source. It is a
// pure function of the file content, so it can be cached across runs.
type FileAnalysis struct {
	Identity       string                 `json:"identity"`
	Fingerprint    string                 `json:"fingerprint"`
	Encoding       sources.Encoding       `json:"encoding"`
	Columns        []string               `json:"columns"`
	Profiles       []models.ColumnProfile `json:"profiles"`
	Classification TableClassification    `json:"classification"`
	Match          ColumnMatch            `json:"match"`
	Observations   []EntityObservations   `json:"observations"`
	RowCount       int64                  `json:"row_count"`
	Warnings       []models.Warning       `json:"warnings,omitempty"`
}

// FileAnalyzer runs profiling, classification, column matching and reference
// collection over one source in a single pass.
type FileAnalyzer interface {
	Analyze(ctx context.Context, src sources.Source) (*FileAnalysis, error)
}

type fileAnalyzer struct {
	profiler   ColumnProfiler
	classifier TableClassifier
	mapper     ForeignKeyMapper
	extractor  ReferenceExtractor
	encodings  []sources.Encoding
	sampleRows int
	logger     *zap.Logger
}

func NewFileAnalyzer(
	profiler ColumnProfiler,
	classifier TableClassifier,
	mapper ForeignKeyMapper,
	extractor ReferenceExtractor,
	encodings []sources.Encoding,
	sampleRows int,
	logger *zap.Logger,
) FileAnalyzer {
	if sampleRows < 1 {
		sampleRows = 1000
	}
	return &fileAnalyzer{
		profiler:   profiler,
		classifier: classifier,
		mapper:     mapper,
		extractor:  extractor,
		encodings:  encodings,
		sampleRows: sampleRows,
		logger:     logger.Named("file-analyzer"),
	}
}

func (a *fileAnalyzer) Analyze(ctx context.Context, src sources.Source) (*FileAnalysis, error) {
	start := time.Now()

	var (
		columns   []string
		sample    [][]string
		rowCount  int64
		match     ColumnMatch
		collector *ObservationCollector
	)

	enc, err := sources.Scan(ctx, src, a.encodings, func(enc sources.Encoding, it sources.RowIterator) error {
		columns = it.Columns()
		sample = sample[:0]
		rowCount = 0
		match = a.mapper.Match(columns)
		collector = a.extractor.NewCollector(src.Identity(), match)

		for {
			if rowCount%10000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			row, err := it.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("row %d: %w", rowCount+1, err)
			}
			rowCount++
			if len(sample) < a.sampleRows {
				sample = append(sample, padRow(row.Values, len(columns)))
			}
			collector.Add(row)
		}
	})
	if err != nil {
		return nil, err
	}

	analysis := &FileAnalysis{
		Identity:     src.Identity(),
		Fingerprint:  src.Fingerprint(),
		Encoding:     enc,
		Columns:      columns,
		Profiles:     a.profileColumns(columns, sample),
		Match:        match,
		Observations: collector.Result(),
		RowCount:     rowCount,
	}
	analysis.Classification = a.classifier.Classify(src.Identity(), columns, sample)

	for _, hit := range sql.CheckHeaders(columns) {
		analysis.Warnings = append(analysis.Warnings, models.Warning{
			Kind:   models.WarningSuspiciousHeader,
			Source: src.Identity(),
			Column: hit.Header,
			Detail: fmt.Sprintf("header at position %d matches SQL injection fingerprint %s", hit.Position, hit.Fingerprint),
		})
	}

	a.logger.Info("Analyzed source",
		zap.String("source", src.Identity()),
		zap.String("encoding", string(enc)),
		zap.String("role", string(analysis.Classification.Role)),
		zap.Int("columns", len(columns)),
		zap.Int64("rows", rowCount),
		zap.Duration("elapsed", time.Since(start)))

	return analysis, nil
}

func (a *fileAnalyzer) profileColumns(columns []string, sample [][]string) []models.ColumnProfile {
	sqlNames := sql.ToSQLNames(columns)
	profiles := make([]models.ColumnProfile, len(columns))
	values := make([]string, len(sample))
	for ci, name := range columns {
		for ri, row := range sample {
			values[ri] = row[ci]
		}
		profiles[ci] = a.profiler.Profile(name, values)
		profiles[ci].SQLName = sqlNames[ci]
		if len(profiles[ci].SampleValues) > 0 {
			a.logger.Debug("Column sample",
				zap.String("column", name),
				zap.String("first_value", logging.SanitizeValue(profiles[ci].SampleValues[0])))
		}
	}
	return profiles
}

// padRow copies values, filling short rows with empty cells.
func padRow(values []string, width int) []string {
	out := make([]string, width)
	copy(out, values)
	return out
}
