package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/config"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/repositories"
	"github.com/ekaya-inc/ekaya-ingest/pkg/sources"
	"github.com/ekaya-inc/ekaya-ingest/pkg/sql"
	"github.com/ekaya-inc/ekaya-ingest/pkg/workerpool"
)

// runNamespace scopes deterministic run IDs.
var runNamespace = uuid.MustParse("6f1c8e1e-4a55-4d0b-9a57-0b6f0c6d2a11")

// Pipeline runs one schema inference over a fixed set of sources.
//
// Phase one analyses every file in parallel. After a barrier, reference merging,
// foreign key mapping, conflict detection, key resolution and row rewriting run
// once, in that order. Relationship scoring then fans out per fact table.
type Pipeline struct {
	cfg         *config.Config
	conventions *models.NamingConventions
	cache       ProfileCache
	watermarks  repositories.WatermarkRepository

	analyzer  FileAnalyzer
	extractor ReferenceExtractor
	mapper    ForeignKeyMapper
	detector  ConflictDetector
	resolver  SyntheticKeyResolver
	rewriter  RowRewriter
	scorer    RelationshipScorer
	graph     GraphSchemaBuilder
	pool      *workerpool.Pool

	logger *zap.Logger
}

// NewPipeline wires every component from cfg. cache and watermarks may be nil:
// a nil cache disables caching, nil watermarks disables row rewriting.
func NewPipeline(
	cfg *config.Config,
	conventions *models.NamingConventions,
	cache ProfileCache,
	watermarks repositories.WatermarkRepository,
	logger *zap.Logger,
) (*Pipeline, error) {
	if cache == nil {
		cache = NewNoopProfileCache()
	}

	profiler := NewColumnProfiler(conventions.StringColumnTokens, cfg.Profiling.SampleValues, logger)
	classifier, err := NewTableClassifier(conventions, profiler, logger)
	if err != nil {
		return nil, err
	}
	mapper := NewForeignKeyMapper(conventions, logger)
	extractor := NewReferenceExtractor(conventions, logger)

	p := &Pipeline{
		cfg:         cfg,
		conventions: conventions,
		cache:       cache,
		watermarks:  watermarks,
		analyzer:    NewFileAnalyzer(profiler, classifier, mapper, extractor, sources.DefaultEncodings, cfg.Profiling.SampleRows, logger),
		extractor:   extractor,
		mapper:      mapper,
		detector:    NewConflictDetector(NewDescriptionMatcher(cfg.Similarity.CharRatio, cfg.Similarity.WordOverlap), logger),
		resolver:    NewSyntheticKeyResolver(logger),
		scorer:      NewRelationshipScorer(cfg.Scoring, conventions, logger),
		graph:       NewGraphSchemaBuilder(conventions, logger),
		pool:        workerpool.New(workerpool.Config{MaxConcurrent: cfg.Profiling.Workers}, logger),
		logger:      logger.Named("pipeline"),
	}
	if watermarks != nil && !cfg.Rewrite.Disabled {
		p.rewriter = NewRowRewriter(RowRewriterConfig{
			OutputDir: cfg.OutputDir,
			ChunkSize: cfg.Rewrite.ChunkSize,
		}, conventions, watermarks, logger)
	}
	return p, nil
}

// analyzedSource pairs a source with its phase-one result.
type analyzedSource struct {
	source   sources.Source
	analysis *FileAnalysis
	table    *models.TableSpec
}

// Run executes the pipeline. Only synthetic key exhaustion, cancellation and
// failures of the watermark store or output directory are returned as errors;
// bad input is reported in the audit section of the result.
func (p *Pipeline) Run(ctx context.Context, srcs []sources.Source) (*models.RunResult, *RunMetrics, error) {
	start := time.Now()
	metrics := NewRunMetrics()
	audit := NewAuditCollector(p.logger)

	ordered := append([]sources.Source(nil), srcs...)
	sources.SortSources(ordered)
	inputFingerprint := InputFingerprint(ordered)

	p.logger.Info("Starting run",
		zap.Int("sources", len(ordered)),
		zap.String("input_fingerprint", inputFingerprint))

	// Phase 1: per-file analysis.
	analyzed, err := p.analyzeAll(ctx, ordered, metrics, audit)
	if err != nil {
		return nil, metrics, err
	}

	// Phase 2: everything below sees the complete set of files.
	tables := p.buildTables(analyzed, audit)

	files := make([]ExtractedFile, len(analyzed))
	for i, a := range analyzed {
		files[i] = ExtractedFile{
			Identity:     a.analysis.Identity,
			Table:        a.table.Name,
			Role:         a.table.Role,
			Observations: a.analysis.Observations,
		}
	}
	entities := p.extractor.Merge(files)

	for _, t := range tables {
		audit.WarnAll(p.mapper.MapTable(t))
	}

	report := p.detector.Detect(entities)
	metrics.Conflicts.Add(float64(len(report.Conflicts)))

	gen, err := NewSequenceGenerator(p.cfg.SyntheticKeys.Seed, p.cfg.SyntheticKeys.Ceiling, observedKeys(entities))
	if err != nil {
		return nil, metrics, err
	}
	assignments, err := p.resolver.Resolve(report.Conflicts, gen)
	if err != nil {
		return nil, metrics, err
	}
	metrics.SyntheticKeys.Add(float64(len(assignments)))
	audit.SyntheticKeys(assignments)

	index := NewConflictIndex(report.Conflicts)
	for _, t := range tables {
		for i := range t.ForeignKeys {
			t.ForeignKeys[i].ResolvedSurrogate = index.HasEntity(t.ForeignKeys[i].EntityType)
		}
	}

	if err := p.rewriteAll(ctx, inputFingerprint, analyzed, index, metrics, audit); err != nil {
		return nil, metrics, err
	}

	// Phase 3: relationship scoring, independent per fact table.
	var scoring []TableScoringInput
	for _, a := range analyzed {
		if a.table.Role == models.TableRoleFact {
			scoring = append(scoring, TableScoringInput{Table: a.table, Observations: a.analysis.Observations})
		}
	}
	relationships, err := p.scorer.ScoreAll(ctx, scoring)
	if err != nil {
		return nil, metrics, err
	}

	graph, err := p.graph.Build(tables, entities, assignments, relationships)
	if err != nil {
		return nil, metrics, err
	}

	result := &models.RunResult{
		RunID:            runID(analyzed),
		InputFingerprint: inputFingerprint,
		Tables:           tables,
		Entities:         summarizeEntities(entities),
		Conflicts:        nonNil(report.Conflicts),
		Similarities:     nonNil(report.Similarities),
		SyntheticKeys:    nonNil(assignments),
		Relationships:    nonNil(relationships),
		Graph:            graph,
		Audit:            audit.Report(),
	}
	sort.SliceStable(result.Tables, func(i, j int) bool { return result.Tables[i].Name < result.Tables[j].Name })

	p.logger.Info("Run complete",
		zap.String("run_id", result.RunID.String()),
		zap.Int("tables", len(result.Tables)),
		zap.Int("entities", len(result.Entities)),
		zap.Int("conflicts", len(result.Conflicts)),
		zap.Int("synthetic_keys", len(result.SyntheticKeys)),
		zap.Int("relationships", len(result.Relationships)),
		zap.Int("skipped_files", len(result.Audit.SkippedFiles)),
		zap.Duration("elapsed", time.Since(start)))

	return result, metrics, nil
}

// ============================================================================
// Phase 1
// ============================================================================

func (p *Pipeline) analyzeAll(ctx context.Context, ordered []sources.Source, metrics *RunMetrics, audit *AuditCollector) ([]*analyzedSource, error) {
	items := make([]workerpool.Item[*FileAnalysis], len(ordered))
	for i, src := range ordered {
		items[i] = workerpool.Item[*FileAnalysis]{
			ID: src.Identity(),
			Execute: func(ctx context.Context) (*FileAnalysis, error) {
				return p.analyzeOne(ctx, src, metrics, audit)
			},
		}
	}

	results := workerpool.Process(ctx, p.pool, items, func(completed, total int) {
		p.logger.Debug("Analysis progress", zap.Int("completed", completed), zap.Int("total", total))
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var analyzed []*analyzedSource
	for i, r := range results {
		if r.Err != nil {
			metrics.FilesSkipped.Inc()
			audit.SkipFile(r.ID, r.Err)
			continue
		}
		analyzed = append(analyzed, &analyzedSource{source: ordered[i], analysis: r.Result})
	}
	return analyzed, nil
}

func (p *Pipeline) analyzeOne(ctx context.Context, src sources.Source, metrics *RunMetrics, audit *AuditCollector) (*FileAnalysis, error) {
	cached, warn := p.cache.Get(ctx, src)
	if warn != nil {
		audit.Warn(*warn)
	}
	if cached != nil {
		metrics.FilesCached.Inc()
		audit.CachedFile(src.Identity())
		return cached, nil
	}

	start := time.Now()
	analysis, err := p.analyzer.Analyze(ctx, src)
	if err != nil {
		return nil, err
	}
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	metrics.FilesAnalyzed.Inc()

	if err := p.cache.Put(src, analysis); err != nil {
		p.logger.Warn("Failed to cache analysis", zap.String("source", src.Identity()), zap.Error(err))
	}
	return analysis, nil
}

// ============================================================================
// Phase 2
// ============================================================================

// buildTables creates one table spec per analysed file. Table names derive from
// the identity; collisions get a numeric suffix in discovery order.
func (p *Pipeline) buildTables(analyzed []*analyzedSource, audit *AuditCollector) []*models.TableSpec {
	used := make(map[string]bool, len(analyzed))
	tables := make([]*models.TableSpec, 0, len(analyzed))
	for _, a := range analyzed {
		base := sql.ToTableName(a.analysis.Identity)
		name := base
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[name] = true

		cls := a.analysis.Classification
		a.table = &models.TableSpec{
			Name:             name,
			SourceIdentity:   a.analysis.Identity,
			SourceFilePath:   a.source.Path(),
			Role:             cls.Role,
			Columns:          append([]models.ColumnProfile(nil), a.analysis.Profiles...),
			PrimaryKeyColumn: cls.PrimaryKeyColumn,
			RowCount:         a.analysis.RowCount,
			ReferenceScore:   cls.Score,
		}
		tables = append(tables, a.table)
		audit.WarnAll(a.analysis.Warnings)
	}
	return tables
}

func (p *Pipeline) rewriteAll(
	ctx context.Context,
	inputFingerprint string,
	analyzed []*analyzedSource,
	index *ConflictIndex,
	metrics *RunMetrics,
	audit *AuditCollector,
) error {
	if p.rewriter == nil {
		return nil
	}
	for _, a := range analyzed {
		if a.table.Role != models.TableRoleFact || !affected(a.table, index) {
			continue
		}
		stats, err := p.rewriter.Rewrite(ctx, inputFingerprint, RewriteInput{
			Table:    a.table,
			Source:   a.source,
			Encoding: a.analysis.Encoding,
		}, index)
		if err != nil {
			return fmt.Errorf("rewrite %s: %w", a.table.Name, err)
		}
		metrics.RowsRewritten.Add(float64(stats.Rewritten))
		metrics.UnmatchedRows.Add(float64(stats.UnmatchedRows))
		audit.UnmatchedVariations(stats.Unmatched)
		audit.WarnAll(stats.Warnings)
	}
	return nil
}

func affected(t *models.TableSpec, index *ConflictIndex) bool {
	for _, fk := range t.ForeignKeys {
		if index.HasEntity(fk.EntityType) {
			return true
		}
	}
	return false
}

// observedKeys lists every natural key of every entity, so minted keys never collide with them.
func observedKeys(entities []*models.ReferenceEntity) []string {
	var keys []string
	for _, e := range entities {
		keys = append(keys, e.Keys...)
	}
	return keys
}

func summarizeEntities(entities []*models.ReferenceEntity) []models.EntitySummary {
	out := make([]models.EntitySummary, 0, len(entities))
	for _, e := range entities {
		out = append(out, models.EntitySummary{
			EntityType:     e.EntityType,
			KeyCount:       len(e.Keys),
			VariationCount: e.VariationCount(),
			FactTables:     nonNil(e.FactTables),
		})
	}
	return out
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

// ============================================================================
// Run identity
// ============================================================================

// InputFingerprint identifies the exact input set, including modification
// state. Watermarks are keyed by it, so edited inputs never resume a stale run.
func InputFingerprint(ordered []sources.Source) string {
	h := sha256.New()
	for _, s := range ordered {
		fmt.Fprintf(h, "%s\x00%s\n", s.Identity(), s.Fingerprint())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// runID derives a stable identifier from file identities, sizes and column sets.
func runID(analyzed []*analyzedSource) uuid.UUID {
	var b strings.Builder
	for _, a := range analyzed {
		fmt.Fprintf(&b, "%s\x00%d\x00%s\n", a.analysis.Identity, a.source.Size(), strings.Join(a.analysis.Columns, "\x1f"))
	}
	return uuid.NewSHA1(runNamespace, []byte(b.String()))
}
