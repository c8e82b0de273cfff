package services

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// AuditCollector gathers recoverable problems from every phase of a run.
// Safe for concurrent use by the per-file analysis workers.
type AuditCollector struct {
	mu     sync.Mutex
	report models.AuditReport
	logger *zap.Logger
}

func NewAuditCollector(logger *zap.Logger) *AuditCollector {
	return &AuditCollector{logger: logger.Named("audit")}
}

// Warn records one warning. Unmatched foreign keys are also listed separately.
func (c *AuditCollector) Warn(w models.Warning) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Warn("Recovered data-quality problem",
		zap.String("kind", string(w.Kind)),
		zap.String("source", w.Source),
		zap.String("column", w.Column),
		zap.String("detail", w.Detail))

	c.report.Warnings = append(c.report.Warnings, w)
	if w.Kind == models.WarningUnmatchedForeignKey {
		c.report.UnmatchedColumns = append(c.report.UnmatchedColumns, w)
	}
}

// WarnAll records a batch of warnings.
func (c *AuditCollector) WarnAll(ws []models.Warning) {
	for _, w := range ws {
		c.Warn(w)
	}
}

// SkipFile records a source that could not be read, with the reason as a warning.
func (c *AuditCollector) SkipFile(identity string, err error) {
	c.mu.Lock()
	c.report.SkippedFiles = append(c.report.SkippedFiles, identity)
	c.mu.Unlock()

	c.Warn(models.Warning{
		Kind:   models.WarningUnreadableInput,
		Source: identity,
		Detail: err.Error(),
	})
}

// CachedFile records a source whose analysis was reused from the profile cache.
func (c *AuditCollector) CachedFile(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.CachedFiles = append(c.report.CachedFiles, identity)
}

func (c *AuditCollector) UnmatchedVariations(vs []models.UnmatchedVariation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.UnmatchedVariations = append(c.report.UnmatchedVariations, vs...)
}

func (c *AuditCollector) SyntheticKeys(keys []models.SyntheticKeyAssignment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.SyntheticKeys = append(c.report.SyntheticKeys, keys...)
}

// Report returns a sorted copy of everything collected so far.
func (c *AuditCollector) Report() models.AuditReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := models.AuditReport{
		SkippedFiles:        append([]string{}, c.report.SkippedFiles...),
		CachedFiles:         append([]string(nil), c.report.CachedFiles...),
		UnmatchedColumns:    append([]models.Warning{}, c.report.UnmatchedColumns...),
		UnmatchedVariations: append([]models.UnmatchedVariation{}, c.report.UnmatchedVariations...),
		SyntheticKeys:       append([]models.SyntheticKeyAssignment{}, c.report.SyntheticKeys...),
		Warnings:            append([]models.Warning{}, c.report.Warnings...),
	}
	r.Sort()
	return r
}
