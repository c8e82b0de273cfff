package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// Output document names.
const (
	SchemaFile        = "schema.json"
	ConflictsFile     = "conflicts.json"
	RelationshipsFile = "relationships.json"
	AuditFile         = "audit.json"
)

// SchemaDocument is the relational and graph schema handed to code generation.
type SchemaDocument struct {
	RunID    uuid.UUID              `json:"run_id"`
	Tables   []*models.TableSpec    `json:"tables"`
	Entities []models.EntitySummary `json:"entities"`
	Graph    models.GraphSchema     `json:"graph"`
}

// ConflictsDocument is the resolved conflict and surrogate key table.
type ConflictsDocument struct {
	RunID         uuid.UUID                       `json:"run_id"`
	Conflicts     []models.Conflict               `json:"conflicts"`
	Similarities  []models.SimilarityGroup        `json:"similarities"`
	SyntheticKeys []models.SyntheticKeyAssignment `json:"synthetic_keys"`
}

// RelationshipsDocument holds the relationship-type classification results.
type RelationshipsDocument struct {
	RunID         uuid.UUID                      `json:"run_id"`
	Relationships []models.CandidateRelationship `json:"relationships"`
}

// WriteRunOutputs writes the four output documents of a run into dir.
func WriteRunOutputs(dir string, result *models.RunResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	docs := []struct {
		name string
		body any
	}{
		{SchemaFile, SchemaDocument{
			RunID:    result.RunID,
			Tables:   result.Tables,
			Entities: result.Entities,
			Graph:    result.Graph,
		}},
		{ConflictsFile, ConflictsDocument{
			RunID:         result.RunID,
			Conflicts:     result.Conflicts,
			Similarities:  result.Similarities,
			SyntheticKeys: result.SyntheticKeys,
		}},
		{RelationshipsFile, RelationshipsDocument{
			RunID:         result.RunID,
			Relationships: result.Relationships,
		}},
		{AuditFile, result.Audit},
	}

	for _, d := range docs {
		data, err := json.MarshalIndent(d.body, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", d.name, err)
		}
		data = append(data, '\n')
		if err := writeFileAtomic(filepath.Join(dir, d.name), data); err != nil {
			return fmt.Errorf("write %s: %w", d.name, err)
		}
	}
	return nil
}
