package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/config"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/sources"
)

func newTestAnalyzer(t *testing.T) FileAnalyzer {
	t.Helper()
	conv := config.DefaultConventions()
	profiler := newTestProfiler()
	classifier, err := NewTableClassifier(conv, profiler, zap.NewNop())
	require.NoError(t, err)
	return NewFileAnalyzer(
		profiler,
		classifier,
		NewForeignKeyMapper(conv, zap.NewNop()),
		NewReferenceExtractor(conv, zap.NewNop()),
		sources.DefaultEncodings,
		1000,
		zap.NewNop(),
	)
}

var productionColumns = []string{"Area Code", "Area", "Item Code", "Item", "Element Code", "Element", "Year", "Unit", "Value"}

func productionSource(rows ...[]string) sources.Source {
	return sources.NewMemorySource("Production_E_All_Data_(Normalized).csv", productionColumns, rows)
}

func TestFileAnalyzer_FactTable(t *testing.T) {
	a := newTestAnalyzer(t)
	src := productionSource(
		[]string{"1", "Algeria", "15", "Wheat", "5510", "Production", "2019", "t", "1.5"},
		[]string{"2", "Albania", "15", "Wheat", "5510", "Production", "2019", "t", "2"},
		[]string{"1", "Algeria", "56", "Maize", "5510", "Production", "2020", "t", "3.25"},
	)

	analysis, err := a.Analyze(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, models.TableRoleFact, analysis.Classification.Role)
	assert.True(t, analysis.Classification.FactByName)
	assert.Equal(t, int64(3), analysis.RowCount)
	assert.Equal(t, src.Fingerprint(), analysis.Fingerprint)
	assert.Equal(t, sources.EncodingUTF8, analysis.Encoding)

	require.Len(t, analysis.Profiles, len(productionColumns))
	value := analysis.Profiles[8]
	assert.Equal(t, "Value", value.CSVName)
	assert.Equal(t, "value_", value.SQLName)
	assert.Equal(t, models.ColumnTypeFloat, value.InferredType)
	assert.Equal(t, models.ColumnTypeString, analysis.Profiles[0].InferredType, "code columns stay strings")

	areaCols, ok := analysis.Match.Entity("area")
	require.True(t, ok)
	assert.Equal(t, "Area Code", areaCols.KeyColumn)
	assert.Equal(t, "Area", areaCols.DescriptionColumn)

	var areaObs []EntityObservation
	for _, o := range analysis.Observations {
		if o.EntityType == "area" {
			areaObs = o.Items
		}
	}
	require.Len(t, areaObs, 2)
	assert.Equal(t, "1", areaObs[0].NaturalKey)
	assert.Equal(t, "Algeria", areaObs[0].Variation.Description)
	assert.Empty(t, analysis.Warnings)
}

func TestFileAnalyzer_ReferenceTable(t *testing.T) {
	a := newTestAnalyzer(t)
	src := sources.NewMemorySource("area_codes.csv", []string{"Area Code", "Area"}, [][]string{
		{"1", "Algeria"},
		{"2", "Albania"},
	})

	analysis, err := a.Analyze(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, models.TableRoleReference, analysis.Classification.Role)
	assert.Equal(t, "Area Code", analysis.Classification.PrimaryKeyColumn)
}

func TestFileAnalyzer_SuspiciousHeader(t *testing.T) {
	a := newTestAnalyzer(t)
	src := sources.NewMemorySource("odd.csv", []string{"Name", "1' OR '1'='1"}, [][]string{{"a", "b"}})

	analysis, err := a.Analyze(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, analysis.Warnings, 1)
	assert.Equal(t, models.WarningSuspiciousHeader, analysis.Warnings[0].Kind)
	assert.Equal(t, "col_1_or_1_1", analysis.Profiles[1].SQLName)
}

func TestFileAnalyzer_Unreadable(t *testing.T) {
	a := NewFileAnalyzer(newTestProfiler(), newTestClassifier(t),
		newTestMapper(), NewReferenceExtractor(config.DefaultConventions(), zap.NewNop()),
		[]sources.Encoding{sources.EncodingUTF8}, 10, zap.NewNop())
	src := sources.NewBytesSource("bad.csv", []byte("Name,Value\nC\xf4te,1\n"))

	_, err := a.Analyze(context.Background(), src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnreadableInput))
}

func TestFileAnalyzer_SampleLimit(t *testing.T) {
	a := NewFileAnalyzer(newTestProfiler(), newTestClassifier(t),
		newTestMapper(), NewReferenceExtractor(config.DefaultConventions(), zap.NewNop()),
		sources.DefaultEncodings, 2, zap.NewNop())
	src := sources.NewMemorySource("t.csv", []string{"Name", "Value"}, [][]string{
		{"a", "1"}, {"b", "2"}, {"c", "x"},
	})

	analysis, err := a.Analyze(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, int64(3), analysis.RowCount)
	assert.Equal(t, 2, analysis.Profiles[1].NonNullCount)
	assert.Equal(t, models.ColumnTypeInteger, analysis.Profiles[1].InferredType)
}
