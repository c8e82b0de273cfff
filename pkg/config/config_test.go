package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
env: "test"
input_dir: "/data/raw"
profiling:
  sample_rows: 500
  workers: 2
rewrite:
  chunk_size: 1000
database:
  host: "db.example.com"
`)

	t.Setenv("INGEST_WORKERS", "6")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load(path, "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Profiling.Workers != 6 {
		t.Errorf("expected Workers=6 (from env), got %d", cfg.Profiling.Workers)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	if cfg.InputDir != "/data/raw" {
		t.Errorf("expected InputDir=/data/raw (from yaml), got %s", cfg.InputDir)
	}
	if cfg.Profiling.SampleRows != 500 {
		t.Errorf("expected SampleRows=500 (from yaml), got %d", cfg.Profiling.SampleRows)
	}
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host=db.example.com (from yaml), got %s", cfg.Database.Host)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Similarity.CharRatio != 0.8 {
		t.Errorf("expected CharRatio=0.8, got %v", cfg.Similarity.CharRatio)
	}
	if cfg.Similarity.WordOverlap != 0.5 {
		t.Errorf("expected WordOverlap=0.5, got %v", cfg.Similarity.WordOverlap)
	}
	if cfg.Scoring.HighScore != 5 || cfg.Scoring.MediumScore != 3 {
		t.Errorf("expected scoring thresholds 5/3, got %v/%v", cfg.Scoring.HighScore, cfg.Scoring.MediumScore)
	}
	if cfg.Scoring.HighRatio != 2.0 || cfg.Scoring.MediumRatio != 1.5 {
		t.Errorf("expected scoring ratios 2.0/1.5, got %v/%v", cfg.Scoring.HighRatio, cfg.Scoring.MediumRatio)
	}
	if cfg.SyntheticKeys.Seed != 1000000000 {
		t.Errorf("expected Seed=1000000000, got %d", cfg.SyntheticKeys.Seed)
	}
	if cfg.Profiling.SampleRows != 1000 {
		t.Errorf("expected SampleRows=1000, got %d", cfg.Profiling.SampleRows)
	}
	if cfg.Rewrite.WatermarkStore != "file" {
		t.Errorf("expected WatermarkStore=file, got %s", cfg.Rewrite.WatermarkStore)
	}
}

func TestLoad_InvalidWatermarkStore(t *testing.T) {
	path := writeConfig(t, `
rewrite:
  watermark_store: "redis"
`)

	_, err := Load(path, "dev")
	if err == nil {
		t.Fatal("expected error for unknown watermark store")
	}
	if !strings.Contains(err.Error(), "watermark_store") {
		t.Errorf("expected watermark_store in error, got %v", err)
	}
}

func TestLoad_SeedAboveCeiling(t *testing.T) {
	path := writeConfig(t, `
synthetic_keys:
  seed: 5000
  ceiling: 4000
`)

	if _, err := Load(path, "dev"); err == nil {
		t.Fatal("expected error when seed is above ceiling")
	}
}

func TestDatabaseConfig_URL(t *testing.T) {
	db := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "ingest",
		Password: "p@ss word",
		Database: "ingest",
		SSLMode:  "disable",
	}

	got := db.URL()
	if !strings.HasPrefix(got, "postgres://ingest:") {
		t.Errorf("unexpected URL prefix: %s", got)
	}
	if strings.Contains(got, "p@ss word") {
		t.Errorf("password must be escaped in URL: %s", got)
	}
	if !strings.HasSuffix(got, "/ingest?sslmode=disable") {
		t.Errorf("unexpected URL suffix: %s", got)
	}
}
