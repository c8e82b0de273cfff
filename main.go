package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/ekaya-ingest/pkg/config"
	"github.com/ekaya-inc/ekaya-ingest/pkg/database"
	"github.com/ekaya-inc/ekaya-ingest/pkg/logging"
	"github.com/ekaya-inc/ekaya-ingest/pkg/repositories"
	"github.com/ekaya-inc/ekaya-ingest/pkg/services"
	"github.com/ekaya-inc/ekaya-ingest/pkg/sources"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	configPath string
	envFile    string
	inputDir   string
	outputDir  string
	noCache    bool
)

var rootCmd = &cobra.Command{
	Use:           "ekaya-ingest",
	Short:         "Infer a relational and graph schema from delimited data files",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
}

var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Profile input files, resolve key conflicts and write the schema documents",
	RunE:  runInfer,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file loaded before configuration")

	inferCmd.Flags().StringVar(&inputDir, "input", "", "Input directory (overrides input_dir)")
	inferCmd.Flags().StringVar(&outputDir, "output", "", "Output directory (overrides output_dir)")
	inferCmd.Flags().BoolVar(&noCache, "no-cache", false, "Ignore and do not write the profile cache")

	rootCmd.AddCommand(inferCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runInfer(cmd *cobra.Command, _ []string) error {
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load(configPath, Version)
	if err != nil {
		return err
	}
	if inputDir != "" {
		cfg.InputDir = inputDir
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if noCache {
		cfg.Cache.Disabled = true
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("input_dir", cfg.InputDir),
		zap.String("output_dir", cfg.OutputDir),
		zap.String("watermark_store", cfg.Rewrite.WatermarkStore),
		zap.Bool("cache_disabled", cfg.Cache.Disabled))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conventions, err := config.LoadConventions(cfg.ConventionsPath)
	if err != nil {
		return err
	}

	srcs, err := sources.Discover(ctx, cfg.InputDir)
	if err != nil {
		return err
	}
	if len(srcs) == 0 {
		return fmt.Errorf("no %v files found in %s", sources.SupportedExtensions, cfg.InputDir)
	}

	var cache services.ProfileCache
	if !cfg.Cache.Disabled {
		cache, err = services.NewFileProfileCache(services.ProfileCacheConfig{
			Dir: cfg.Cache.Dir,
			TTL: time.Duration(cfg.Cache.TTLHours) * time.Hour,
		}, logger)
		if err != nil {
			return err
		}
	}

	watermarks, closeStore, err := openWatermarkStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	pipeline, err := services.NewPipeline(cfg, conventions, cache, watermarks, logger)
	if err != nil {
		return err
	}

	result, metrics, err := pipeline.Run(ctx, srcs)
	if metrics != nil && cfg.MetricsPath != "" {
		if werr := metrics.WriteTextfile(cfg.MetricsPath); werr != nil {
			logger.Warn("Failed to write metrics", zap.String("path", cfg.MetricsPath), zap.Error(werr))
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Run interrupted; rerun to resume from the last completed chunk")
		}
		return err
	}

	if err := services.WriteRunOutputs(cfg.OutputDir, result); err != nil {
		return err
	}
	if err := watermarks.Clear(ctx, result.InputFingerprint); err != nil {
		logger.Warn("Failed to clear watermarks", zap.Error(err))
	}

	logger.Info("Wrote schema",
		zap.String("run_id", result.RunID.String()),
		zap.String("output_dir", cfg.OutputDir),
		zap.Int("tables", len(result.Tables)),
		zap.Int("synthetic_keys", len(result.SyntheticKeys)),
		zap.Int("skipped_files", len(result.Audit.SkippedFiles)))
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Env == "local" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// openWatermarkStore returns the configured progress store and a function releasing it.
func openWatermarkStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.WatermarkRepository, func(), error) {
	if cfg.Rewrite.WatermarkStore != "postgres" {
		path := filepath.Join(cfg.OutputDir, ".watermarks.json")
		return repositories.NewFileWatermarkRepository(path), func() {}, nil
	}

	url := cfg.Database.URL()
	logger.Info("Connecting to watermark database", zap.String("url", logging.SanitizeConnectionString(url)))
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            url,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect watermark database: %s", logging.SanitizeError(err))
	}
	if err := database.RunMigrations(db.SQL(), logger); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repositories.NewWatermarkRepository(db), db.Close, nil
}
