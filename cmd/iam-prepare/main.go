// Command iam-prepare downloads the IAM handwriting database and
// materializes the processed datasets: line crops, paragraph crops, and
// the line pool backing the synthetic paragraph composer.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inkstone/handwriting-pipeline/internal/catalog"
	"github.com/inkstone/handwriting-pipeline/internal/crops"
	"github.com/inkstone/handwriting-pipeline/internal/dataset"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// config is the prepare pipeline's configuration, loadable from a yaml
// file and overridable with flags.
type config struct {
	DataDir          string `yaml:"data_dir"`
	ProcessedDir     string `yaml:"processed_dir"`
	DownsampleFactor int    `yaml:"downsample_factor"`
	Padding          int    `yaml:"padding"`
	SkipDownload     bool   `yaml:"skip_download"`

	Paragraphs dataset.DataConfig `yaml:"paragraphs"`
	Lines      dataset.DataConfig `yaml:"lines"`
	Synthetic  dataset.DataConfig `yaml:"synthetic"`
}

func (c *config) defaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.ProcessedDir == "" {
		c.ProcessedDir = filepath.Join(c.DataDir, "processed")
	}
	c.Paragraphs = c.Paragraphs.WithDefaults()
	c.Synthetic = c.Synthetic.WithDefaults()

	// The line dataset has its own canvas: single line crops are short
	// and wide, not paragraph-shaped.
	if c.Lines.InputHeight == 0 {
		c.Lines.InputHeight = dataset.DefaultLineImageHeight
	}
	if c.Lines.InputWidth == 0 {
		c.Lines.InputWidth = dataset.DefaultLineImageWidth
	}
	if c.Lines.OutputLength == 0 {
		c.Lines.OutputLength = dataset.DefaultLineOutputLength
	}
	c.Lines = c.Lines.WithDefaults()
}

func loadConfig(path string) (*config, error) {
	var cfg config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	return &cfg, nil
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("iam-prepare %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		}
	}

	var (
		configPath   = flag.String("config", "", "yaml config file (optional)")
		dataDir      = flag.String("data-dir", "", "root data directory (default \"data\")")
		processedDir = flag.String("processed-dir", "", "processed output directory (default <data-dir>/processed)")
		only         = flag.String("only", "", "prepare a single dataset: paragraphs, lines or synthetic")
		skipDownload = flag.Bool("skip-download", false, "assume the dataset is already downloaded and extracted")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("bad configuration", "error", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *processedDir != "" {
		cfg.ProcessedDir = *processedDir
	}
	if *skipDownload {
		cfg.SkipDownload = true
	}
	cfg.defaults()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *only, logger); err != nil {
		logger.Error("prepare failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config, only string, logger *slog.Logger) error {
	catCfg := catalog.Config{
		DataDir:          cfg.DataDir,
		DownsampleFactor: cfg.DownsampleFactor,
		Padding:          cfg.Padding,
		Logger:           logger,
	}

	if cfg.SkipDownload {
		logger.Info("skipping download", "extracted_dir", catCfg.ExtractedDir())
	} else {
		start := time.Now()
		if err := catalog.Download(ctx, catCfg); err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
		logger.Info("download done", "elapsed", time.Since(start).Round(time.Second))
	}

	start := time.Now()
	cat, err := catalog.Open(catCfg)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	logger.Info("catalog built", "forms", len(cat.AllIDs), "elapsed", time.Since(start).Round(time.Millisecond))

	steps := []struct {
		name string
		fn   func() error
	}{
		{"paragraphs", func() error { return prepareParagraphs(cat, cfg, logger) }},
		{"lines", func() error { return prepareLines(cat, cfg, logger) }},
		{"synthetic", func() error { return prepareSynthetic(cat, cfg, logger) }},
	}
	matched := false
	for _, step := range steps {
		if only != "" && only != step.name {
			continue
		}
		matched = true
		start := time.Now()
		logger.Info("preparing dataset", "dataset", step.name)
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to prepare %s: %w", step.name, err)
		}
		logger.Info("dataset ready", "dataset", step.name, "elapsed", time.Since(start).Round(time.Second))
	}
	if !matched {
		return fmt.Errorf("unknown dataset %q (want paragraphs, lines or synthetic)", only)
	}
	return nil
}

func prepareParagraphs(cat *catalog.Catalog, cfg *config, logger *slog.Logger) error {
	store := crops.NewStore(cfg.ProcessedDir, "iam_paragraphs", cfg.Paragraphs.ScaleFactor, logger)
	ds, err := dataset.NewParagraphs(store, cfg.Paragraphs, logger)
	if err != nil {
		return err
	}
	if err := ds.Prepare(cat); err != nil {
		return err
	}
	return ds.ValidateDims()
}

func prepareLines(cat *catalog.Catalog, cfg *config, logger *slog.Logger) error {
	store := crops.NewStore(cfg.ProcessedDir, "iam_lines", cfg.Lines.ScaleFactor, logger)
	ds, err := dataset.NewLines(store, cfg.Lines, logger)
	if err != nil {
		return err
	}
	if err := ds.Prepare(cat); err != nil {
		return err
	}
	return ds.ValidateDims()
}

func prepareSynthetic(cat *catalog.Catalog, cfg *config, logger *slog.Logger) error {
	store := crops.NewStore(cfg.ProcessedDir, "iam_synthetic_paragraphs", cfg.Synthetic.ScaleFactor, logger)
	ds, err := dataset.NewSynthetic(store, cfg.Synthetic, logger)
	if err != nil {
		return err
	}
	return ds.Prepare(cat)
}
