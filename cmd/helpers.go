package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/apperr"
	"github.com/ziadkadry99/docqa/internal/audit"
	"github.com/ziadkadry99/docqa/internal/config"
	"github.com/ziadkadry99/docqa/internal/db"
	"github.com/ziadkadry99/docqa/internal/decompose"
	"github.com/ziadkadry99/docqa/internal/embeddings"
	"github.com/ziadkadry99/docqa/internal/ingest"
	"github.com/ziadkadry99/docqa/internal/llm"
	"github.com/ziadkadry99/docqa/internal/loader"
	"github.com/ziadkadry99/docqa/internal/logging"
	"github.com/ziadkadry99/docqa/internal/rag"
	"github.com/ziadkadry99/docqa/internal/tables"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

// app holds the services every command shares.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	db       *db.DB
	store    *vectordb.ChromemStore
	audit    *audit.Store
	manager  *ingest.Manager
	answerer *rag.Answerer
}

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `docqa init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	return logging.New(level, cfg.Log.Format)
}

// openApp builds the shared services. A missing or unreachable LLM is not
// fatal: the answerer then returns the configuration answer.
func openApp(ctx context.Context) (context.Context, *app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return ctx, nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return ctx, nil, err
	}
	ctx = logging.WithContext(ctx, log)

	database, err := db.Open(cfg.DatabasePath())
	if err != nil {
		return ctx, nil, fmt.Errorf("opening database: %w", err)
	}

	embedder, err := embeddings.FromConfig(cfg.Embedding)
	if err != nil {
		database.Close()
		return ctx, nil, fmt.Errorf("creating embedder: %w", err)
	}
	store := vectordb.NewChromemStore(cfg.IndexDir(), embedder, cfg.Ingest.CompressIndex)

	provider, err := llm.FromConfig(cfg.LLM)
	if err != nil {
		if !apperr.IsNotConfigured(err) {
			database.Close()
			return ctx, nil, fmt.Errorf("creating LLM provider: %w", err)
		}
		log.Warn("LLM unavailable, queries will return a configuration answer", zap.Error(err))
	}

	auditStore := audit.NewStore(database)
	a := &app{
		cfg:   cfg,
		log:   log,
		db:    database,
		store: store,
		audit: auditStore,
		manager: ingest.NewManager(ingest.Config{
			Layout: ingest.Layout{
				StagingRoot:   cfg.StagingDir(),
				ProcessedRoot: cfg.ProcessedDir(),
			},
			Store:             store,
			Decomposer:        newDecomposer(cfg, log),
			Records:           ingest.NewRecords(database),
			Audit:             auditStore,
			MaxUploadBytes:    cfg.Ingest.MaxUploadBytes,
			AllowedExtensions: cfg.Ingest.AllowedExtensions,
			MaxConcurrency:    cfg.Ingest.MaxConcurrency,
		}),
		answerer: rag.NewAnswerer(store, provider, rag.Options{
			DefaultTopK:  cfg.Retrieval.DefaultTopK,
			MaxTopK:      cfg.Retrieval.MaxTopK,
			PreviewRunes: cfg.Retrieval.PreviewChars,
			Model:        cfg.LLM.Model,
			Temperature:  cfg.LLM.Temperature,
			MaxTokens:    cfg.LLM.MaxTokens,
		}),
	}
	return ctx, a, nil
}

func (a *app) Close() {
	_ = a.log.Sync()
	a.db.Close()
}

// newDecomposer wires the loaders and, when the external tools are
// configured, the table extraction stages.
func newDecomposer(cfg *config.Config, log *zap.Logger) *decompose.Decomposer {
	x := cfg.Extractors
	runner := tables.ExecRunner{}

	opts := tables.Options{
		RowsPerChunk:   cfg.Ingest.TableRowsPerChunk,
		OCRConcurrency: x.OCRConcurrency,
	}
	if x.TabulaJar != "" {
		opts.Layout = &tables.TabulaDetector{Java: x.JavaPath, Jar: x.TabulaJar, Runner: runner}
	}
	if x.PdftoppmPath != "" && x.TesseractPath != "" {
		opts.Rasterizer = &tables.PopplerRasterizer{Pdftoppm: x.PdftoppmPath, DPI: x.OCRDPI, Runner: runner}
		opts.Recognizer = &tables.TesseractRecognizer{Tesseract: x.TesseractPath, Language: x.OCRLanguage, Runner: runner}
	}
	if opts.Layout == nil && opts.Rasterizer == nil {
		log.Info("table extraction disabled: no tabula jar or OCR tools configured")
		return decompose.New(loader.NewRegistry(), nil)
	}
	return decompose.New(loader.NewRegistry(), tables.New(opts))
}
