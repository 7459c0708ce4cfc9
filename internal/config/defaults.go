package config

import (
	"path/filepath"
	"time"
)

// Directory names under DataDir.
const (
	stagingDirName   = "staged_files"
	processedDirName = "uploaded_files"
	indexDirName     = "vector_store"
	databaseFileName = "docqa.db"
)

// DefaultExtensions are the document types the loaders understand.
var DefaultExtensions = []string{".pdf", ".txt", ".md", ".docx"}

// modelPresets maps a provider to its default answering and embedding models.
var modelPresets = map[ProviderType]struct {
	Model          string
	EmbeddingModel string
}{
	ProviderOpenAI:    {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-large"},
	ProviderAnthropic: {Model: "claude-sonnet-4-5-20250929", EmbeddingModel: "text-embedding-3-large"},
	ProviderOllama:    {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",
		Server: ServerConfig{
			Port:           8080,
			RequestTimeout: 120 * time.Second,
		},
		LLM: LLMConfig{
			Provider:          ProviderOpenAI,
			Model:             "gpt-4o-mini",
			Temperature:       0.1,
			MaxTokens:         1024,
			RequestsPerMinute: 60,
		},
		Embedding: EmbeddingConfig{
			Provider:  ProviderOpenAI,
			Model:     "text-embedding-3-large",
			CacheSize: 4096,
			CacheTTL:  time.Hour,
		},
		Ingest: IngestConfig{
			MaxUploadBytes:    50 << 20,
			AllowedExtensions: DefaultExtensions,
			MaxConcurrency:    4,
			TableRowsPerChunk: 10,
			CompressIndex:     true,
		},
		Extractors: ExtractorsConfig{
			JavaPath:       "java",
			PdftoppmPath:   "pdftoppm",
			TesseractPath:  "tesseract",
			OCRLanguage:    "eng",
			OCRDPI:         300,
			OCRConcurrency: 4,
		},
		Retrieval: RetrievalConfig{
			DefaultTopK:  15,
			MaxTopK:      20,
			PreviewChars: 200,
		},
		Auth: AuthConfig{
			TokenTTL:          24 * time.Hour,
			AllowRegistration: true,
		},
		Log: LogConfig{
			Level:          "info",
			Format:         "json",
			AuditRetention: 90 * 24 * time.Hour,
		},
	}
}

// StagingDir is where uploads wait to be processed.
func (c *Config) StagingDir() string { return filepath.Join(c.DataDir, stagingDirName) }

// ProcessedDir is where indexed files are archived.
func (c *Config) ProcessedDir() string { return filepath.Join(c.DataDir, processedDirName) }

// IndexDir holds one persisted vector index per tenant.
func (c *Config) IndexDir() string { return filepath.Join(c.DataDir, indexDirName) }

// DatabasePath is the SQLite file holding users, ingestion records and audit entries.
func (c *Config) DatabasePath() string { return filepath.Join(c.DataDir, databaseFileName) }
