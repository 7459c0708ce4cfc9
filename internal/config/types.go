package config

import "time"

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderOllama    ProviderType = "ollama"
	// ProviderLocal is the offline hashing embedder. It needs no network.
	ProviderLocal ProviderType = "local"
	// ProviderNone disables the LLM; queries return a configuration answer.
	ProviderNone ProviderType = "none"
)

// Config is the top-level docqa configuration, corresponding to docqa.yml.
type Config struct {
	DataDir    string           `yaml:"data_dir" koanf:"data_dir"`
	Server     ServerConfig     `yaml:"server" koanf:"server"`
	LLM        LLMConfig        `yaml:"llm" koanf:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding" koanf:"embedding"`
	Ingest     IngestConfig     `yaml:"ingest" koanf:"ingest"`
	Extractors ExtractorsConfig `yaml:"extractors" koanf:"extractors"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" koanf:"retrieval"`
	Auth       AuthConfig       `yaml:"auth" koanf:"auth"`
	Log        LogConfig        `yaml:"log" koanf:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            int           `yaml:"port" koanf:"port"`
	AllowAllOrigins bool          `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
}

// LLMConfig selects the answering model.
type LLMConfig struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	BaseURL           string       `yaml:"base_url" koanf:"base_url"`
	Temperature       float64      `yaml:"temperature" koanf:"temperature"`
	MaxTokens         int          `yaml:"max_tokens" koanf:"max_tokens"`
	RequestsPerMinute int          `yaml:"requests_per_minute" koanf:"requests_per_minute"`
}

// EmbeddingConfig selects the embedding function shared by every tenant index.
type EmbeddingConfig struct {
	Provider   ProviderType  `yaml:"provider" koanf:"provider"`
	Model      string        `yaml:"model" koanf:"model"`
	BaseURL    string        `yaml:"base_url" koanf:"base_url"`
	Dimensions int           `yaml:"dimensions" koanf:"dimensions"`
	CacheSize  int           `yaml:"cache_size" koanf:"cache_size"`
	CacheTTL   time.Duration `yaml:"cache_ttl" koanf:"cache_ttl"`
}

// IngestConfig bounds uploads and processing.
type IngestConfig struct {
	MaxUploadBytes    int64    `yaml:"max_upload_bytes" koanf:"max_upload_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions" koanf:"allowed_extensions"`
	MaxConcurrency    int      `yaml:"max_concurrency" koanf:"max_concurrency"`
	TableRowsPerChunk int      `yaml:"table_rows_per_chunk" koanf:"table_rows_per_chunk"`
	CompressIndex     bool     `yaml:"compress_index" koanf:"compress_index"`
}

// ExtractorsConfig locates the external table extraction tools.
// An empty path disables the corresponding stage.
type ExtractorsConfig struct {
	JavaPath       string `yaml:"java_path" koanf:"java_path"`
	TabulaJar      string `yaml:"tabula_jar" koanf:"tabula_jar"`
	PdftoppmPath   string `yaml:"pdftoppm_path" koanf:"pdftoppm_path"`
	TesseractPath  string `yaml:"tesseract_path" koanf:"tesseract_path"`
	OCRLanguage    string `yaml:"ocr_language" koanf:"ocr_language"`
	OCRDPI         int    `yaml:"ocr_dpi" koanf:"ocr_dpi"`
	OCRConcurrency int    `yaml:"ocr_concurrency" koanf:"ocr_concurrency"`
}

// RetrievalConfig controls how many chunks feed an answer.
type RetrievalConfig struct {
	DefaultTopK  int `yaml:"default_top_k" koanf:"default_top_k"`
	MaxTopK      int `yaml:"max_top_k" koanf:"max_top_k"`
	PreviewChars int `yaml:"preview_chars" koanf:"preview_chars"`
}

// AuthConfig controls user tokens.
type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret" koanf:"jwt_secret"`
	TokenTTL          time.Duration `yaml:"token_ttl" koanf:"token_ttl"`
	AllowRegistration bool          `yaml:"allow_registration" koanf:"allow_registration"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
	// AuditRetention prunes older audit entries when the server starts.
	// Zero keeps them forever.
	AuditRetention time.Duration `yaml:"audit_retention" koanf:"audit_retention"`
}
