package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"sojourn"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"sojourn"`

	// Vector index backend: "weaviate" for production, "memory" for
	// docker-free local development.
	VectorBackend  string `envconfig:"VECTOR_BACKEND" default:"weaviate"`
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY"`
	GeminiModel    string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`

	// OCR sidecar plus the signal thresholds that gate vision escalation.
	OCRServiceURL      string  `envconfig:"OCR_SERVICE_URL" default:"http://tesseract:8884"`
	OCRConfidenceMin   float64 `envconfig:"OCR_CONFIDENCE_THRESHOLD" default:"60"`
	OCRTextCoverageMin float64 `envconfig:"OCR_TEXT_COVERAGE_THRESHOLD" default:"0.15"`
	OCRBoxDensityMin   float64 `envconfig:"OCR_BOX_DENSITY_THRESHOLD" default:"0.20"`

	EnableIngestionWorker bool `envconfig:"ENABLE_INGESTION_WORKER" default:"true"`

	ChunkSize     int `envconfig:"CHUNK_SIZE" default:"500"`
	ChunkOverlap  int `envconfig:"CHUNK_OVERLAP" default:"100"`
	RetrievalTopK int `envconfig:"RETRIEVAL_TOP_K" default:"8"`

	MigrationPath   string `envconfig:"MIGRATION_PATH" default:"file://migrations"`
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/retrieval.log"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"25"`
	UploadDir       string `envconfig:"SOJOURN_UPLOAD_DIR" default:"./uploads"`
	PublicBaseURL   string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8081"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may be set in the shell; .env files are optional.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.VectorBackend != "weaviate" && c.VectorBackend != "memory" {
		return fmt.Errorf("%w: VECTOR_BACKEND must be weaviate or memory", ErrMissingRequired)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrMissingRequired)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: CHUNK_OVERLAP must not be negative", ErrMissingRequired)
	}
	return nil
}
