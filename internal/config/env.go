package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	SslCertPath string

	// Corpus source: local directory by default, or s3://bucket/prefix.
	DataDir      string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	BucketPrefix string

	AIAPIKey   string
	EmbedModel string
	EmbedDim   int

	// Pipeline tuning.
	Workers        int
	EmbedBatchSize int
	ChunkSize      int
	ChunkOverlap   int
	MinChunks      int

	// Provider ceilings and the fraction of them we allow ourselves to use.
	RPMLimit       int
	TPMLimit       int
	SafetyFraction float64

	// Retry policy for provider and registry calls.
	MaxRetries     int
	RetryBaseDelay time.Duration

	ForceReindex     bool
	DocIDFromContent bool

	MonitorInterval time.Duration
	ReportPath      string
	MetricsAddr     string
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),

		DataDir:      getEnv("DATA_DIR", "./data"),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("S3_BUCKET", ""),
		BucketPrefix: getEnv("S3_PREFIX", ""),

		AIAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbedModel: getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:   getEnvInt("EMBED_DIM", 768),

		Workers:        getEnvInt("MAX_WORKERS", 15),
		EmbedBatchSize: getEnvInt("EMBED_BATCH_SIZE", 30),
		ChunkSize:      getEnvInt("CHUNK_SIZE", 1024),
		ChunkOverlap:   getEnvInt("CHUNK_OVERLAP", 200),
		MinChunks:      getEnvInt("MIN_CHUNKS", 5),

		RPMLimit:       getEnvInt("PROVIDER_RPM_LIMIT", 5000),
		TPMLimit:       getEnvInt("PROVIDER_TPM_LIMIT", 5000000),
		SafetyFraction: getEnvFloat("SAFETY_FRACTION", 0.7),

		MaxRetries:     getEnvInt("MAX_RETRIES", 5),
		RetryBaseDelay: getEnvDuration("RETRY_BASE_DELAY", time.Second),

		ForceReindex:     getEnvBool("FORCE_REINDEX", false),
		DocIDFromContent: getEnvBool("DOC_ID_FROM_CONTENT", false),

		MonitorInterval: getEnvDuration("MONITOR_UPDATE_INTERVAL", 5*time.Second),
		ReportPath:      getEnv("REPORT_PATH", ""),
		MetricsAddr:     getEnv("METRICS_ADDR", ""),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		log.Fatalf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if cfg.SafetyFraction <= 0 || cfg.SafetyFraction > 1 {
		log.Fatalf("SAFETY_FRACTION (%v) must be in (0, 1]", cfg.SafetyFraction)
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %v", key, v, def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %v", key, v, def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	// Accept bare seconds ("5") as well as Go durations ("5s").
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %v", key, v, def)
		return def
	}
	return d
}
