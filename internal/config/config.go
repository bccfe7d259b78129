// Package config loads pipeline settings from flags and the environment.
// A .env file in the working directory is honored when present.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"bookforge/internal/bookstore"
	"bookforge/internal/resilience"
)

type Config struct {
	// Provider is gemini, groq or fake. Defaults follow the available API
	// keys; fake runs fully offline.
	Provider    string
	GeminiKey   string
	GeminiModel string
	GroqKey     string
	GroqModel   string

	// DataDir roots the file-backed stores: book context, unit versions,
	// the cold tier and the performance ledger snapshot.
	DataDir    string
	LedgerPath string

	// RPS throttles outbound generation calls. Zero disables the limiter.
	RPS   float64
	Burst int

	MaxRetries      int
	Strategies      []resilience.Strategy
	EmergencyMode   bool
	RetryOnGateFail bool
	PanelSize       int
	Backoff         time.Duration

	PlanPath string
	Seed     int64

	Cold ColdConfig
}

// ColdConfig selects the cold-tier backend: object storage when an
// endpoint is configured, the local file tree otherwise.
type ColdConfig struct {
	Enabled bool
	S3      bookstore.S3Config
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	plan := flag.String("plan", "book.json", "path to the book plan JSON")
	provider := flag.String("provider", "", "llm provider: gemini, groq or fake")
	dataDir := flag.String("data", "data", "data directory for stores and snapshots")
	emergency := flag.Bool("emergency", true, "substitute templated content when generation is exhausted")
	gateRetry := flag.Bool("gate-retry", true, "grant one extra revision when the quality gate fails")
	seed := flag.Int64("seed", 0, "panel randomness seed; 0 derives one from the clock")
	flag.Parse()

	cfg := &Config{
		Provider:        strings.ToLower(firstNonEmpty(*provider, os.Getenv("BOOKFORGE_PROVIDER"))),
		GeminiKey:       strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:     firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_MODEL")), "gemini-2.0-flash"),
		GroqKey:         strings.TrimSpace(os.Getenv("GROQ_API_KEY")),
		GroqModel:       firstNonEmpty(strings.TrimSpace(os.Getenv("GROQ_MODEL")), "llama-3.3-70b-versatile"),
		DataDir:         firstNonEmpty(strings.TrimSpace(os.Getenv("BOOKFORGE_DATA_DIR")), *dataDir),
		RPS:             envFloat("BOOKFORGE_RPS", 1),
		Burst:           envInt("BOOKFORGE_BURST", 2),
		MaxRetries:      envInt("BOOKFORGE_MAX_RETRIES", 4),
		EmergencyMode:   *emergency,
		RetryOnGateFail: *gateRetry,
		PanelSize:       envInt("BOOKFORGE_PANEL_SIZE", 5),
		PlanPath:        *plan,
		Seed:            *seed,
	}
	cfg.LedgerPath = firstNonEmpty(strings.TrimSpace(os.Getenv("BOOKFORGE_LEDGER_PATH")), cfg.DataDir+"/perf_ledger.json")

	if cfg.Provider == "" {
		switch {
		case cfg.GeminiKey != "":
			cfg.Provider = "gemini"
		case cfg.GroqKey != "":
			cfg.Provider = "groq"
		default:
			cfg.Provider = "fake"
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BOOKFORGE_STRATEGIES")); raw != "" {
		cfg.Strategies = resilience.ParseStrategies(strings.Split(raw, ","))
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	cfg.Cold = loadColdConfig()
	return cfg, nil
}

func loadColdConfig() ColdConfig {
	endpoint := strings.TrimSpace(os.Getenv("COLD_S3_ENDPOINT"))
	if endpoint == "" {
		return ColdConfig{}
	}
	return ColdConfig{
		Enabled: true,
		S3: bookstore.S3Config{
			Endpoint:  endpoint,
			Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("COLD_S3_REGION")), "us-east-1"),
			AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("COLD_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
			SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("COLD_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
			Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("COLD_S3_BUCKET")), "bookforge-units"),
			UseSSL:    envBool("COLD_S3_USE_SSL", false),
		},
	}
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
