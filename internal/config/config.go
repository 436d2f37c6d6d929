package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed liveness.yaml
var livenessYAML []byte

type Config struct {
	Database DatabaseConfig
	HRDir    HRDirConfig
	Vision   VisionConfig
	Liveness LivenessConfig
	Web      WebConfig
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the embedding HNSW index (optional, if empty index is rebuilt on startup)
}

type HRDirConfig struct {
	DSN string // MySQL DSN for the read-only HR directory (e.g., hr:hr@tcp(mysql:3306)/hr)
}

type VisionConfig struct {
	URL            string // base URL of the detect/landmarks/embedding service, defaults to http://localhost:8000
	TimeoutSeconds int    // per-request timeout (default 30)
}

type LivenessConfig struct {
	ScoreThreshold       float64 `yaml:"score_threshold"`
	MovementThresholdDeg float64 `yaml:"movement_threshold_deg"`
	SessionTTLMinutes    int     `yaml:"session_ttl_minutes"`
}

type WebConfig struct {
	ListenAddr string // defaults to :8080
	APIKey     string // shared key required on every /api route; empty disables auth
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var defaults struct {
		Liveness LivenessConfig `yaml:"liveness"`
	}
	if err := yaml.Unmarshal(livenessYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded liveness.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		HRDir: HRDirConfig{
			DSN: os.Getenv("HRDIR_DATABASE_DSN"),
		},
		Vision: VisionConfig{
			URL:            envString("VISION_URL", "http://localhost:8000"),
			TimeoutSeconds: envInt("VISION_TIMEOUT_SECONDS", 30),
		},
		Liveness: LivenessConfig{
			ScoreThreshold:       envFloat("LIVENESS_SCORE_THRESHOLD", defaults.Liveness.ScoreThreshold),
			MovementThresholdDeg: envFloat("LIVENESS_MOVEMENT_THRESHOLD_DEG", defaults.Liveness.MovementThresholdDeg),
			SessionTTLMinutes:    envInt("LIVENESS_SESSION_TTL_MINUTES", defaults.Liveness.SessionTTLMinutes),
		},
		Web: WebConfig{
			ListenAddr: envString("LISTEN_ADDR", ":8080"),
			APIKey:     os.Getenv("API_KEY"),
		},
	}
}
