package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis (optional: enables asynchronous generation jobs)
	RedisURL          string
	WorkerEnabled     bool
	MaxConcurrentJobs int

	// Paths
	ProjectRoot    string
	AudioOutputDir string // date-partitioned clip output root
	SampleDir      string // uploaded narrator reference samples

	// Script generation
	ScriptProvider       string // "openai" or "gemini"
	OpenAIKey            string // checked per habit, not at boot
	OpenAIBaseURL        string
	ScriptModel          string
	GeminiKey            string
	GeminiScriptModel    string
	ScriptRequestTimeout time.Duration

	// TTS backend
	TTSBaseURL        string
	TTSGeneratePath   string
	TTSVoicesDir      string // shared directory the TTS backend writes <token>.wav into
	TTSWarmupAttempts int
	TTSWarmupDelay    time.Duration
	TTSFileTimeout    time.Duration
	TTSFilePoll       time.Duration
	TTSRequestTimeout time.Duration

	// Nightly generation
	GenerationEnabled    bool
	GenerationSchedule   string
	GenerationLocation   *time.Location
	GenerationNarratorID int64 // 0 = default narrator
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	root := getEnv("PROJECT_ROOT", "")
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		root = wd
	}

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		MaxConcurrentJobs:  getEnvInt("MAX_CONCURRENT_JOBS", 1),

		ProjectRoot:    root,
		AudioOutputDir: getEnv("HABIT_AUDIO_OUTPUT_DIR", filepath.Join(root, "audio", "generated")),
		SampleDir:      getEnv("NARRATOR_SAMPLE_DIR", filepath.Join(root, "audio", "narrator-samples")),

		ScriptProvider:       strings.ToLower(getEnv("SCRIPT_PROVIDER", "openai")),
		OpenAIKey:            getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", ""),
		ScriptModel:          getEnv("TTS_SCRIPT_MODEL", "gpt-4o"),
		GeminiKey:            getEnv("GEMINI_API_KEY", ""),
		GeminiScriptModel:    getEnv("GEMINI_SCRIPT_MODEL", "gemini-2.5-flash"),
		ScriptRequestTimeout: getEnvDuration("SCRIPT_REQUEST_TIMEOUT", 60*time.Second),

		TTSBaseURL:        resolveTTSBaseURL(getEnv("TTS_SERVER_URL", ""), getEnv("TTS_SERVER_PORT", "5000")),
		TTSGeneratePath:   normalizePath(getEnv("TTS_GENERATE_PATH", "/generate_audio")),
		TTSVoicesDir:      getEnv("TTS_VOICES_DIR", defaultVoicesDir()),
		TTSWarmupAttempts: getEnvInt("TTS_WARMUP_ATTEMPTS", 300),
		TTSWarmupDelay:    time.Duration(getEnvInt("TTS_WARMUP_DELAY_MS", 1000)) * time.Millisecond,
		TTSFileTimeout:    time.Duration(getEnvInt("TTS_FILE_TIMEOUT_MS", 150000)) * time.Millisecond,
		TTSFilePoll:       time.Duration(getEnvInt("TTS_FILE_POLL_MS", 250)) * time.Millisecond,
		TTSRequestTimeout: getEnvDuration("TTS_REQUEST_TIMEOUT", 60*time.Second),

		GenerationEnabled:    getEnvBool("AUDIO_GENERATION_ENABLED", true),
		GenerationSchedule:   getEnv("AUDIO_GENERATION_SCHEDULE", "0 1 * * *"),
		GenerationNarratorID: int64(getEnvInt("AUDIO_GENERATION_NARRATOR_ID", 0)),
	}

	loc, err := loadLocation(getEnv("AUDIO_GENERATION_TZ", ""))
	if err != nil {
		return nil, err
	}
	cfg.GenerationLocation = loc

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.ScriptProvider != "openai" && cfg.ScriptProvider != "gemini" {
		return nil, fmt.Errorf("SCRIPT_PROVIDER must be openai or gemini, got %q", cfg.ScriptProvider)
	}

	return cfg, nil
}

// resolveTTSBaseURL prefers an explicit URL and falls back to localhost on the given port.
func resolveTTSBaseURL(explicit, port string) string {
	if explicit != "" {
		return strings.TrimRight(explicit, "/")
	}
	return "http://127.0.0.1:" + port
}

func normalizePath(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

func defaultVoicesDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, "Documents", "bark", "voices")
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid AUDIO_GENERATION_TZ %q: %w", name, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
