// Package config provides configuration for the DeepShield backend and
// client, loaded from environment variables with sensible defaults.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Server holds the reference backend configuration.
type Server struct {
	ListenAddr   string
	DatabasePath string

	TokenSecret []byte
	TokenTTL    time.Duration
	OTPTTL      time.Duration

	MaxUploadBytes int64

	// Per-identifier request budgets, each over a one-hour window.
	OTPRateLimit       int
	DetectRateLimit    int
	ComplaintRateLimit int

	LogLevel string
}

// LoadServer loads the backend configuration from environment variables.
func LoadServer() *Server {
	return &Server{
		ListenAddr:         getEnv("LISTEN_ADDR", ":8000"),
		DatabasePath:       getEnv("DATABASE_PATH", "deepshield.db"),
		TokenSecret:        []byte(getEnv("TOKEN_SECRET", "change-me-in-production")),
		TokenTTL:           time.Duration(getEnvInt("TOKEN_TTL_MINUTES", 30)) * time.Minute,
		OTPTTL:             time.Duration(getEnvInt("OTP_TTL_MINUTES", 10)) * time.Minute,
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 52428800)),
		OTPRateLimit:       getEnvInt("OTP_RATE_LIMIT", 5),
		DetectRateLimit:    getEnvInt("DETECT_RATE_LIMIT", 10),
		ComplaintRateLimit: getEnvInt("COMPLAINT_RATE_LIMIT", 5),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
}

// Client holds the workflow client configuration.
type Client struct {
	BaseURL      string
	StatePath    string
	PollInterval time.Duration

	JSONTimeout   time.Duration
	UploadTimeout time.Duration
}

// LoadClient loads the client configuration from environment variables. The
// state database defaults to the user state directory so every client
// process on the machine shares one store.
func LoadClient() *Client {
	return &Client{
		BaseURL:       getEnv("DEEPSHIELD_URL", "http://localhost:8000"),
		StatePath:     getEnv("DEEPSHIELD_STATE", defaultStatePath()),
		PollInterval:  time.Duration(getEnvInt("DEEPSHIELD_POLL_SECONDS", 15)) * time.Second,
		JSONTimeout:   10 * time.Second,
		UploadTimeout: 30 * time.Second,
	}
}

func defaultStatePath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "shieldctl", "state.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "shieldctl-state.db"
	}
	return filepath.Join(home, ".local", "state", "shieldctl", "state.db")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
