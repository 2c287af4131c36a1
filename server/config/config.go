package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Gemini   GeminiConfig   `json:"gemini"`
	USGS     USGSConfig     `json:"usgs"`
	Security SecurityConfig `json:"security"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
}

type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Environment  string        `json:"environment"`
}

type GeminiConfig struct {
	APIKey  string        `json:"-"`
	Model   string        `json:"model"`
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
}

type USGSConfig struct {
	BaseURL  string        `json:"base_url"`
	Timeout  time.Duration `json:"timeout"`
	BoxWidth float64       `json:"box_width"`
}

type SecurityConfig struct {
	AllowedOrigins []string      `json:"allowed_origins"`
	RateLimitRPS   int           `json:"rate_limit_rps"`
	RateLimitBurst int           `json:"rate_limit_burst"`
	MaxRequestSize int64         `json:"max_request_size"`
	RequestTimeout time.Duration `json:"request_timeout"`
	EnableHTTPS    bool          `json:"enable_https"`
	CertFile       string        `json:"cert_file"`
	KeyFile        string        `json:"key_file"`
}

// DatabaseConfig is carried for deployments that provision a data store.
// Nothing in the analysis path reads from it.
type DatabaseConfig struct {
	URI string `json:"-"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// LoadConfig reads an optional .env file from the working directory and
// then builds the configuration from the environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8000),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Gemini: GeminiConfig{
			APIKey:  strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Model:   getEnv("GEMINI_MODEL", "gemini-3-flash-preview"),
			BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			Timeout: getEnvAsDuration("GEMINI_TIMEOUT", 60*time.Second),
		},
		USGS: USGSConfig{
			BaseURL:  getEnv("USGS_BASE_URL", "https://waterservices.usgs.gov/nwis/iv/"),
			Timeout:  getEnvAsDuration("USGS_TIMEOUT", 5*time.Second),
			BoxWidth: getEnvAsFloat("USGS_BOX_WIDTH", 0.1),
		},
		Security: SecurityConfig{
			AllowedOrigins: getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
			RateLimitRPS:   getEnvAsInt("RATE_LIMIT_RPS", 5),
			RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),
			MaxRequestSize: getEnvAsInt64("MAX_REQUEST_SIZE", 15*1024*1024), // 15MB
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 75*time.Second),
			EnableHTTPS:    getEnvAsBool("ENABLE_HTTPS", false),
			CertFile:       getEnv("CERT_FILE", ""),
			KeyFile:        getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			URI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config
}

func (c *Config) ValidateConfig(logger *zap.Logger) error {
	var errors []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "server port must be between 1 and 65535")
	}

	if c.Gemini.APIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, AI analysis will return placeholder results")
	}

	if c.Gemini.Model == "" {
		errors = append(errors, "gemini model is required")
	}

	if c.Gemini.Timeout <= 0 {
		errors = append(errors, "gemini timeout must be positive")
	}

	if c.USGS.BaseURL == "" {
		errors = append(errors, "USGS base URL is required")
	}

	if c.USGS.Timeout <= 0 {
		errors = append(errors, "USGS timeout must be positive")
	}

	if c.USGS.BoxWidth <= 0 || c.USGS.BoxWidth > 1 {
		errors = append(errors, "USGS box width must be in (0, 1] degrees")
	}

	if c.Security.MaxRequestSize <= 0 {
		errors = append(errors, "max request size must be positive")
	}

	if c.Security.RateLimitRPS <= 0 {
		errors = append(errors, "rate limit rps must be positive")
	}

	if c.Security.EnableHTTPS && (c.Security.CertFile == "" || c.Security.KeyFile == "") {
		errors = append(errors, "cert and key files are required when HTTPS is enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, ", "))
	}

	return nil
}

// MaskedDatabaseURI hides credentials embedded in the connection string.
func (c *Config) MaskedDatabaseURI() string {
	uri := c.Database.URI
	at := strings.LastIndex(uri, "@")
	scheme := strings.Index(uri, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return uri
	}
	return uri[:scheme+3] + "****" + uri[at:]
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
