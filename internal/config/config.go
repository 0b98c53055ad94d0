package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Environment    string   `env:"ENV" envDefault:"development"`
	Port           string   `env:"PORT" envDefault:"8080"`
	Host           string   `env:"HOST" envDefault:"http://localhost:8080"` // Raw HOST env, used to derive extra CORS origins
	FrontendURL    string   `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	LogMode        string   `env:"LOG_MODE" envDefault:"debug"`

	RedisURI    string `env:"REDIS_URI" envDefault:"redis://localhost:6379/0"`
	MongoURI    string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017/eyeglaze"`
	PostgresURI string `env:"POSTGRES_URI" envDefault:"postgres://localhost:5432/eyeglaze?sslmode=disable"`

	// Collaborators
	StorageBackendURL string `env:"STORAGE_BACKEND_URL" envDefault:"http://localhost:5174"`
	ClassifierURL     string `env:"CLASSIFIER_URL" envDefault:"http://localhost:5000"`

	// StressThreshold is the single cutoff shared by labeling and the submitted hasStress flag.
	StressThreshold float64       `env:"STRESS_THRESHOLD" envDefault:"0.5"`
	StepTimeout     time.Duration `env:"STEP_TIMEOUT" envDefault:"30s"`
	MaxImageBytes   int64         `env:"MAX_IMAGE_BYTES" envDefault:"10485760"`

	SessionNamespace string        `env:"SESSION_NAMESPACE" envDefault:"eyeGlaze"`
	UploadBridgeTTL  time.Duration `env:"UPLOAD_BRIDGE_TTL" envDefault:"1h"`

	// Development storage backend
	DevBackendPort      string `env:"DEVBACKEND_PORT" envDefault:"5174"`
	CloudinaryName      string `env:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `env:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `env:"CLOUDINARY_API_SECRET"`
	CloudinaryFolder    string `env:"CLOUDINARY_FOLDER" envDefault:"eyeglaze"`
}

// Load parses the environment into a Config and fills in derived values.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))

	if cfg.StressThreshold <= 0 || cfg.StressThreshold >= 1 {
		return nil, fmt.Errorf("STRESS_THRESHOLD must be between 0 and 1, got %v", cfg.StressThreshold)
	}
	if cfg.StepTimeout <= 0 {
		return nil, fmt.Errorf("STEP_TIMEOUT must be positive, got %v", cfg.StepTimeout)
	}

	cfg.AllowedOrigins = resolveOrigins(cfg.AllowedOrigins, cfg.FrontendURL, cfg.Host)
	return &cfg, nil
}

// resolveOrigins trims the configured list, falls back to FRONTEND_URL, and when
// HOST is a real domain adds https://domain and https://www.domain.
func resolveOrigins(configured []string, frontendURL, host string) []string {
	var origins []string
	for _, o := range configured {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 && strings.TrimSpace(frontendURL) != "" {
		origins = append(origins, strings.TrimSpace(frontendURL))
	}

	hostForCORS := host
	for _, prefix := range []string{"https://", "http://"} {
		hostForCORS = strings.TrimPrefix(hostForCORS, prefix)
	}
	if idx := strings.Index(hostForCORS, "/"); idx != -1 {
		hostForCORS = hostForCORS[:idx]
	}
	if idx := strings.Index(hostForCORS, ":"); idx != -1 {
		hostForCORS = hostForCORS[:idx]
	}
	hostForCORS = strings.TrimSpace(hostForCORS)
	if hostForCORS != "" && hostForCORS != "localhost" && hostForCORS != "127.0.0.1" {
		parts := strings.Split(hostForCORS, ".")
		if len(parts) >= 2 {
			domain := strings.Join(parts[1:], ".")
			for _, origin := range []string{"https://" + domain, "https://www." + domain} {
				if !containsOrigin(origins, origin) {
					origins = append(origins, origin)
				}
			}
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	return origins
}

func containsOrigin(list []string, o string) bool {
	o = strings.TrimSpace(strings.ToLower(o))
	for _, v := range list {
		if strings.TrimSpace(strings.ToLower(v)) == o {
			return true
		}
	}
	return false
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// CloudinaryConfigured reports whether all Cloudinary credentials are present.
func (c *Config) CloudinaryConfigured() bool {
	return c.CloudinaryName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// HostName returns HOST without scheme, path or port.
func (c *Config) HostName() string {
	h := strings.TrimSpace(c.Host)
	for _, prefix := range []string{"https://", "http://"} {
		h = strings.TrimPrefix(h, prefix)
	}
	if idx := strings.IndexAny(h, "/:"); idx != -1 {
		h = h[:idx]
	}
	return h
}
