package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "dev-secret-change-me"

type Config struct {
	ServerPort string
	Env        string
	LogLevel   string

	// StoreBackend selects the document store: memory, postgres or firestore.
	StoreBackend string
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string

	GoogleProject string

	// BlobBackend selects the attachment store: memory or gcs.
	BlobBackend   string
	Bucket        string
	PublicBaseURL string

	// AuthProvider selects the token verifier: jwt or firebase.
	AuthProvider string
	JWTSecret    string

	AMQPURL      string
	AMQPExchange string

	AllowedOrigins []string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		StoreBackend:   getEnv("STORE_BACKEND", "memory"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "chatcore"),
		DBPassword:     getEnv("DB_PASSWORD", "chatcore_dev_password"),
		DBName:         getEnv("DB_NAME", "chatcore"),
		GoogleProject:  getEnv("GOOGLE_CLOUD_PROJECT", ""),
		BlobBackend:    getEnv("BLOB_BACKEND", "memory"),
		Bucket:         getEnv("GCS_BUCKET", ""),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		AuthProvider:   getEnv("AUTH_PROVIDER", "jwt"),
		JWTSecret:      getEnv("JWT_SECRET", defaultJWTSecret),
		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "chatcore.push"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DSN is the postgres connection URL.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case "memory", "postgres":
	case "firestore":
		if c.GoogleProject == "" {
			errs = append(errs, errors.New("GOOGLE_CLOUD_PROJECT is required for the firestore backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.BlobBackend {
	case "memory":
	case "gcs":
		if c.Bucket == "" {
			errs = append(errs, errors.New("GCS_BUCKET is required for the gcs blob backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend))
	}

	switch c.AuthProvider {
	case "jwt":
		if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
			errs = append(errs, errors.New("JWT_SECRET must be set in production"))
		}
	case "firebase":
		if c.GoogleProject == "" {
			errs = append(errs, errors.New("GOOGLE_CLOUD_PROJECT is required for the firebase auth provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_PROVIDER %q", c.AuthProvider))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
