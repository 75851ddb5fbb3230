// Package config loads and validates configuration. The API server reads
// environment variables (optionally seeded from a .env file); the device
// reads a TOML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Store drivers and brokers accepted by Load.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"

	BrokerPostgres = "postgres"
	BrokerRedis    = "redis"
	BrokerLocal    = "local"
)

// Config holds all configuration values for the API server.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// StoreDriver selects the document store: "postgres" (default) or "mongo".
	StoreDriver string

	// DatabaseURL is the Postgres connection string. Required for the postgres store.
	DatabaseURL string

	// MongoURI and MongoDatabase locate the mongo store. MongoURI is required
	// for the mongo store; the database defaults to "tripmate".
	MongoURI      string
	MongoDatabase string

	// Broker selects how change notifications reach subscribers:
	// "postgres" (LISTEN/NOTIFY, default with the postgres store), "redis"
	// or "local" (single process, default with the mongo store).
	Broker string

	// RedisURL is required when Broker is "redis".
	RedisURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64

	// SessionSecret signs anonymous session tokens. When empty, sessions
	// are not issued and the state endpoints are open.
	SessionSecret string

	// Upstream API keys. Each proxy route reports itself unconfigured when
	// its key is missing.
	AviationstackKey string
	RapidAPIKey      string
	NewsAPIKey       string
	OpenAIKey        string
	GeminiKey        string

	// ProxyRatePerMin is the per-client request budget for the proxy routes.
	ProxyRatePerMin int
}

// Load reads configuration from environment variables and returns a Config.
// A .env file in the working directory is applied first; variables already
// set in the environment win. Returns an error listing any required
// variables that are not set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Port:             getEnv("PORT", "8080"),
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", StorePostgres)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDatabase:    getEnv("MONGO_DATABASE", "tripmate"),
		RedisURL:         os.Getenv("REDIS_URL"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		AviationstackKey: os.Getenv("AVIATIONSTACK_KEY"),
		RapidAPIKey:      os.Getenv("RAPIDAPI_KEY"),
		NewsAPIKey:       os.Getenv("NEWS_API_KEY"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		GeminiKey:        os.Getenv("GEMINI_API_KEY"),
	}

	defaultBroker := BrokerPostgres
	if cfg.StoreDriver == StoreMongo {
		defaultBroker = BrokerLocal
	}
	cfg.Broker = strings.ToLower(getEnv("BROKER", defaultBroker))

	var problems []string

	maxBody, err := getInt("MAX_BODY_BYTES", 1<<20)
	if err != nil {
		problems = append(problems, err.Error())
	}
	cfg.MaxBodyBytes = int64(maxBody)

	cfg.ProxyRatePerMin, err = getInt("PROXY_RATE_PER_MIN", 30)
	if err != nil {
		problems = append(problems, err.Error())
	}

	var missing []string
	switch cfg.StoreDriver {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StoreMongo:
		if cfg.MongoURI == "" {
			missing = append(missing, "MONGO_URI")
		}
	default:
		problems = append(problems, fmt.Sprintf("STORE_DRIVER %q is not one of postgres, mongo", cfg.StoreDriver))
	}

	switch cfg.Broker {
	case BrokerPostgres:
		if cfg.StoreDriver != StorePostgres {
			problems = append(problems, "BROKER=postgres requires STORE_DRIVER=postgres")
		}
	case BrokerRedis:
		if cfg.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	case BrokerLocal:
	default:
		problems = append(problems, fmt.Sprintf("BROKER %q is not one of postgres, redis, local", cfg.Broker))
	}

	if len(missing) > 0 {
		problems = append(problems, "required environment variables not set: "+strings.Join(missing, ", "))
	}
	if len(problems) > 0 {
		return Config{}, errors.New(strings.Join(problems, "; "))
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getInt is getEnv for positive integers.
func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
