package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment
// variables. It is loaded once per run and treated as immutable afterwards.
type Config struct {
	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	FetchTimeoutMs int

	DataDir       string
	SeedsPath     string
	CSVExportName string
	ChromeBin     string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "listings_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 2000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		FetchTimeoutMs: getEnvInt("FETCH_TIMEOUT_MS", 60000),

		DataDir:       getEnv("DATA_DIR", "./data"),
		SeedsPath:     getEnv("SEEDS_PATH", "./config/listings_config.json"),
		CSVExportName: getEnv("CSV_EXPORT_NAME", "parsed_listings.csv"),
		ChromeBin:     getEnv("CHROME_BIN", ""),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// Area is one metro area with the ZIP codes to search.
type Area struct {
	City  string   `json:"city"`
	State string   `json:"state"`
	Zips  []string `json:"zips"`
}

// SeedTemplates holds per-platform search URL templates; {ZIP} is replaced
// with each ZIP code at batch initialization.
type SeedTemplates struct {
	RedfinZipSearch string   `json:"redfin_zip_search"`
	ZillowZipSearch string   `json:"zillow_zip_search"`
	DetailURLs      []string `json:"detail_urls"`
}

// SeedConfig is the batch-definition file (areas/zips + URL templates),
// supplied by an external config collaborator and immutable per run.
type SeedConfig struct {
	Areas []Area        `json:"areas"`
	Seeds SeedTemplates `json:"seeds"`
}

// LoadSeeds reads the seed configuration file.
func LoadSeeds(path string) (*SeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read seed config %q: %w", path, err)
	}
	var sc SeedConfig
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("config: decode seed config %q: %w", path, err)
	}
	if len(sc.Areas) == 0 {
		return nil, fmt.Errorf("config: seed config %q defines no areas", path)
	}
	return &sc, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
