package dbconfig

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds database connection settings. Driver is "postgres" (lib/pq)
// or "sqlite" (modernc) for local runs.
type Config struct {
	Driver     string
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	SQLitePath string
}

// NewConfigFromEnv reads DB_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	port, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		port = 5432
	}

	return Config{
		Driver:     getEnv("DB_DRIVER", "postgres"),
		Host:       getEnv("DB_HOST", "localhost"),
		Port:       port,
		User:       getEnv("DB_USER", "postgres"),
		Password:   getEnv("DB_PASSWORD", "postgres"),
		Database:   getEnv("DB_NAME", "lastround"),
		SSLMode:    getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("DB_SQLITE_PATH", "lastround.db"),
	}
}

// DSN returns the connection string for the configured driver.
func (c Config) DSN() string {
	if c.Driver == "sqlite" {
		return c.SQLitePath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
