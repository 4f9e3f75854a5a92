package main

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the dbterra.toml configuration file. Every field is
// optional; flags and environment variables take precedence.
type Config struct {
	DatabaseURL        string   `toml:"database_url"`
	SchemaFile         string   `toml:"schema_file"`
	Schemas            []string `toml:"schemas"`
	LockName           string   `toml:"lock_name"`
	LockTimeoutSeconds int      `toml:"lock_timeout_seconds"`
}

// LoadConfig loads dbterra.toml from the current directory or any
// parent directory. A missing file is not an error; an empty config is
// returned instead.
func LoadConfig() (*Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	for {
		configPath := filepath.Join(dir, "dbterra.toml")
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, err
			}

			var config Config
			if err := toml.Unmarshal(data, &config); err != nil {
				return nil, err
			}
			return &config, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return &Config{}, nil
}

// LoadDotenv loads a .env file from the working directory when present,
// so DATABASE_URL can live next to the schema file during development.
// Existing environment variables win.
func LoadDotenv() {
	_ = godotenv.Load()
}

// GetDatabaseURL returns the connection string with priority: explicit
// flag > DATABASE_URL > config file.
func GetDatabaseURL(explicitValue string, config *Config) string {
	if explicitValue != "" {
		return explicitValue
	}
	if envValue := os.Getenv("DATABASE_URL"); envValue != "" {
		return envValue
	}
	if config != nil && config.DatabaseURL != "" {
		return config.DatabaseURL
	}
	return ""
}

// GetSchemaFile returns the schema file path with priority: explicit
// flag > config file.
func GetSchemaFile(explicitValue string, config *Config) string {
	if explicitValue != "" {
		return explicitValue
	}
	if config != nil && config.SchemaFile != "" {
		return config.SchemaFile
	}
	return ""
}

// GetManagedSchemas returns the managed schema list with priority:
// explicit flags > config file > ["public"].
func GetManagedSchemas(explicit []string, config *Config) []string {
	if len(explicit) > 0 {
		return explicit
	}
	if config != nil && len(config.Schemas) > 0 {
		return config.Schemas
	}
	return []string{"public"}
}
