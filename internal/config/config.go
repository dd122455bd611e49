// Package config loads the server's environment-sourced settings
// (spec.md §6): DATABASE_URL, HOST, PORT, WORK_DIR, SSH_ROOT, all required
// at startup.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds the resolved environment. All fields are mandatory.
type Config struct {
	DatabaseURL string
	Host        string
	Port        string
	WorkDir     string
	SSHRoot     string
}

type requiredVar struct {
	name  string
	value *string
}

// Load reads a local .env file if one is present (ignored if absent — real
// deployments set these in the process environment directly) via
// github.com/joho/godotenv, then resolves the five required variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	vars := []requiredVar{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"HOST", &cfg.Host},
		{"PORT", &cfg.Port},
		{"WORK_DIR", &cfg.WorkDir},
		{"SSH_ROOT", &cfg.SSHRoot},
	}

	var missing []string
	for _, v := range vars {
		*v.value = os.Getenv(v.name)
		if *v.value == "" {
			missing = append(missing, v.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

// Addr is the HOST:PORT pair the HTTP transport binds to.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}
