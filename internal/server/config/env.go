package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/vlesskeeper/internal/flagx"
	"github.com/joho/godotenv"
)

const (
	EnvAdminIDs  = "ADMIN_IDS"
	EnvSecretKey = "VLESSKEEPER_SECRET_KEY"
)

// loadEnvFile loads the dotenv file named by -env (default .env).
func loadEnvFile() {
	if err := LoadEnvFile(flagx.EnvFileFlags()); err != nil {
		panic(err)
	}
}

// LoadEnvFile loads the dotenv file at path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// parseEnv copies the admin allow-list and JWT secret from the environment.
func parseEnv(config *Config) {
	if err := config.ApplyEnv(); err != nil {
		panic(err)
	}
}

// ApplyEnv sets AdminIDs from ADMIN_IDS and SecretKey from
// VLESSKEEPER_SECRET_KEY when those are set.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvAdminIDs); ok {
		ids, err := ParseAdminIDs(v)
		if err != nil {
			return err
		}
		c.AdminIDs = ids
	}
	if v, ok := os.LookupEnv(EnvSecretKey); ok && v != "" {
		c.SecretKey = v
	}
	return nil
}

// ParseAdminIDs parses a comma separated list of integer ids. Blank entries
// are skipped.
func ParseAdminIDs(s string) ([]int64, error) {
	ids := []int64{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
