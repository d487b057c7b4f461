package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	full := writeTempJSON(t, dir, "full.json", map[string]any{
		"listen_addr":             "127.0.0.1:9999",
		"xray_config_path":        "/etc/xray/config.json",
		"users_db_path":           "/var/lib/vlesskeeper/users.json",
		"server_info_path":        "/var/lib/vlesskeeper/server_info.txt",
		"database_dsn":            "postgres://u:p@db/vk",
		"lock_path":               "/run/vk.lock",
		"address_echo_url":        "http://echo.local",
		"address_timeout":         "2s",
		"public_address":          "198.51.100.1",
		"derive_public_key":       true,
		"service_name":            "xray@main",
		"reload_timeout":          "30s",
		"email_domain":            "example.org",
		"admin_ids":               []int64{1, 2},
		"secret_key":              "my_secret_key",
		"token_validity_duration": "1h",
		"s3_root_user":            "user",
		"s3_root_password":        "password",
		"s3_bucket":               "bucket",
		"s3_region":               "region",
		"s3_base_endpoint":        "base_endpoint",
		"log_json":                true,
		"log_debug":               true,
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", full}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "127.0.0.1:9999", cfg.ListenAddr)
		assert.Equal(t, "/etc/xray/config.json", cfg.XrayConfigPath)
		assert.Equal(t, "/var/lib/vlesskeeper/users.json", cfg.UsersDBPath)
		assert.Equal(t, "/var/lib/vlesskeeper/server_info.txt", cfg.ServerInfoPath)
		assert.Equal(t, "postgres://u:p@db/vk", cfg.DatabaseDSN)
		assert.Equal(t, "/run/vk.lock", cfg.LockPath)
		assert.Equal(t, "http://echo.local", cfg.AddressEchoURL)
		assert.Equal(t, 2*time.Second, cfg.AddressTimeout)
		assert.Equal(t, "198.51.100.1", cfg.PublicAddress)
		assert.True(t, cfg.DerivePublicKey)
		assert.Equal(t, "xray@main", cfg.ServiceName)
		assert.Equal(t, 30*time.Second, cfg.ReloadTimeout)
		assert.Equal(t, "example.org", cfg.EmailDomain)
		assert.Equal(t, []int64{1, 2}, cfg.AdminIDs)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, time.Hour, cfg.TokenValidityDuration)
		assert.Equal(t, "user", cfg.S3RootUser)
		assert.Equal(t, "password", cfg.S3RootPassword)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "region", cfg.S3Region)
		assert.Equal(t, "base_endpoint", cfg.S3BaseEndpoint)
		assert.True(t, cfg.LogJSON)
		assert.True(t, cfg.LogDebug)
	})

	t.Run("partial file keeps other values", func(t *testing.T) {
		partial := writeTempJSON(t, dir, "partial.json", map[string]any{
			"service_name": "xray-test",
		})
		os.Args = []string{"testbin", "-c", partial}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "xray-test", cfg.ServiceName)
		assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
		assert.Equal(t, 10*time.Second, cfg.ReloadTimeout)
	})

	t.Run("no config flag → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{ListenAddr: "defaults:1234", ReloadTimeout: time.Minute}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.ListenAddr)
		assert.Equal(t, time.Minute, cfg.ReloadTimeout)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})

	t.Run("missing file → panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", filepath.Join(dir, "nope.json")}
		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
