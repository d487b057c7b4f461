// Package config handles configuration for the daemon: defaults, an optional
// dotenv file, a JSON overlay and command-line flags, applied in that order
// with environment variables taking precedence over the JSON file.
package config

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/vlesskeeper/internal/common"
)

// DevSecretKey is the placeholder secret set by LoadDefaults. Tokens cannot
// be issued or accepted while it is in use.
const DevSecretKey = "secretKey"

// Config holds runtime settings for the vlesskeeper daemon and CLI.
//
// Fields:
//   - ListenAddr: bind address of the HTTP API.
//   - XrayConfigPath / UsersDBPath / ServerInfoPath: the proxy config, the
//     user directory file and the setup artifact holding the public key.
//   - DatabaseDSN: PostgreSQL DSN for the directory; empty keeps it in UsersDBPath.
//   - LockPath: flocked around mutations; empty means UsersDBPath + ".lock".
//   - AddressEchoURL / AddressTimeout / PublicAddress: public address lookup.
//   - DerivePublicKey: derive the Reality public key from the proxy config
//     when the setup artifact has none.
//   - ServiceName / ReloadTimeout: systemd unit restarted after changes.
//   - AdminIDs: external ids allowed to manage other users.
//   - SecretKey / TokenValidityDuration: HS256 bearer tokens.
//   - S3*: snapshot archive, disabled while S3Bucket is empty.
type Config struct {
	ListenAddr            string
	XrayConfigPath        string
	UsersDBPath           string
	ServerInfoPath        string
	DatabaseDSN           string
	LockPath              string
	AddressEchoURL        string
	AddressTimeout        time.Duration
	PublicAddress         string
	DerivePublicKey       bool
	ServiceName           string
	ReloadTimeout         time.Duration
	EmailDomain           string
	AdminIDs              []int64
	SecretKey             string
	TokenValidityDuration time.Duration
	S3RootUser            string
	S3RootPassword        string
	S3Bucket              string
	S3Region              string
	S3BaseEndpoint        string
	LogJSON               bool
	LogDebug              bool
}

// LoadDefaults sets the paths and values of a stock Xray Reality install.
// The API binds to loopback unless ListenAddr is overridden.
func (c *Config) LoadDefaults() {
	c.ListenAddr = "127.0.0.1:8080"
	c.XrayConfigPath = "/usr/local/etc/xray/config.json"
	c.UsersDBPath = "/root/users.json"
	c.ServerInfoPath = "/root/server_info.txt"
	c.AddressEchoURL = "https://ifconfig.me"
	c.AddressTimeout = 5 * time.Second
	c.ServiceName = "xray"
	c.ReloadTimeout = 10 * time.Second
	c.EmailDomain = "vpn.local"
	c.SecretKey = DevSecretKey
	c.TokenValidityDuration = 24 * time.Hour
	c.S3Region = "us-east-1"
}

// EffectiveLockPath returns LockPath or its default next to the users file.
func (c *Config) EffectiveLockPath() string {
	if c.LockPath != "" {
		return c.LockPath
	}
	return c.UsersDBPath + ".lock"
}

// IsAdmin reports whether id is on the admin allow-list.
func (c *Config) IsAdmin(id int64) bool {
	for _, a := range c.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

// CheckSecretKey fails with common.ErrorInsecureSecret unless SecretKey was
// set to something other than DevSecretKey.
func (c *Config) CheckSecretKey() error {
	if c.SecretKey == "" || c.SecretKey == DevSecretKey {
		return fmt.Errorf("%w: set secret_key, -s or %s", common.ErrorInsecureSecret, EnvSecretKey)
	}
	return nil
}

// LoadConfig builds a Config from defaults, the dotenv file, the JSON file,
// environment variables and finally command-line flags.
func LoadConfig() *Config {
	loadEnvFile()

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
