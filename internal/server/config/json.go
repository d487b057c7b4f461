package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/vlesskeeper/internal/flagx"
	"github.com/dmitrijs2005/vlesskeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations are
// timex.Duration so both "10s" and integer nanoseconds are accepted.
type JsonConfig struct {
	ListenAddr            string         `json:"listen_addr"`
	XrayConfigPath        string         `json:"xray_config_path"`
	UsersDBPath           string         `json:"users_db_path"`
	ServerInfoPath        string         `json:"server_info_path"`
	DatabaseDSN           string         `json:"database_dsn"`
	LockPath              string         `json:"lock_path"`
	AddressEchoURL        string         `json:"address_echo_url"`
	AddressTimeout        timex.Duration `json:"address_timeout"`
	PublicAddress         string         `json:"public_address"`
	DerivePublicKey       bool           `json:"derive_public_key"`
	ServiceName           string         `json:"service_name"`
	ReloadTimeout         timex.Duration `json:"reload_timeout"`
	EmailDomain           string         `json:"email_domain"`
	AdminIDs              []int64        `json:"admin_ids"`
	SecretKey             string         `json:"secret_key"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	S3RootUser            string         `json:"s3_root_user"`
	S3RootPassword        string         `json:"s3_root_password"`
	S3Bucket              string         `json:"s3_bucket"`
	S3Region              string         `json:"s3_region"`
	S3BaseEndpoint        string         `json:"s3_base_endpoint"`
	LogJSON               bool           `json:"log_json"`
	LogDebug              bool           `json:"log_debug"`
}

// parseJson overlays the JSON file named by -c or -config onto config. An
// unreadable or invalid file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	if err := config.ApplyFile(jsonConfigFile); err != nil {
		panic(err)
	}
}

// ApplyFile overlays the JSON file at path onto c. Keys absent from the file
// keep their current values.
func (c *Config) ApplyFile(path string) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	j := toJson(c)
	if err := json.Unmarshal(file, j); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	c.ListenAddr = j.ListenAddr
	c.XrayConfigPath = j.XrayConfigPath
	c.UsersDBPath = j.UsersDBPath
	c.ServerInfoPath = j.ServerInfoPath
	c.DatabaseDSN = j.DatabaseDSN
	c.LockPath = j.LockPath
	c.AddressEchoURL = j.AddressEchoURL
	c.AddressTimeout = time.Duration(j.AddressTimeout.Duration)
	c.PublicAddress = j.PublicAddress
	c.DerivePublicKey = j.DerivePublicKey
	c.ServiceName = j.ServiceName
	c.ReloadTimeout = time.Duration(j.ReloadTimeout.Duration)
	c.EmailDomain = j.EmailDomain
	c.AdminIDs = j.AdminIDs
	c.SecretKey = j.SecretKey
	c.TokenValidityDuration = time.Duration(j.TokenValidityDuration.Duration)
	c.S3RootUser = j.S3RootUser
	c.S3RootPassword = j.S3RootPassword
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
	c.LogJSON = j.LogJSON
	c.LogDebug = j.LogDebug
	return nil
}

func toJson(config *Config) *JsonConfig {
	return &JsonConfig{
		ListenAddr:            config.ListenAddr,
		XrayConfigPath:        config.XrayConfigPath,
		UsersDBPath:           config.UsersDBPath,
		ServerInfoPath:        config.ServerInfoPath,
		DatabaseDSN:           config.DatabaseDSN,
		LockPath:              config.LockPath,
		AddressEchoURL:        config.AddressEchoURL,
		AddressTimeout:        timex.Duration{Duration: config.AddressTimeout},
		PublicAddress:         config.PublicAddress,
		DerivePublicKey:       config.DerivePublicKey,
		ServiceName:           config.ServiceName,
		ReloadTimeout:         timex.Duration{Duration: config.ReloadTimeout},
		EmailDomain:           config.EmailDomain,
		AdminIDs:              config.AdminIDs,
		SecretKey:             config.SecretKey,
		TokenValidityDuration: timex.Duration{Duration: config.TokenValidityDuration},
		S3RootUser:            config.S3RootUser,
		S3RootPassword:        config.S3RootPassword,
		S3Bucket:              config.S3Bucket,
		S3Region:              config.S3Region,
		S3BaseEndpoint:        config.S3BaseEndpoint,
		LogJSON:               config.LogJSON,
		LogDebug:              config.LogDebug,
	}
}
