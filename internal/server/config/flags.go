package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/vlesskeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP API bind address (e.g., "127.0.0.1:8080")
//	-x string   Xray config path
//	-u string   users db path
//	-i string   server info artifact path
//	-d string   PostgreSQL DSN for the directory
//	-l string   lock file path
//	-e string   address echo URL
//	-p string   static public address
//	-n string   systemd service name
//	-s string   JWT HMAC secret key
//
// os.Args is filtered with flagx.FilterArgs first so flags owned by other
// components do not trip the parser.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-x", "-u", "-i", "-d", "-l", "-e", "-p", "-n", "-s"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to run server")
	fs.StringVar(&config.XrayConfigPath, "x", config.XrayConfigPath, "xray config path")
	fs.StringVar(&config.UsersDBPath, "u", config.UsersDBPath, "users db path")
	fs.StringVar(&config.ServerInfoPath, "i", config.ServerInfoPath, "server info path")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.LockPath, "l", config.LockPath, "lock file path")
	fs.StringVar(&config.AddressEchoURL, "e", config.AddressEchoURL, "public address echo URL")
	fs.StringVar(&config.PublicAddress, "p", config.PublicAddress, "static public address")
	fs.StringVar(&config.ServiceName, "n", config.ServiceName, "systemd service name")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
