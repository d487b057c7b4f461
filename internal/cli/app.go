// Package cli implements vlesskeeper-cli, an operator tool that drives the
// same provisioning coordinator as the daemon directly against the stores.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/vlesskeeper/internal/buildinfo"
	"github.com/dmitrijs2005/vlesskeeper/internal/directory"
	"github.com/dmitrijs2005/vlesskeeper/internal/logging"
	"github.com/dmitrijs2005/vlesskeeper/internal/provisioning"
	"github.com/dmitrijs2005/vlesskeeper/internal/server"
	"github.com/dmitrijs2005/vlesskeeper/internal/server/config"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

// Provisioner is the part of provisioning.Service the commands use.
type Provisioner interface {
	Add(ctx context.Context, username string, externalID *int64) (*provisioning.Result, error)
	Remove(ctx context.Context, username string) (*provisioning.RemoveResult, error)
	Get(ctx context.Context, username string) (*directory.User, error)
	List(ctx context.Context) ([]directory.User, error)
	Descriptor(ctx context.Context, username string) (string, error)
}

var newProvisioner = func(ctx context.Context, c *config.Config, logger logging.Logger) (Provisioner, io.Closer, error) {
	return server.NewProvisioningService(ctx, c, logger)
}

// ErrUsage is returned for missing or extra positional arguments.
var ErrUsage = errors.New("usage error")

type App struct {
	out    io.Writer
	errOut io.Writer
	isTTY  func() bool

	cfg    *config.Config
	svc    Provisioner
	closer io.Closer
}

func NewApp(out, errOut io.Writer) *App {
	return &App{
		out:    out,
		errOut: errOut,
		isTTY: func() bool {
			f, ok := out.(*os.File)
			return ok && term.IsTerminal(int(f.Fd()))
		},
	}
}

var (
	flagConfig = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "JSON configuration file",
	}
	flagEnv = &cli.StringFlag{
		Name:  "env",
		Value: ".env",
		Usage: "dotenv file to load",
	}
	flagXrayConfig = &cli.StringFlag{
		Name:    "xray-config",
		Aliases: []string{"x"},
		Usage:   "Xray config path",
	}
	flagUsersDB = &cli.StringFlag{
		Name:    "users-db",
		Aliases: []string{"u"},
		Usage:   "users db path",
	}
	flagDatabaseDSN = &cli.StringFlag{
		Name:    "database-dsn",
		Aliases: []string{"d"},
		Usage:   "PostgreSQL DSN for the directory",
	}
	flagPublicAddress = &cli.StringFlag{
		Name:    "public-address",
		Aliases: []string{"p"},
		Usage:   "static public address used in new links",
	}
	flagJSON = &cli.BoolFlag{
		Name:  "json",
		Usage: "always print JSON",
	}
	flagDebug = &cli.BoolFlag{
		Name:  "debug",
		Usage: "log debug messages to stderr",
	}
	flagExternalID = &cli.Int64Flag{
		Name:    "external-id",
		Aliases: []string{"e"},
		Usage:   "messaging-platform id to link the user to",
	}
	flagValidity = &cli.DurationFlag{
		Name:  "validity",
		Usage: "token lifetime (defaults to token_validity_duration)",
	}
)

func (a *App) cliApp() *cli.App {
	return &cli.App{
		Name:      "vlesskeeper-cli",
		Usage:     "manage VLESS users on this server",
		Version:   buildinfo.Version(),
		Writer:    a.out,
		ErrWriter: a.errOut,
		Flags: []cli.Flag{
			flagConfig,
			flagEnv,
			flagXrayConfig,
			flagUsersDB,
			flagDatabaseDSN,
			flagPublicAddress,
			flagJSON,
			flagDebug,
		},
		Before: a.loadConfig,
		After:  a.close,
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "provision a new user",
				ArgsUsage: "<username>",
				Flags:     []cli.Flag{flagExternalID},
				Action:    a.add,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "revoke a user",
				ArgsUsage: "<username>",
				Action:    a.remove,
			},
			{
				Name:      "show",
				Usage:     "print a user record",
				ArgsUsage: "<username>",
				Action:    a.show,
			},
			{
				Name:      "link",
				Usage:     "print a user's connection link",
				ArgsUsage: "<username>",
				Action:    a.link,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "list users in creation order",
				Action:  a.list,
			},
			{
				Name:      "token",
				Usage:     "mint an API token for a front-end user",
				ArgsUsage: "<external-id>",
				Flags:     []cli.Flag{flagValidity},
				Action:    a.token,
			},
		},
	}
}

// Run executes the command line in args (args[0] is the program name).
func (a *App) Run(ctx context.Context, args []string) error {
	return a.cliApp().RunContext(ctx, args)
}

// loadConfig applies defaults, the dotenv file, the JSON file, environment
// variables and global flags, in that order.
func (a *App) loadConfig(cCtx *cli.Context) error {
	if err := config.LoadEnvFile(cCtx.String(flagEnv.Name)); err != nil {
		return err
	}

	c := &config.Config{}
	c.LoadDefaults()

	if path := cCtx.String(flagConfig.Name); path != "" {
		if err := c.ApplyFile(path); err != nil {
			return err
		}
	}
	if err := c.ApplyEnv(); err != nil {
		return err
	}

	if cCtx.IsSet(flagXrayConfig.Name) {
		c.XrayConfigPath = cCtx.String(flagXrayConfig.Name)
	}
	if cCtx.IsSet(flagUsersDB.Name) {
		c.UsersDBPath = cCtx.String(flagUsersDB.Name)
	}
	if cCtx.IsSet(flagDatabaseDSN.Name) {
		c.DatabaseDSN = cCtx.String(flagDatabaseDSN.Name)
	}
	if cCtx.IsSet(flagPublicAddress.Name) {
		c.PublicAddress = cCtx.String(flagPublicAddress.Name)
	}
	if cCtx.Bool(flagDebug.Name) {
		c.LogDebug = true
	}

	a.cfg = c
	return nil
}

// service opens the stores on first use so that commands like token do not
// need them.
func (a *App) service(cCtx *cli.Context) (Provisioner, error) {
	if a.svc != nil {
		return a.svc, nil
	}

	logger := logging.New(a.errOut, logging.Options{Debug: a.cfg.LogDebug})
	svc, closer, err := newProvisioner(cCtx.Context, a.cfg, logger)
	if err != nil {
		return nil, err
	}
	a.svc, a.closer = svc, closer
	return svc, nil
}

func (a *App) close(cCtx *cli.Context) error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

func oneArg(cCtx *cli.Context, name string) (string, error) {
	if cCtx.NArg() != 1 {
		return "", fmt.Errorf("%w: %s expects exactly one %s", ErrUsage, cCtx.Command.Name, name)
	}
	return cCtx.Args().First(), nil
}
