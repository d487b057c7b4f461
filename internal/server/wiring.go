package server

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/vlesskeeper/internal/directory"
	"github.com/dmitrijs2005/vlesskeeper/internal/logging"
	"github.com/dmitrijs2005/vlesskeeper/internal/metadata"
	"github.com/dmitrijs2005/vlesskeeper/internal/provisioning"
	"github.com/dmitrijs2005/vlesskeeper/internal/reload"
	"github.com/dmitrijs2005/vlesskeeper/internal/server/config"
	"github.com/dmitrijs2005/vlesskeeper/internal/snapshot"
	"github.com/dmitrijs2005/vlesskeeper/internal/xrayconfig"
)

var (
	openPostgres = func(ctx context.Context, dsn string) (directoryBackend, error) {
		return directory.OpenPostgres(ctx, dsn)
	}

	newSnapshotter = func(ctx context.Context, opts snapshot.Options) (snapshot.Snapshotter, error) {
		return snapshot.NewS3Snapshotter(ctx, opts)
	}

	newReloader = func(service string, timeout time.Duration) reload.Reloader {
		return reload.NewSystemdReloader(service, timeout)
	}
)

type directoryBackend interface {
	directory.Store
	io.Closer
}

type nopCloser struct {
	directory.Store
}

func (nopCloser) Close() error { return nil }

// NewProvisioningService builds the coordinator described by c. The returned
// closer releases the directory backend.
func NewProvisioningService(ctx context.Context, c *config.Config, logger logging.Logger) (*provisioning.Service, io.Closer, error) {
	var dir directoryBackend = nopCloser{directory.NewFileStore(c.UsersDBPath)}
	if c.DatabaseDSN != "" {
		pg, err := openPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("db init error: %w", err)
		}
		dir = pg
	}

	cfgStore := xrayconfig.NewStore(c.XrayConfigPath)

	opts := metadata.Options{
		EchoURL:        c.AddressEchoURL,
		Timeout:        c.AddressTimeout,
		StaticAddress:  c.PublicAddress,
		ServerInfoPath: c.ServerInfoPath,
	}
	if c.DerivePublicKey {
		opts.KeySource = cfgStore
	}
	resolver := metadata.NewResolver(opts, logger)

	var snap snapshot.Snapshotter
	if c.S3Bucket != "" {
		s, err := newSnapshotter(ctx, snapshot.Options{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			_ = dir.Close()
			return nil, nil, fmt.Errorf("snapshot init error: %w", err)
		}
		snap = s
	}

	svc := provisioning.NewService(dir, cfgStore, resolver, newReloader(c.ServiceName, c.ReloadTimeout), provisioning.Options{
		EmailDomain: c.EmailDomain,
		LockPath:    c.EffectiveLockPath(),
		Snapshotter: snap,
	}, logger)

	if err := svc.Init(ctx); err != nil {
		_ = dir.Close()
		return nil, nil, err
	}

	return svc, dir, nil
}
