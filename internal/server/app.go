// Package server wires the provisioning core to its HTTP API and runs it
// until the process is signalled.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/vlesskeeper/internal/logging"
	"github.com/dmitrijs2005/vlesskeeper/internal/server/config"
	"github.com/dmitrijs2005/vlesskeeper/internal/server/httpapi"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	handler *httpapi.Handler
	closer  io.Closer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.CheckSecretKey(); err != nil {
		return nil, err
	}

	logger := logging.New(os.Stdout, logging.Options{JSON: c.LogJSON, Debug: c.LogDebug})

	svc, closer, err := NewProvisioningService(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	h := httpapi.NewHandler(svc, []byte(c.SecretKey), c.IsAdmin, logger)

	return &App{config: c, logger: logger, handler: h, closer: closer}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.ListenAddr,
		Handler:           app.handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "http api listening", "addr", app.config.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.closer.Close(); err != nil {
		app.logger.Error(ctx, "close directory", "error", err)
	}
	app.logger.Info(ctx, "stopped")
}
