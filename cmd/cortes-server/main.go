package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vango-go/cortes-live/internal/dotenv"
	"github.com/vango-go/cortes-live/pkg/core/persona"
	"github.com/vango-go/cortes-live/pkg/gateway/config"
	gatewayserver "github.com/vango-go/cortes-live/pkg/gateway/server"
)

const drainNotice = "The server is restarting. Please reconnect in a moment."

type serverDeps struct {
	loadConfig   func() (config.Config, error)
	loadCatalog  func(path string) (*persona.Catalog, error)
	newGateway   func(config.Config, *slog.Logger, ...gatewayserver.Option) *gatewayserver.Server
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServerDeps() serverDeps {
	return serverDeps{
		loadConfig:  config.LoadFromEnv,
		loadCatalog: persona.LoadFile,
		newGateway:  gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runServer(ctx context.Context, logger *slog.Logger, deps serverDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newGateway == nil {
		return errors.New("missing newGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var opts []gatewayserver.Option
	if cfg.PersonaFile != "" {
		if deps.loadCatalog == nil {
			return errors.New("missing loadCatalog dependency")
		}
		catalog, err := deps.loadCatalog(cfg.PersonaFile)
		if err != nil {
			return fmt.Errorf("load persona: %w", err)
		}
		opts = append(opts, gatewayserver.WithCatalog(catalog))
		logger.Info("persona override loaded", "path", cfg.PersonaFile)
	}

	gw := deps.newGateway(cfg, logger, opts...)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway", "addr", cfg.Addr, "avatar_enabled", cfg.AvatarEnabled(), "model", cfg.OpenAIModel)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.Lifecycle().SetDraining(true)
	notified := gw.LiveSessions().NotifyAll(drainNotice)
	logger.Info("draining live sessions", "sessions", gw.LiveSessions().Count(), "notified", notified)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.LiveSessions().Wait(waitCtx) {
		canceled := gw.LiveSessions().CancelAll()
		logger.Warn("live sessions canceled after grace period", "sessions", canceled)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps serverDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if _, err := dotenv.LoadFirst(".env", "../.env"); err != nil {
		fmt.Fprintf(stderr, "cortes-server: %v\n", err)
		return 1
	}

	if err := runServer(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "cortes-server: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultServerDeps()))
}
