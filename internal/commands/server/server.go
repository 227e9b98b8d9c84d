package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/fivegmag/rt-5gms-application-server/internal/api"
	"github.com/fivegmag/rt-5gms-application-server/internal/certificates"
	"github.com/fivegmag/rt-5gms-application-server/internal/common"
	"github.com/fivegmag/rt-5gms-application-server/internal/config"
	"github.com/fivegmag/rt-5gms-application-server/internal/metrics"
	"github.com/fivegmag/rt-5gms-application-server/internal/profiling"
	"github.com/fivegmag/rt-5gms-application-server/internal/proxy"
	"github.com/fivegmag/rt-5gms-application-server/internal/proxy/nginx"
	"github.com/fivegmag/rt-5gms-application-server/internal/store"
	"github.com/fivegmag/rt-5gms-application-server/internal/supervisor"
)

const (
	// maxRapidStarts is the number of proxy starts tolerated within the
	// supervisor's window before the server gives up.
	maxRapidStarts = 5

	apiShutdownTimeout = 10 * time.Second
)

type ServerConfig struct {
	Context     context.Context
	Logger      hclog.Logger
	ConfigPath  string
	MetricsPort int
	PprofPort   int
}

// RunServer drives the application server: it seeds the certificate cache,
// builds the control store, selects a proxy backend, generates the initial
// proxy configuration, starts the proxy and the M3 API server, and then
// multiplexes child-exit, API-exit and process signals until told to exit.
func RunServer(serverConfig ServerConfig) int {
	logger := serverConfig.Logger

	cfg, err := config.Load(serverConfig.ConfigPath)
	if err != nil {
		logger.Error("error loading application configuration", "error", err)
		return 1
	}
	if serverConfig.MetricsPort != 0 {
		cfg.MetricsPort = serverConfig.MetricsPort
	}
	if serverConfig.PprofPort != 0 {
		cfg.PprofPort = serverConfig.PprofPort
	}

	common.AugmentPath()

	certCache, err := certificates.NewCache(logger.Named("certificates"), cfg.CertificateDirectory)
	if err != nil {
		logger.Error("error seeding the certificate cache", "error", err)
		return 1
	}
	controlStore := store.New(logger.Named("store"), certCache)

	registry := proxy.NewRegistry()
	registry.Register(1, nginx.New(logger.Named("nginx"), cfg, controlStore))

	backend := registry.Select()
	if backend == nil {
		logger.Error("no usable web proxy found, please install at least one of: " +
			common.ListJoin(registry.Names(), ", ", " or "))
		return 1
	}
	logger.Info("selected web proxy", "name", backend.Name())

	if err := backend.WriteConfig(); err != nil {
		logger.Error("unable to write out the web proxy configuration", "error", err)
		return 1
	}
	if err := backend.Start(); err != nil {
		logger.Error("unable to start the web proxy", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(serverConfig.Context)
	defer cancel()

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM)
	defer func() {
		signal.Stop(reload)
		signal.Stop(exit)
	}()

	apiServer := api.NewServer(api.ServerConfig{
		Logger:          logger.Named("m3-server"),
		Address:         cfg.M3ListenAddress,
		Store:           controlStore,
		Backend:         backend,
		ShutdownTimeout: apiShutdownTimeout,
	})
	apiExit := make(chan error, 1)
	go func() {
		apiExit <- apiServer.Run(ctx)
	}()

	group, groupCtx := errgroup.WithContext(ctx)
	if cfg.MetricsPort != 0 {
		group.Go(func() error {
			return metrics.RunServer(groupCtx, logger.Named("metrics"), fmt.Sprintf("127.0.0.1:%d", cfg.MetricsPort))
		})
	}
	if cfg.PprofPort != 0 {
		group.Go(func() error {
			return profiling.RunServer(groupCtx, logger.Named("pprof"), fmt.Sprintf("127.0.0.1:%d", cfg.PprofPort))
		})
	}

	// Waits are cancellable without killing the child, so teardown can
	// abandon them before stopping the proxy.
	waitCtx, cancelWaits := context.WithCancel(context.Background())
	defer cancelWaits()

	childExit := make(chan *supervisor.ExitStatus, 1)
	watchChild := func() {
		go func() {
			status, err := backend.Wait(waitCtx)
			if err != nil {
				// the wait was abandoned
				return
			}
			childExit <- status
		}()
	}
	watchChild()

	exitCode := 0
	for running := true; running; {
		select {
		case <-reload:
			logger.Info("reload signal received")
			reloadConfiguration(logger, serverConfig.ConfigPath, backend, certCache, controlStore)

		case sig := <-exit:
			logger.Info("exit signal received, shutting down", "signal", sig)
			running = false

		case err := <-apiExit:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("M3 API server failed", "error", err)
			} else {
				logger.Error("M3 API server exited unexpectedly")
			}
			exitCode = 1
			running = false

		case status := <-childExit:
			logger.Warn("web proxy exited", "code", status.Code)

			if backend.RapidStartCount() > maxRapidStarts {
				logger.Error("web proxy is restarting too rapidly, giving up")
				exitCode = 1
				running = false
				break
			}

			metrics.Registry.IncrCounter(metrics.ProxyRestarts, 1)
			err := backoff.Retry(func() error {
				return backend.Start()
			}, backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 3))
			if err != nil {
				logger.Error("unable to restart the web proxy", "error", err)
				exitCode = 1
				running = false
				break
			}
			watchChild()
		}
	}

	cancelWaits()
	cancel()
	if err := group.Wait(); err != nil {
		logger.Error("unexpected error", "error", err)
	}

	if err := backend.Stop(); err != nil {
		logger.Error("unable to stop the web proxy", "error", err)
		return 1
	}
	if err := backend.TidyConfig(); err != nil {
		logger.Warn("unable to tidy up the web proxy configuration", "error", err)
		return 2
	}
	return exitCode
}

// reloadConfiguration handles the reload signal: re-read the application
// configuration and the certificate directory, re-verify certificate
// cross-references, rewrite the proxy configuration and ask the proxy to
// pick it up.
func reloadConfiguration(logger hclog.Logger, configPath string, backend proxy.Backend, certCache *certificates.Cache, controlStore *store.Store) {
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("error reloading application configuration, keeping the previous one", "error", err)
	} else {
		backend.UpdateConfig(cfg)
	}

	if err := certCache.Reload(); err != nil {
		logger.Error("error reloading the certificate cache", "error", err)
	}
	if err := controlStore.ReassessCrossReferences(); err != nil {
		logger.Error("certificate cross-references are no longer satisfied", "error", err)
	}

	if err := backend.WriteConfig(); err != nil {
		logger.Error("unable to rewrite the web proxy configuration", "error", err)
		return
	}
	backend.Reload()
}
