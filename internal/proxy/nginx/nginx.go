package nginx

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/fivegmag/rt-5gms-application-server/internal/common"
	"github.com/fivegmag/rt-5gms-application-server/internal/config"
	"github.com/fivegmag/rt-5gms-application-server/internal/metrics"
	"github.com/fivegmag/rt-5gms-application-server/internal/proxy"
	"github.com/fivegmag/rt-5gms-application-server/internal/store"
	"github.com/fivegmag/rt-5gms-application-server/internal/supervisor"
)

const (
	backendName = "nginx"

	// presenceCheckInterval rate-limits executable lookups for IsPresent.
	presenceCheckInterval = 5 * time.Second
)

var _ proxy.Backend = &Nginx{}

// Nginx is the proxy backend for the nginx web server: it renders the
// reverse-proxy configuration from the control store, supervises the nginx
// process and purges its on-disk cache.
type Nginx struct {
	logger hclog.Logger
	super  *supervisor.Supervisor
	store  *store.Store

	mutex sync.RWMutex
	cfg   *config.Config

	presenceMutex     sync.Mutex
	executable        string
	lastPresenceCheck time.Time
}

func New(logger hclog.Logger, cfg *config.Config, controlStore *store.Store) *Nginx {
	return &Nginx{
		logger: logger,
		super:  supervisor.New(logger.Named("supervisor")),
		store:  controlStore,
		cfg:    cfg,
	}
}

func (n *Nginx) Name() string {
	return backendName
}

// IsPresent checks whether nginx is installed, caching the executable lookup
// between close-together calls.
func (n *Nginx) IsPresent() bool {
	return n.executablePath() != ""
}

func (n *Nginx) executablePath() string {
	n.presenceMutex.Lock()
	defer n.presenceMutex.Unlock()

	now := time.Now()
	if n.lastPresenceCheck.IsZero() || now.Sub(n.lastPresenceCheck) > presenceCheckInterval {
		n.lastPresenceCheck = now
		n.executable = common.FindOnPath(backendName)
	}
	return n.executable
}

func (n *Nginx) config() *config.Config {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	return n.cfg
}

// UpdateConfig swaps in a freshly loaded application configuration; it takes
// effect on the next WriteConfig.
func (n *Nginx) UpdateConfig(cfg *config.Config) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.cfg = cfg
}

// WriteConfig renders the nginx configuration from the control store and
// writes it atomically to the configured path. On any translation failure no
// file is written.
func (n *Nginx) WriteConfig() error {
	cfg := n.config()

	servers, err := buildServerConfigs(cfg, n.store)
	if err != nil {
		return err
	}
	if err := writeConfigFile(cfg.Nginx.ConfigPath, renderConfig(cfg, servers)); err != nil {
		return err
	}

	metrics.Registry.IncrCounter(metrics.ProxyConfigWrites, 1)
	n.logger.Debug("wrote nginx configuration", "path", cfg.Nginx.ConfigPath, "servers", len(servers))
	return nil
}

// TidyConfig deletes the generated configuration file.
func (n *Nginx) TidyConfig() error {
	cfg := n.config()
	if err := os.Remove(cfg.Nginx.ConfigPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Start spawns nginx in the foreground against the generated configuration.
// Only the command line flags the local nginx build advertises in its help
// output are passed.
func (n *Nginx) Start() error {
	exe := n.executablePath()
	if exe == "" {
		return errors.New("nginx executable not found")
	}

	cfg := n.config()
	argv := supervisor.FilterArgs(exe, []supervisor.Flag{
		supervisor.ValueFlag("-e", cfg.Nginx.ErrorLogPath),
		supervisor.ValueFlag("-c", cfg.Nginx.ConfigPath),
		supervisor.ValueFlag("-g", "daemon off;"),
	})
	return n.super.Start(argv)
}

// Wait blocks until nginx exits and logs its captured output, stderr at
// error level when the exit was abnormal.
func (n *Nginx) Wait(ctx context.Context) (*supervisor.ExitStatus, error) {
	exit, err := n.super.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if exit.Code != 0 {
		if exit.Stdout != "" {
			n.logger.Info(exit.Stdout)
		}
		if exit.Stderr != "" {
			n.logger.Error(exit.Stderr)
		}
	} else if exit.Stdout != "" {
		n.logger.Info(exit.Stdout)
	}
	return exit, nil
}

func (n *Nginx) Stop() error {
	return n.super.Stop()
}

func (n *Nginx) Signal(sig os.Signal) bool {
	return n.super.Signal(sig)
}

// Reload asks a running nginx to re-read its configuration.
func (n *Nginx) Reload() bool {
	return n.super.Signal(syscall.SIGHUP)
}

// RapidStartCount reports the number of nginx starts within the supervisor's
// rapid-restart window.
func (n *Nginx) RapidStartCount() int {
	return n.super.RapidStartCount()
}
