package proxy

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/fivegmag/rt-5gms-application-server/internal/config"
	"github.com/fivegmag/rt-5gms-application-server/internal/supervisor"
)

// Backend is the capability set a data-plane proxy integration provides. The
// application server configures and supervises exactly one backend, chosen
// from the registry at startup.
type Backend interface {
	// Name returns a human readable name for the proxy.
	Name() string
	// IsPresent reports whether the proxy is installed on this system.
	IsPresent() bool

	// WriteConfig translates the current control-plane state into the
	// proxy's configuration file. Generation is all-or-nothing: on error no
	// file is written.
	WriteConfig() error
	// TidyConfig removes the generated configuration file.
	TidyConfig() error

	// UpdateConfig swaps in a freshly loaded application configuration,
	// taking effect on the next WriteConfig.
	UpdateConfig(cfg *config.Config)

	Start() error
	Wait(ctx context.Context) (*supervisor.ExitStatus, error)
	Stop() error
	Signal(sig os.Signal) bool
	// Reload asks the running proxy to re-read its configuration. It reports
	// false when no proxy is running.
	Reload() bool
	// RapidStartCount reports the number of proxy starts within the
	// supervisor's rapid-restart window.
	RapidStartCount() int

	// Purge operations delete entries from the proxy's on-disk cache for one
	// provisioning session and return the number of entries removed.
	PurgeAll(psid string) (int, error)
	PurgeRegex(psid, pattern string) (int, error)
	PurgePrefix(psid, prefix string) (int, error)
	PurgePath(psid, path string) (int, error)
}

// InvalidPatternError reports a purge pattern that failed to compile, so the
// API edge can name the offending parameter.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid purge pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error {
	return e.Err
}

type entry struct {
	priority int
	backend  Backend
}

// Registry holds the compiled-in proxy backends with their selection
// priorities. It replaces dynamic backend discovery: the controller
// constructs one registry, registers every built backend, and selects the
// best present one.
type Registry struct {
	entries []entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a backend with its selection priority. Lower numbers are
// preferred.
func (r *Registry) Register(priority int, backend Backend) {
	r.entries = append(r.entries, entry{priority: priority, backend: backend})
}

// Select returns the highest-priority backend whose proxy is present on the
// system, or nil when none is.
func (r *Registry) Select() Backend {
	sorted := make([]entry, len(r.entries))
	copy(sorted, r.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].priority != sorted[j].priority {
			return sorted[i].priority < sorted[j].priority
		}
		return sorted[i].backend.Name() < sorted[j].backend.Name()
	})

	for _, e := range sorted {
		if e.backend.IsPresent() {
			return e.backend
		}
	}
	return nil
}

// Names returns the names of all registered backends.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.backend.Name())
	}
	return names
}
