package server

import (
	"context"
	"io"

	mcli "github.com/mitchellh/cli"

	"github.com/fivegmag/rt-5gms-application-server/internal/cli"
)

type Command struct {
	*cli.CommonCLI

	flagConfig      string // Path to the application configuration file
	flagMetricsPort int    // Port for prometheus metrics
	flagPprofPort   int    // Port for pprof profiling
}

// New returns a new server command
func New(ctx context.Context, ui mcli.Ui, logOutput io.Writer) *Command {
	c := &Command{
		CommonCLI: cli.NewCommonCLI(ctx, help, synopsis, ui, logOutput, "server"),
	}
	c.Flags.StringVar(&c.flagConfig, "config", "", "Path to the application configuration file.")
	c.Flags.IntVar(&c.flagMetricsPort, "metrics-port", 0, "Metrics port, overriding the configuration file; if neither sets one, metrics are not enabled.")
	c.Flags.IntVar(&c.flagPprofPort, "pprof-port", 0, "Go pprof port, overriding the configuration file; if neither sets one, profiling is not enabled.")
	return c
}

func (c *Command) Run(args []string) int {
	if err := c.Parse(args); err != nil {
		return 1
	}

	logger := c.Logger("rt-5gms-as")

	return RunServer(ServerConfig{
		Context:     c.Context(),
		Logger:      logger,
		ConfigPath:  c.flagConfig,
		MetricsPort: c.flagMetricsPort,
		PprofPort:   c.flagPprofPort,
	})
}

const (
	synopsis = "Starts the 5GMS application server"
	help     = `
Usage: rt-5gms-as server [options]

  Starts the application server: the M3 configuration interface for an
  external web proxy daemon. The server translates provisioning sessions and
  certificates received over M3 into a reverse proxy configuration,
  supervises the proxy process and purges its cache on request.
`
)
