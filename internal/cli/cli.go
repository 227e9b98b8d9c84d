package cli

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/kr/text"
	"github.com/mitchellh/cli"

	"github.com/fivegmag/rt-5gms-application-server/internal/common"
)

// CommonCLI carries the flags and helpers every subcommand shares: logging
// configuration, usage rendering and a logger factory.
type CommonCLI struct {
	UI       cli.Ui
	output   io.Writer
	ctx      context.Context
	usage    string
	synopsis string

	// Logging
	flagLogLevel string
	flagLogJSON  bool

	Flags *flag.FlagSet
}

func NewCommonCLI(ctx context.Context, usage, synopsis string, ui cli.Ui, logOutput io.Writer, name string) *CommonCLI {
	c := &CommonCLI{UI: ui, synopsis: synopsis, usage: usage, output: logOutput, ctx: ctx, Flags: flag.NewFlagSet(name, flag.ContinueOnError)}
	c.init()
	return c
}

func (c *CommonCLI) init() {
	c.Flags.StringVar(&c.flagLogLevel, "log-level", "info",
		`Log verbosity level. Supported values (in order of detail) are "trace", "debug", "info", "warn", and "error".`)
	c.Flags.BoolVar(&c.flagLogJSON, "log-json", false,
		"Enable or disable JSON output format for logging.")

	c.Flags.SetOutput(c.output)
}

func (c *CommonCLI) Context() context.Context {
	return c.ctx
}

func (c *CommonCLI) LogLevel() string {
	return c.flagLogLevel
}

func (c *CommonCLI) Output() io.Writer {
	return c.output
}

func (c *CommonCLI) Logger(name string) hclog.Logger {
	return common.CreateLogger(c.output, c.flagLogLevel, c.flagLogJSON, name)
}

func (c *CommonCLI) Parse(args []string) error {
	return c.Flags.Parse(args)
}

func (c *CommonCLI) Error(message string, err error) int {
	c.UI.Error("There was an error " + message + ":\n\t" + err.Error())
	return 1
}

func (c *CommonCLI) Success(message string) int {
	c.UI.Output(message)
	return 0
}

func (c *CommonCLI) Synopsis() string {
	return c.synopsis
}

// Help renders the usage text with the current flag set, so flags a command
// registers after construction are included.
func (c *CommonCLI) Help() string {
	return FlagUsage(c.usage, c.Flags)
}

func FlagUsage(usage string, flags *flag.FlagSet) string {
	out := new(bytes.Buffer)
	out.WriteString(strings.TrimSpace(usage))
	out.WriteString("\n")
	out.WriteString("\n")

	printTitle(out, "Command Options")
	flags.VisitAll(func(f *flag.Flag) {
		printFlag(out, f)
	})

	return strings.TrimRight(out.String(), "\n")
}

// printTitle prints a consistently-formatted title to the given writer.
func printTitle(w io.Writer, s string) {
	fmt.Fprintf(w, "%s\n\n", s)
}

// printFlag prints a single flag to the given writer.
func printFlag(w io.Writer, f *flag.Flag) {
	example, _ := flag.UnquoteUsage(f)
	if example != "" {
		fmt.Fprintf(w, "  -%s=<%s>\n", f.Name, example)
	} else {
		fmt.Fprintf(w, "  -%s\n", f.Name)
	}

	indented := wrapAtLength(f.Usage, 5)
	fmt.Fprintf(w, "%s\n\n", indented)
}

// maxLineLength is the maximum width of any line.
const maxLineLength int = 72

// wrapAtLength wraps the given text at the maxLineLength, taking into account
// any provided left padding.
func wrapAtLength(s string, pad int) string {
	wrapped := text.Wrap(s, maxLineLength-pad)
	lines := strings.Split(wrapped, "\n")
	for i, line := range lines {
		lines[i] = strings.Repeat(" ", pad) + line
	}
	return strings.Join(lines, "\n")
}
