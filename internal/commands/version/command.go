package version

import (
	"fmt"

	"github.com/mitchellh/cli"
)

type Command struct {
	UI      cli.Ui
	Version string
}

func (c *Command) Run(_ []string) int {
	c.UI.Output(fmt.Sprintf("rt-5gms-as %s", c.Version))
	return 0
}

func (c *Command) Synopsis() string {
	return "Prints the version of the application server"
}

func (c *Command) Help() string {
	return ""
}
