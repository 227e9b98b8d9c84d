package main

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/mitchellh/cli"

	cmdServer "github.com/fivegmag/rt-5gms-application-server/internal/commands/server"
	cmdVersion "github.com/fivegmag/rt-5gms-application-server/internal/commands/version"

	"github.com/fivegmag/rt-5gms-application-server/version"
)

func main() {
	ui := &cli.BasicUi{Writer: os.Stdout, ErrorWriter: os.Stderr}
	os.Exit(run(os.Args[1:], ui, os.Stdout))
}

func run(args []string, ui cli.Ui, logOutput io.Writer) int {
	c := cli.NewCLI("rt-5gms-as", version.GetHumanVersion())
	c.Args = args
	c.Commands = initializeCommands(ui, logOutput)
	c.HelpWriter = logOutput

	exitStatus, err := c.Run()
	if err != nil {
		log.Println(err)
	}
	return exitStatus
}

func initializeCommands(ui cli.Ui, logOutput io.Writer) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"server": func() (cli.Command, error) {
			return cmdServer.New(context.Background(), ui, logOutput), nil
		},
		"version": func() (cli.Command, error) {
			return &cmdVersion.Command{UI: ui, Version: version.GetHumanVersion()}, nil
		},
	}
}
