package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/tagspeak/tagspeak/cmd/tagspeak/internal/util"
	"github.com/tagspeak/tagspeak/pkg/config"
	"github.com/tagspeak/tagspeak/pkg/interp"
	"github.com/tagspeak/tagspeak/tsapi"
)

// replScript opens the REPL the way a script would, so the usual consent applies.
const replScript = `[yellow@"interactive session"]{[repl]}`

var replCmdDef = cli.Command{
	Name:  "repl",
	Usage: "Read and evaluate packets interactively; exit or quit to leave",
	Action: util.Chain(cmdRepl,
		util.WithLogger,
		util.WithTracing,
	),
}

func cmdRepl(c *cli.Context) error {
	cwd, err := os.Getwd()
	if err != nil {
		return tsapi.ErrorIo("finding working directory", ".", err)
	}
	result, _, err := interp.RunSource(c.Context, replScript, filepath.Join(cwd, "<repl>"), runOptions(c), config.LoadEnv())
	if err != nil {
		return err
	}
	c.App.Metadata["result"] = result
	return nil
}
