package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tagspeak/tagspeak/pkg/render"
	"github.com/tagspeak/tagspeak/pkg/value"
)

const VERSION = "v0.1.0"

func makeApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "tagspeak"
	app.Version = VERSION
	app.Usage = "Run scripts written as chains of [packets]."
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Reader = stdin
	app.Metadata = map[string]interface{}{}
	cli.VersionFlag = &cli.BoolFlag{
		Name: "version",
	}
	app.HideVersion = true
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			EnvVars: []string{"TAGSPEAK_DEBUG"},
		},
		&cli.BoolFlag{
			Name: "quiet",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Enable JSON API output",
		},
		&cli.StringFlag{
			Name:      "trace.file",
			Usage:     "Enable tracing and emit output to file",
			TakesFile: true,
		},
		&cli.BoolFlag{
			Name:  "trace.http.enable",
			Usage: "Enable remote tracing over http",
		},
		&cli.BoolFlag{
			Name:  "trace.http.insecure",
			Usage: "Allows insecure http",
		},
		&cli.StringFlag{
			Name:  "trace.http.endpoint",
			Usage: "Sets an endpoint for remote open-telemetry tracing collection",
		},
	}
	app.ExitErrHandler = exitErrHandler
	app.After = afterFunc
	app.Commands = []*cli.Command{
		&runCmdDef,
		&checkCmdDef,
		&evalCmdDef,
		&opsCmdDef,
		&replCmdDef,
	}
	return app
}

// Called after a command returns an non-nil error value.
// Prints the error to stderr: as JSON with --json, otherwise as a box pointing into
// the script named by c.App.Metadata["source"], when a command set it.
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	if c.Bool("json") {
		bytes, err := json.Marshal(err)
		if err != nil {
			panic("error marshaling json")
		}
		fmt.Fprintf(c.App.ErrWriter, "%s\n", string(bytes))
		return
	}
	src, _ := c.App.Metadata["source"].(string)
	rep := render.NewReport(c.App.ErrWriter)
	if f, ok := c.App.ErrWriter.(*os.File); !ok || f != os.Stderr {
		rep = render.PlainReport()
	}
	fmt.Fprintf(c.App.ErrWriter, "%s\n", rep.Error(err, src))
}

// Called after any command completes. With --json, a command may set
// c.App.Metadata["result"] to a value.Value to have it printed to stdout.
func afterFunc(c *cli.Context) error {
	if !c.Bool("json") {
		return nil
	}
	v, ok := c.App.Metadata["result"].(value.Value)
	if !ok {
		return nil
	}
	serial, err := value.Encode(value.FormatJSON, map[string]any{"result": value.FromValue(v)})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s\n", serial)
	return nil
}

func main() {
	err := makeApp(os.Stdin, os.Stdout, os.Stderr).Run(os.Args)
	if err != nil {
		os.Exit(1)
	}
}
