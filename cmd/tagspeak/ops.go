package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/tagspeak/tagspeak/cmd/tagspeak/internal/util"
	"github.com/tagspeak/tagspeak/pkg/ops"
	"github.com/tagspeak/tagspeak/pkg/render"
)

var opsCmdDef = cli.Command{
	Name:  "ops",
	Usage: "List every packet operation",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "markdown",
			Usage: "Print the raw markdown instead of rendering it",
		},
		&cli.StringFlag{
			Name:  "style",
			Usage: "Rendering style: dark, light, notty or ascii",
		},
	},
	Action: util.Chain(cmdOps,
		util.WithLogger,
	),
}

func cmdOps(c *cli.Context) error {
	md := render.CatalogMarkdown(ops.NewRegistry().Entries())
	if c.Bool("markdown") {
		fmt.Fprint(c.App.Writer, md)
		return nil
	}
	style, width := c.String("style"), 100
	if f, ok := c.App.Writer.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			width = w
		}
		if style == "" {
			style = "dark"
		}
	}
	if style == "" {
		style = "notty"
	}
	out, err := render.Markdown(md, style, width)
	if err != nil {
		return err
	}
	fmt.Fprint(c.App.Writer, out)
	return nil
}
