package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"github.com/warpfork/go-fsx/osfs"

	"github.com/tagspeak/tagspeak/cmd/tagspeak/internal/util"
	"github.com/tagspeak/tagspeak/pkg/logging"
	"github.com/tagspeak/tagspeak/pkg/parser"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

var checkCmdDef = cli.Command{
	Name:      "check",
	Usage:     "Check scripts for syntax errors without running them",
	UsageText: "tagspeak check [script.tgsk | dir | dir/...]...",
	Action: util.Chain(cmdCheck,
		util.WithLogger,
		util.WithTracing,
	),
}

func cmdCheck(c *cli.Context) error {
	logger := logging.Ctx(c.Context)
	targets, err := findRunTargets(c.Args().Slice(), osfs.DirFS("."))
	if err != nil {
		return err
	}
	checked := 0
	for _, target := range targets {
		src, err := os.ReadFile(target.filename)
		if err != nil {
			return tsapi.ErrorIo("reading script", target.filename, err)
		}
		c.App.Metadata["source"] = string(src)
		prog, err := parser.Parse(string(src))
		if err != nil {
			return err
		}
		logger.Info("[check]", "%s: ok (%d statements, %d tags)",
			filepath.ToSlash(target.filename), len(prog.Root.Nodes), len(prog.Tags))
		checked++
	}
	c.App.Metadata["result"] = value.Num(float64(checked))
	return nil
}
