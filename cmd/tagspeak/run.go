package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"github.com/warpfork/go-fsx"
	"github.com/warpfork/go-fsx/osfs"

	"github.com/tagspeak/tagspeak/cmd/tagspeak/internal/util"
	"github.com/tagspeak/tagspeak/pkg/config"
	"github.com/tagspeak/tagspeak/pkg/interp"
	"github.com/tagspeak/tagspeak/pkg/logging"
	"github.com/tagspeak/tagspeak/pkg/ops"
	"github.com/tagspeak/tagspeak/pkg/sandbox"
	"github.com/tagspeak/tagspeak/pkg/value"
	"github.com/tagspeak/tagspeak/tsapi"
)

// MainFilename is the script run when a directory is named.
const MainFilename = "main.tgsk"

var runCmdDef = cli.Command{
	Name:      "run",
	Usage:     "Run scripts",
	UsageText: "tagspeak run [script.tgsk | dir | dir/...]...",
	Description: "With no arguments, runs " + MainFilename + " in the current directory. " +
		"A directory runs its " + MainFilename + "; \"dir/...\" runs every " + MainFilename + " below dir.",
	Action: util.Chain(cmdRun,
		util.WithLogger,
		util.WithTracing,
	),
}

type runTarget struct {
	originalRequest string // the argument that produced this target; several targets can share one "dir/..."
	filename        string // checked to exist when the request named it directly
}

// findRunTargets turns CLI args into the list of scripts they describe.
// A "..." walks the directory up-front, collecting every main script found;
// a walk with no matches produces no targets and no complaint.
// Specific requests that do not exist are errors, reported before anything runs.
//
// Errors:
//
//   - tagspeak-error-invalid -- if a named file or directory does not hold a script.
//   - tagspeak-error-searching-filesystem -- if a walk fails.
func findRunTargets(args []string, fs fsx.FS) ([]runTarget, error) {
	if len(args) == 0 {
		if isFile, _ := fsx.IsPathFile(fs, MainFilename); !isFile {
			return nil, tsapi.ErrorInvalid("nothing to run: no "+MainFilename+" in the current directory",
				[2]string{"request", "."})
		}
		return []runTarget{{originalRequest: ".", filename: MainFilename}}, nil
	}

	var results []runTarget
	for _, arg := range args {
		if filepath.Base(arg) == "..." {
			err := fsx.WalkDir(fs, filepath.Dir(arg), func(path string, _ fsx.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if filepath.Base(path) == MainFilename {
					results = append(results, runTarget{originalRequest: arg, filename: path})
				}
				return nil
			})
			if err != nil {
				return nil, tsapi.ErrorSearchingFilesystem("scripts matching "+arg, err)
			}
			continue
		}

		fi, err := os.Stat(arg)
		if err != nil {
			return nil, tsapi.ErrorInvalid("nothing to run at "+arg+": "+err.Error(), [2]string{"request", arg})
		}
		if fi.IsDir() {
			filename := filepath.Join(arg, MainFilename)
			if isFile, _ := fsx.IsPathFile(fs, filename); !isFile {
				return nil, tsapi.ErrorInvalid("nothing to run at "+arg+": the directory has no "+MainFilename,
					[2]string{"request", arg})
			}
			results = append(results, runTarget{originalRequest: arg, filename: filename})
			continue
		}
		results = append(results, runTarget{originalRequest: arg, filename: arg})
	}
	return results, nil
}

// runOptions wires a runtime to the CLI's streams.
// Prompts go to the err stream so they never mix with script output.
func runOptions(c *cli.Context) interp.Options {
	stdin, _ := c.App.Reader.(*os.File)
	return interp.Options{
		Registry:    ops.NewRegistry(),
		Stdout:      c.App.Writer,
		Stdin:       c.App.Reader,
		Prompter:    sandbox.NewTerminalPrompter(c.App.Reader, c.App.ErrWriter),
		Interactive: sandbox.Interactive(config.Config{}, stdin),
	}
}

func cmdRun(c *cli.Context) error {
	ctx := c.Context
	logger := logging.Ctx(ctx)

	cwd, err := os.Getwd()
	if err != nil {
		return tsapi.ErrorIo("finding working directory", ".", err)
	}
	targets, err := findRunTargets(c.Args().Slice(), osfs.DirFS("."))
	if err != nil {
		return err
	}
	env := config.LoadEnv()
	var result value.Value
	for _, target := range targets {
		fullPath := filepath.Join(cwd, target.filename)
		logger.Debug("[run]", "running %q, as requested by the argument %q", fullPath, target.originalRequest)
		if src, err := os.ReadFile(fullPath); err == nil {
			c.App.Metadata["source"] = string(src)
		}
		result, _, err = interp.RunFile(ctx, fullPath, runOptions(c), env)
		if err != nil {
			return err
		}
	}
	c.App.Metadata["result"] = result
	return nil
}

var evalCmdDef = cli.Command{
	Name:      "eval",
	Usage:     "Run a script given on the command line",
	UsageText: "tagspeak eval '[int@1]>[print]'",
	Action: util.Chain(cmdEval,
		util.WithLogger,
		util.WithTracing,
	),
}

// cmdEval runs the arguments, joined by spaces, as if they were a script file in the current directory.
func cmdEval(c *cli.Context) error {
	if !c.Args().Present() {
		return tsapi.ErrorInvalid("no script given")
	}
	cwd, err := os.Getwd()
	if err != nil {
		return tsapi.ErrorIo("finding working directory", ".", err)
	}
	src := strings.Join(c.Args().Slice(), " ")
	c.App.Metadata["source"] = src
	result, _, err := interp.RunSource(c.Context, src, filepath.Join(cwd, "<eval>"), runOptions(c), config.LoadEnv())
	if err != nil {
		return err
	}
	c.App.Metadata["result"] = result
	return nil
}
