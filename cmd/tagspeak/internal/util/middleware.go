package util

import (
	"github.com/urfave/cli/v2"

	"github.com/tagspeak/tagspeak/pkg/logging"
	"github.com/tagspeak/tagspeak/pkg/tracing"
)

// Middleware wraps a command action.
type Middleware func(cli.ActionFunc) cli.ActionFunc

// Chain wraps cmd in the given middleware; the first one listed runs outermost.
func Chain(cmd cli.ActionFunc, middleware ...Middleware) cli.ActionFunc {
	wrapped := cmd
	for i := len(middleware) - 1; i >= 0; i-- {
		wrapped = middleware[i](wrapped)
	}
	return wrapped
}

// WithLogger puts a logger on the command's context, honoring --verbose and --quiet.
// --json implies --quiet, so the error stream holds nothing but the JSON error.
func WithLogger(next cli.ActionFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		logger := logging.NewLogger(c.App.Writer, c.App.ErrWriter, c.Bool("verbose"))
		if c.Bool("quiet") || c.Bool("json") {
			logger = logger.Quiet()
		}
		c.Context = logger.WithContext(c.Context)
		return next(c)
	}
}

// WithTracing sets up the exporters named by the --trace.* flags and runs the command
// inside a "tagspeak <command>" span. Spans are flushed before the command returns.
// Without any exporter the context gets the no-op tracer.
func WithTracing(next cli.ActionFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		outer := c.Context
		provider, err := NewTracerProvider(outer, TraceOptionsFromFlags(c), c.App.Version)
		if err != nil {
			return err
		}
		if provider == nil {
			c.Context = tracing.WithTracer(outer, nil)
		} else {
			defer func() {
				if err := provider.Shutdown(outer); err != nil {
					logging.Ctx(outer).Debug("[trace]", "flushing spans: %s", err)
				}
			}()
			c.Context = tracing.WithTracer(outer, provider.Tracer(ServiceName))
		}

		ctx, span := tracing.StartCommand(c.Context, c.Command.Name, c.Args().Slice())
		defer span.End()
		c.Context = ctx
		err = next(c)
		tracing.Fail(ctx, err)
		return err
	}
}
