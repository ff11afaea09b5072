package util

import (
	"context"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/tagspeak/tagspeak/pkg/logging"
	"github.com/tagspeak/tagspeak/tsapi"
)

// ServiceName identifies tagspeak in exported traces.
const ServiceName = "tagspeak"

// TraceOptions selects where spans go. The zero value exports nothing.
type TraceOptions struct {
	File         string // write spans to this file as pretty JSON
	HTTP         bool   // export over OTLP/HTTP
	HTTPEndpoint string // host:port; the exporter's default when empty
	HTTPInsecure bool
}

// TraceOptionsFromFlags reads the global --trace.* flags.
func TraceOptionsFromFlags(c *cli.Context) TraceOptions {
	return TraceOptions{
		File:         c.String("trace.file"),
		HTTP:         c.Bool("trace.http.enable"),
		HTTPEndpoint: c.String("trace.http.endpoint"),
		HTTPInsecure: c.Bool("trace.http.insecure"),
	}
}

func (o TraceOptions) enabled() bool {
	return o.File != "" || o.HTTP
}

// newResource describes this process to the trace backend.
// The semconv version must match the one resource.Default uses, or the merge fails.
func newResource(version string) (*resource.Resource, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(version),
		semconv.ProcessPID(os.Getpid()),
	))
	if err != nil {
		return nil, err
	}
	return resource.Merge(res, resource.Environment())
}

// NewTracerProvider builds a provider exporting to every destination opts names.
// It returns nil, and builds nothing, when opts names none.
//
// Errors:
//
//   - tagspeak-error-io -- if the trace file cannot be created.
//   - tagspeak-error-internal -- if the resource or an exporter cannot be built.
func NewTracerProvider(ctx context.Context, opts TraceOptions, version string) (_ *sdktrace.TracerProvider, retErr error) {
	if !opts.enabled() {
		return nil, nil
	}
	log := logging.Ctx(ctx)
	res, err := newResource(version)
	if err != nil {
		return nil, tsapi.ErrorInternal("describing the tracing resource", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	if opts.File != "" {
		log.Debug("[trace]", "writing spans to %s", opts.File)
		fileExporter, err := newFileSpanExporter(opts.File)
		if err != nil {
			return nil, err
		}
		defer func() {
			if retErr != nil {
				fileExporter.Shutdown(ctx)
			}
		}()
		providerOpts = append(providerOpts, sdktrace.WithBatcher(fileExporter))
	}
	if opts.HTTP {
		var httpOpts []otlptracehttp.Option
		if opts.HTTPEndpoint != "" {
			log.Debug("[trace]", "otlp endpoint: %s", opts.HTTPEndpoint)
			httpOpts = append(httpOpts, otlptracehttp.WithEndpoint(opts.HTTPEndpoint))
		}
		if opts.HTTPInsecure {
			httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
		}
		httpExporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(httpOpts...))
		if err != nil {
			return nil, tsapi.ErrorInternal("starting the otlp exporter", err)
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(httpExporter))
	}
	return sdktrace.NewTracerProvider(providerOpts...), nil
}

// fileSpanExporter closes its file once the spans are flushed.
type fileSpanExporter struct {
	sdktrace.SpanExporter
	file io.Closer
}

// Shutdown flushes pending spans, then closes the file.
//
// Errors:
//
//   - tagspeak-error-internal -- if the spans cannot be flushed.
func (e *fileSpanExporter) Shutdown(ctx context.Context) error {
	defer e.file.Close()
	if err := e.SpanExporter.Shutdown(ctx); err != nil {
		return tsapi.ErrorInternal("flushing the trace file", err)
	}
	return nil
}

func newFileSpanExporter(name string) (*fileSpanExporter, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, tsapi.ErrorIo("creating trace file", name, err)
	}
	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(f),
		stdouttrace.WithPrettyPrint(),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		f.Close()
		return nil, tsapi.ErrorInternal("starting the trace file exporter", err)
	}
	return &fileSpanExporter{SpanExporter: exp, file: f}, nil
}
