package sandbox

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tagspeak/tagspeak/pkg/config"
	"github.com/tagspeak/tagspeak/pkg/logging"
	"github.com/tagspeak/tagspeak/pkg/tracing"
	"github.com/tagspeak/tagspeak/tsapi"
)

const LOG_TAG = "[gate]"

// Kind names the class of side effect a request performs.
type Kind string

const (
	KindExec    Kind = "exec"
	KindNetwork Kind = "network"
	KindRun     Kind = "run"
	KindRepl    Kind = "repl"
)

// Request describes one gated side effect.
type Request struct {
	Kind Kind
	Op   string // packet token, for messages
	Key  string // consent key remembered by "always"

	Commands []string // exec: every command name the shell line invokes
	URL      string   // network
	Path     string   // run: virtual path of the script
}

func (r Request) describe() string {
	switch r.Kind {
	case KindExec:
		return "run the command(s) " + strings.Join(r.Commands, ", ")
	case KindNetwork:
		return "contact " + r.URL
	case KindRun:
		return "run the script " + r.Path
	case KindRepl:
		return "start an interactive session"
	}
	return string(r.Kind)
}

// ExecKey is the consent key for an exec request.
func ExecKey(commands []string) string {
	return "exec:" + strings.Join(commands, ",")
}

// Gate decides whether gated requests may proceed.
type Gate struct {
	Config      config.Config
	Allow       *AllowSet
	Prompter    Prompter
	Interactive bool
}

// Check decides req given how many yellow blocks enclose the requesting packet.
//
// Errors:
//
//   - tagspeak-error-consent-required -- if nothing grants consent, or a prompt was declined.
//   - tagspeak-error-network-denied -- if a network request matches no network.allow pattern.
//   - tagspeak-error-io -- if the consent prompt could not be read.
func (g *Gate) Check(ctx context.Context, req Request, yellowDepth int) error {
	log := logging.Ctx(ctx)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(tracing.AttrKeyTagspeakGateKind, string(req.Kind)))
	cfg := g.Config
	switch req.Kind {
	case KindNetwork:
		if MatchURL(cfg.Network.Allow, req.URL) {
			log.Debug(LOG_TAG, "network %s: allowed by network.allow", req.URL)
			return nil
		}
		log.Debug(LOG_TAG, "network %s: denied", req.URL)
		return tsapi.ErrorNetworkDenied(req.URL)
	case KindExec:
		switch {
		case cfg.Security.AllowExec:
			log.Debug(LOG_TAG, "%s: allowed by security.allow_exec", req.Key)
			return nil
		case cfg.AllowYellow:
			log.Debug(LOG_TAG, "%s: allowed by %s", req.Key, config.EnvAllowYellow)
			return nil
		case len(req.Commands) > 0 && allAllowed(cfg, req.Commands):
			log.Debug(LOG_TAG, "%s: allowed by security.exec_allowlist", req.Key)
			return nil
		}
	case KindRun:
		switch {
		case !cfg.Run.RequireYellow:
			return nil
		case cfg.AllowRun:
			log.Debug(LOG_TAG, "%s: allowed by %s", req.Key, config.EnvAllowRun)
			return nil
		case cfg.AllowYellow:
			log.Debug(LOG_TAG, "%s: allowed by %s", req.Key, config.EnvAllowYellow)
			return nil
		}
	case KindRepl:
		if cfg.AllowYellow {
			log.Debug(LOG_TAG, "%s: allowed by %s", req.Key, config.EnvAllowYellow)
			return nil
		}
	}
	if g.Allow != nil && g.Allow.Has(req.Key) {
		log.Debug(LOG_TAG, "%s: allowed earlier in this process", req.Key)
		return nil
	}
	if yellowDepth <= 0 {
		log.Debug(LOG_TAG, "%s: outside any yellow block", req.Key)
		return tsapi.ErrorConsentRequired(req.Op, req.Key, "yellow")
	}
	return g.consent(ctx, req)
}

func (g *Gate) consent(ctx context.Context, req Request) error {
	log := logging.Ctx(ctx)
	if !g.Interactive || g.Prompter == nil {
		log.Debug(LOG_TAG, "%s: consented by yellow block", req.Key)
		return nil
	}
	answer, err := g.Prompter.Ask(ctx, req)
	if err != nil {
		return tsapi.ErrorIo("reading consent answer", "", err)
	}
	switch answer {
	case AnswerYes:
		log.Debug(LOG_TAG, "%s: consented once", req.Key)
		return nil
	case AnswerAlways:
		if g.Allow != nil {
			g.Allow.Add(req.Key)
		}
		log.Debug(LOG_TAG, "%s: consented for the rest of the process", req.Key)
		return nil
	}
	log.Debug(LOG_TAG, "%s: declined", req.Key)
	return tsapi.ErrorConsentRequired(req.Op, req.Key, "declined")
}

func allAllowed(cfg config.Config, commands []string) bool {
	for _, c := range commands {
		if !cfg.ExecAllowed(c) {
			return false
		}
	}
	return true
}
