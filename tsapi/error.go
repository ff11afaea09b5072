package tsapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/serum-errors/go-serum"
)

const (
	ECodeParse               = "tagspeak-error-parse"
	ECodeUnknownOperation    = "tagspeak-error-unknown-operation"
	ECodeSandboxBoundary     = "tagspeak-error-sandbox-boundary"
	ECodeSandboxRequired     = "tagspeak-error-sandbox-required"
	ECodeConsentRequired     = "tagspeak-error-consent-required"
	ECodeRunDepthExceeded    = "tagspeak-error-run-depth-exceeded"
	ECodeVariableMissing     = "tagspeak-error-variable-missing"
	ECodeNonNumeric          = "tagspeak-error-non-numeric"
	ECodeVariableExists      = "tagspeak-error-variable-exists"
	ECodeHandleUnknown       = "tagspeak-error-handle-unknown"
	ECodeReplAlreadyActive   = "tagspeak-error-repl-already-active"
	ECodeFormatUnsupported   = "tagspeak-error-format-unsupported"
	ECodeUndefinedFunction   = "tagspeak-error-undefined-function"
	ECodeAsyncUnknown        = "tagspeak-error-async-unknown"
	ECodeAsyncDuplicate      = "tagspeak-error-async-duplicate"
	ECodeNetworkDenied       = "tagspeak-error-network-denied"
	ECodeExecFailed          = "tagspeak-error-exec-failed"
	ECodeDocumentConflict    = "tagspeak-error-document-conflict"
	ECodeEditPath            = "tagspeak-error-edit-path"
	ECodeIo                  = "tagspeak-error-io"
	ECodeSerialization       = "tagspeak-error-serialization"
	ECodeInvalid             = "tagspeak-error-invalid"
	ECodeInternal            = "tagspeak-error-internal"
	ECodeSearchingFilesystem = "tagspeak-error-searching-filesystem"
)

// Parse error kinds, reported in the "kind" detail of a tagspeak-error-parse.
const (
	ParseUnterminatedString = "unterminated-string"
	ParseUnbalanced         = "unbalanced-brackets"
	ParseEmptyArgument      = "empty-argument"
	ParseEmptyPacket        = "empty-packet"
	ParseUnexpectedToken    = "unexpected-token"
	ParseBadCondition       = "bad-condition"
)

// TerminalError emits an error on stdout as json, and halts immediately.
// Prefer returning errors; this exists for init paths where nothing else is wired yet.
func TerminalError(err serum.ErrorInterface, exitCode int) {
	json.NewEncoder(os.Stdout).Encode(struct {
		Error serum.ErrorInterface `json:"error"`
	}{err})
	os.Exit(exitCode)
}

// ErrorInternal is for miscellaneous errors that should be handled internally.
//
// Errors:
//
//   - tagspeak-error-internal --
func ErrorInternal(msgTmpl string, cause error) error {
	return serum.Errorf(ECodeInternal, "%s: %w", msgTmpl, cause)
}

// ErrorInvalid is returned when something is invalid.
// The caller must format the message string.
//
// Errors:
//
//   - tagspeak-error-invalid --
func ErrorInvalid(message string, deets ...[2]string) error {
	opts := make([]serum.WithConstruction, 0, len(deets)+1)
	for _, d := range deets {
		opts = append(opts, serum.WithDetail(d[0], d[1]))
	}
	opts = append(opts, serum.WithMessageLiteral(message))
	return serum.Error(ECodeInvalid, opts...)
}

// ErrorParse is returned for any syntax problem found before execution begins.
// Line and column are 1-based.
//
// Errors:
//
//   - tagspeak-error-parse --
func ErrorParse(kind string, line, col int, snippet, hint string) error {
	return serum.Error(ECodeParse,
		serum.WithMessageTemplate("parse error ({{kind}}) at {{line}}:{{col}}: {{hint}}"),
		serum.WithDetail("kind", kind),
		serum.WithDetail("line", strconv.Itoa(line)),
		serum.WithDetail("col", strconv.Itoa(col)),
		serum.WithDetail("snippet", snippet),
		serum.WithDetail("hint", hint),
	)
}

// ErrorUnknownOperation is returned when no handler is registered for a packet.
// The suggestion may be empty.
//
// Errors:
//
//   - tagspeak-error-unknown-operation --
func ErrorUnknownOperation(token string, suggestion string) error {
	msg := fmt.Sprintf("unknown operation %q", token)
	if suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	return serum.Error(ECodeUnknownOperation,
		serum.WithMessageLiteral(msg),
		serum.WithDetail("token", token),
		serum.WithDetail("suggestion", suggestion),
	)
}

// ErrorSandboxBoundary is returned when a requested path resolves outside the sandbox root.
//
// Errors:
//
//   - tagspeak-error-sandbox-boundary --
func ErrorSandboxBoundary(root string, request string) error {
	return serum.Error(ECodeSandboxBoundary,
		serum.WithMessageTemplate("path {{request|q}} escapes the sandbox root {{root|q}}"),
		serum.WithDetail("root", root),
		serum.WithDetail("request", request),
	)
}

// ErrorSandboxRequired is returned when a gated packet runs without a red.tgsk root.
//
// Errors:
//
//   - tagspeak-error-sandbox-required --
func ErrorSandboxRequired(op string) error {
	return serum.Error(ECodeSandboxRequired,
		serum.WithMessageTemplate("{{op}} requires a sandbox root: create a red.tgsk file in the project directory"),
		serum.WithDetail("op", op),
	)
}

// ErrorConsentRequired is returned when the yellow gate is not satisfied.
// Reason is "yellow" when the packet was outside any yellow block, "declined" when a prompt was refused.
//
// Errors:
//
//   - tagspeak-error-consent-required --
func ErrorConsentRequired(op string, key string, reason string) error {
	return serum.Error(ECodeConsentRequired,
		serum.WithMessageLiteral(fmt.Sprintf("%s needs consent (%s): wrap it in a yellow block or allow %q in the project config", op, reason, key)),
		serum.WithDetail("op", op),
		serum.WithDetail("key", key),
		serum.WithDetail("reason", reason),
	)
}

// ErrorRunDepthExceeded is returned when nested run packets recurse too deeply.
//
// Errors:
//
//   - tagspeak-error-run-depth-exceeded --
func ErrorRunDepthExceeded(path string, max int) error {
	return serum.Error(ECodeRunDepthExceeded,
		serum.WithMessageTemplate("running {{path|q}} would exceed the maximum run depth of {{max}}"),
		serum.WithDetail("path", path),
		serum.WithDetail("max", strconv.Itoa(max)),
	)
}

// ErrorVariableMissing is returned when a packet needs a variable that is not set.
//
// Errors:
//
//   - tagspeak-error-variable-missing --
func ErrorVariableMissing(name string) error {
	return serum.Error(ECodeVariableMissing,
		serum.WithMessageTemplate("variable {{name|q}} is not set"),
		serum.WithDetail("name", name),
	)
}

// ErrorNonNumeric is returned when a value cannot be coerced to a number.
//
// Errors:
//
//   - tagspeak-error-non-numeric --
func ErrorNonNumeric(what string, got string) error {
	return serum.Error(ECodeNonNumeric,
		serum.WithMessageTemplate("{{what}} is not numeric (got {{got|q}})"),
		serum.WithDetail("what", what),
		serum.WithDetail("got", got),
	)
}

// ErrorVariableExists is returned when a rigid variable would be written a second time.
//
// Errors:
//
//   - tagspeak-error-variable-exists --
func ErrorVariableExists(name string) error {
	return serum.Error(ECodeVariableExists,
		serum.WithMessageTemplate("variable {{name|q}} exists and is rigid"),
		serum.WithDetail("name", name),
	)
}

// ErrorHandleUnknown is returned when a document handle does not name a Doc variable.
//
// Errors:
//
//   - tagspeak-error-handle-unknown --
func ErrorHandleUnknown(handle string) error {
	return serum.Error(ECodeHandleUnknown,
		serum.WithMessageTemplate("{{handle|q}} is not a loaded document"),
		serum.WithDetail("handle", handle),
	)
}

// ErrorReplAlreadyActive is returned when a second REPL is started in the same process.
//
// Errors:
//
//   - tagspeak-error-repl-already-active --
func ErrorReplAlreadyActive() error {
	return serum.Error(ECodeReplAlreadyActive,
		serum.WithMessageLiteral("a REPL session is already active in this process"),
	)
}

// ErrorFormatUnsupported is returned for unknown document extensions or render modes.
//
// Errors:
//
//   - tagspeak-error-format-unsupported --
func ErrorFormatUnsupported(format string) error {
	return serum.Error(ECodeFormatUnsupported,
		serum.WithMessageTemplate("unsupported document format {{format|q}}"),
		serum.WithDetail("format", format),
	)
}

// ErrorUndefinedFunction is returned by call when no tag has the requested name.
//
// Errors:
//
//   - tagspeak-error-undefined-function --
func ErrorUndefinedFunction(name string) error {
	return serum.Error(ECodeUndefinedFunction,
		serum.WithMessageTemplate("undefined function {{name|q}}"),
		serum.WithDetail("name", name),
	)
}

// ErrorAsyncUnknown is returned when awaiting a task that was never spawned or was already awaited.
//
// Errors:
//
//   - tagspeak-error-async-unknown --
func ErrorAsyncUnknown(name string) error {
	return serum.Error(ECodeAsyncUnknown,
		serum.WithMessageTemplate("no pending async task named {{name|q}}"),
		serum.WithDetail("name", name),
	)
}

// ErrorAsyncDuplicate is returned when spawning a task under a name that is still pending.
//
// Errors:
//
//   - tagspeak-error-async-duplicate --
func ErrorAsyncDuplicate(name string) error {
	return serum.Error(ECodeAsyncDuplicate,
		serum.WithMessageTemplate("async task {{name|q}} is already pending"),
		serum.WithDetail("name", name),
	)
}

// ErrorNetworkDenied is returned when a URL matches no network.allow pattern.
//
// Errors:
//
//   - tagspeak-error-network-denied --
func ErrorNetworkDenied(url string) error {
	return serum.Error(ECodeNetworkDenied,
		serum.WithMessageTemplate("network access to {{url|q}} is not allowed by network.allow"),
		serum.WithDetail("url", url),
	)
}

// ErrorExecFailed is returned when a shell command cannot be parsed or exits non-zero.
//
// Errors:
//
//   - tagspeak-error-exec-failed --
func ErrorExecFailed(command string, cause error) error {
	result := serum.Errorf(ECodeExecFailed, "exec of %q failed: %w", command, cause)
	addDetails(result, [][2]string{
		{"command", command},
	})
	return result
}

// ErrorDocumentConflict is returned when a document's file changed on disk since it was loaded.
//
// Errors:
//
//   - tagspeak-error-document-conflict --
func ErrorDocumentConflict(path string) error {
	return serum.Error(ECodeDocumentConflict,
		serum.WithMessageTemplate("refusing to save: {{path|q}} was modified since it was loaded"),
		serum.WithDetail("path", path),
	)
}

// ErrorEditPath is returned for malformed or inapplicable document edit operations.
//
// Errors:
//
//   - tagspeak-error-edit-path --
func ErrorEditPath(path string, reason string) error {
	return serum.Error(ECodeEditPath,
		serum.WithMessageTemplate("edit path {{path|q}}: {{reason}}"),
		serum.WithDetail("path", path),
		serum.WithDetail("reason", reason),
	)
}

// ErrorIo wraps generic I/O errors from the Go stdlib
//
// Errors:
//
//   - tagspeak-error-io --
func ErrorIo(context string, path string, cause error) error {
	result := serum.Errorf(ECodeIo, "io error: %s: %w", context, cause)
	addDetails(result, [][2]string{{"context", context}, {"path", path}})
	return result
}

// ErrorSerialization is returned when a serialization or deserialization error occurs
//
// Errors:
//
//   - tagspeak-error-serialization --
func ErrorSerialization(context string, cause error) error {
	result := serum.Errorf(ECodeSerialization, "serialization error: %s: %w", context, cause)
	addDetails(result, [][2]string{
		{"context", context},
	})
	return result
}

// ErrorSearchingFilesystem is returned when an error occurs during search
//
// Errors:
//
//   - tagspeak-error-searching-filesystem --
func ErrorSearchingFilesystem(searchingFor string, cause error) error {
	result := serum.Errorf(ECodeSearchingFilesystem,
		"error while searching filesystem for %s: %w", searchingFor, cause)
	addDetails(result, [][2]string{
		{"searchingFor", searchingFor},
	})
	return result
}

// AnnotateLocation attaches the location of the packet that failed to an error.
// The error code is unchanged. Errors that already carry a line are left alone.
func AnnotateLocation(err error, pos Pos, token string) error {
	s, ok := err.(*serum.ErrorValue)
	if !ok {
		return err
	}
	for _, d := range s.Data.Details {
		if d[0] == "line" {
			return err
		}
	}
	addDetails(err, [][2]string{
		{"line", strconv.Itoa(pos.Line)},
		{"col", strconv.Itoa(pos.Col)},
		{"packet", token},
	})
	return err
}

// AnnotateScript records which script an error came from, for errors raised inside a nested run.
// Errors that already name a script are left alone.
func AnnotateScript(err error, path string) error {
	if Detail(err, "script") != "" {
		return err
	}
	addDetails(err, [][2]string{{"script", path}})
	return err
}

// addDetails works around serum not allowing details alongside a %w message.
func addDetails(err error, details [][2]string) {
	s, ok := err.(*serum.ErrorValue)
	if !ok {
		return
	}
	s.Data.Details = append(s.Data.Details, details...)
}

// Code returns the tagspeak error code carried by err.
// Errors from outside this module (plain Go errors, or serum errors with foreign codes)
// report ECodeInternal; a nil err has no code.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var se serum.ErrorInterface
	if errors.As(err, &se) && strings.HasPrefix(se.Code(), "tagspeak-error-") {
		return se.Code()
	}
	return ECodeInternal
}

// Detail returns the value of the named serum detail on err, or "" when absent.
func Detail(err error, key string) string {
	for _, d := range serum.Details(err) {
		if d[0] == key {
			return d[1]
		}
	}
	return ""
}
