package tracing

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys used by tagspeak
const (
	AttrKeyTagspeakCommand     = "tagspeak.command"
	AttrKeyTagspeakCommandArgs = "tagspeak.command.args"
	AttrKeyTagspeakLine        = "tagspeak.packet.line"
	AttrKeyTagspeakErrorCode   = "tagspeak.error.code"
	AttrKeyTagspeakScriptPath  = "tagspeak.script.path"
	AttrKeyTagspeakPacket      = "tagspeak.packet"
	AttrKeyTagspeakRunDepth    = "tagspeak.run.depth"
	AttrKeyTagspeakTaskName    = "tagspeak.task.name"
	AttrKeyTagspeakTaskKind    = "tagspeak.task.kind"
	AttrKeyTagspeakGateKind    = "tagspeak.gate.kind"
)

// Attribute values
const (
	AttrValueTaskKindAsync    = "async"
	AttrValueTaskKindTimeout  = "timeout"
	AttrValueTaskKindInterval = "interval"
)

// Enumerated attributes
var (
	AttrFullTaskKindAsync    = attribute.String(AttrKeyTagspeakTaskKind, AttrValueTaskKindAsync)
	AttrFullTaskKindTimeout  = attribute.String(AttrKeyTagspeakTaskKind, AttrValueTaskKindTimeout)
	AttrFullTaskKindInterval = attribute.String(AttrKeyTagspeakTaskKind, AttrValueTaskKindInterval)
)
