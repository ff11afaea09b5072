package config

const (
	// EnvAllowExec permits every exec packet without a yellow block.
	EnvAllowExec = "TAGSPEAK_ALLOW_EXEC"
	// EnvMaxRunDepth overrides run.max_depth.
	EnvMaxRunDepth = "TAGSPEAK_MAX_RUN_DEPTH"
	// EnvNonInteractive disables consent prompts; yellow nesting alone is consent.
	EnvNonInteractive = "TAGSPEAK_NONINTERACTIVE"
	// EnvExecAllowlist replaces security.exec_allowlist with a comma separated list of command names.
	EnvExecAllowlist = "TAGSPEAK_EXEC_ALLOWLIST"
	// EnvAllowYellow satisfies every yellow gate.
	EnvAllowYellow = "TAGSPEAK_ALLOW_YELLOW"
	// EnvAllowRun satisfies the gate on nested run packets.
	EnvAllowRun = "TAGSPEAK_ALLOW_RUN"
)

// NOTE: keep this up to date or LoadEnv won't pick them up
var envKeys = []string{
	EnvAllowExec,
	EnvMaxRunDepth,
	EnvNonInteractive,
	EnvExecAllowlist,
	EnvAllowYellow,
	EnvAllowRun,
}
