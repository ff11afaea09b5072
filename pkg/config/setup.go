package config

import (
	"os"
)

/*
	Environment variables can change while a process runs, and tests want to inject them.
	The environment is therefore read once into an Env snapshot,
	and everything downstream consults the snapshot rather than os.Getenv.
*/

// Env is a snapshot of the TAGSPEAK_* environment variables that were set.
type Env map[string]string

// LoadEnv snapshots the process environment.
func LoadEnv() Env {
	env := make(Env, len(envKeys))
	for _, key := range envKeys {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}
	return env
}
