/*
Package config loads the project configuration that the sandbox consults.

Configuration is layered: defaults, then the first config file found at the sandbox root
(tagspeak.yaml, tagspeak.yml, tagspeak.jsonc, tagspeak.json), then TAGSPEAK_* environment overrides.
*/
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/tagspeak/tagspeak/tsapi"
)

// DefaultMaxRunDepth bounds nested run packets when nothing else is configured.
const DefaultMaxRunDepth = 8

// Filenames are the config file names probed at the sandbox root, in order.
var Filenames = []string{
	"tagspeak.yaml",
	"tagspeak.yml",
	"tagspeak.jsonc",
	"tagspeak.json",
}

type Config struct {
	Security Security `yaml:"security" json:"security"`
	Run      Run      `yaml:"run" json:"run"`
	Prompts  Prompts  `yaml:"prompts" json:"prompts"`
	Network  Network  `yaml:"network" json:"network"`

	// Only settable from the environment.
	AllowYellow bool `yaml:"-" json:"-"`
	AllowRun    bool `yaml:"-" json:"-"`

	// Source is the config file that was read, if any.
	Source string `yaml:"-" json:"-"`
}

type Security struct {
	AllowExec     bool     `yaml:"allow_exec" json:"allow_exec"`
	ExecAllowlist []string `yaml:"exec_allowlist" json:"exec_allowlist"`
}

type Run struct {
	MaxDepth      int  `yaml:"max_depth" json:"max_depth"`
	RequireYellow bool `yaml:"require_yellow" json:"require_yellow"`
}

type Prompts struct {
	NonInteractive bool `yaml:"noninteractive" json:"noninteractive"`
}

type Network struct {
	Allow []string `yaml:"allow" json:"allow"`
}

// Default is the configuration of a project with no config file and no environment overrides.
func Default() Config {
	return Config{
		Run: Run{
			MaxDepth:      DefaultMaxRunDepth,
			RequireYellow: true,
		},
	}
}

// Load reads the project config at dir (a path within fsys) and layers env on top.
// A missing config file is not an error.
//
// An fsys handle is required, but is typically `os.DirFS("/")` outside of tests,
// with dir derootified.
//
// Errors:
//
//   - tagspeak-error-io -- if a config file exists but cannot be read.
//   - tagspeak-error-serialization -- if the config file does not parse.
//   - tagspeak-error-invalid -- if an environment value or the resulting config is invalid.
func Load(fsys fs.FS, dir string, env Env) (Config, error) {
	cfg := Default()
	for _, name := range Filenames {
		p := path.Join(dir, name)
		raw, err := fs.ReadFile(fsys, p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return cfg, tsapi.ErrorIo("reading config", p, err)
		}
		if err := decodeFile(name, raw, &cfg); err != nil {
			return cfg, err
		}
		cfg.Source = p
		break
	}
	if err := cfg.ApplyEnv(env); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// decodeFile decodes onto cfg so that absent keys keep their defaults.
func decodeFile(name string, raw []byte, cfg *Config) error {
	switch path.Ext(name) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return tsapi.ErrorSerialization("decoding "+name, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(raw)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return tsapi.ErrorSerialization("decoding "+name, err)
		}
	}
	return nil
}

// ApplyEnv layers environment overrides onto the config.
//
// Errors:
//
//   - tagspeak-error-invalid -- if a variable holds an unusable value.
func (c *Config) ApplyEnv(env Env) error {
	for _, b := range []struct {
		key string
		dst *bool
	}{
		{EnvAllowExec, &c.Security.AllowExec},
		{EnvNonInteractive, &c.Prompts.NonInteractive},
		{EnvAllowYellow, &c.AllowYellow},
		{EnvAllowRun, &c.AllowRun},
	} {
		v, ok := env[b.key]
		if !ok {
			continue
		}
		parsed, err := parseBool(b.key, v)
		if err != nil {
			return err
		}
		*b.dst = parsed
	}
	if v, ok := env[EnvMaxRunDepth]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return tsapi.ErrorInvalid(EnvMaxRunDepth+" must be an integer", [2]string{"variable", EnvMaxRunDepth}, [2]string{"value", v})
		}
		c.Run.MaxDepth = n
	}
	if v, ok := env[EnvExecAllowlist]; ok {
		c.Security.ExecAllowlist = nil
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.Security.ExecAllowlist = append(c.Security.ExecAllowlist, name)
			}
		}
	}
	return nil
}

// Validate checks invariants that neither the file nor the environment may break.
//
// Errors:
//
//   - tagspeak-error-invalid -- if run.max_depth is not positive.
func (c Config) Validate() error {
	if c.Run.MaxDepth <= 0 {
		return tsapi.ErrorInvalid("run.max_depth must be a positive integer", [2]string{"max_depth", strconv.Itoa(c.Run.MaxDepth)})
	}
	return nil
}

// ExecAllowed reports whether the exec allowlist names cmd.
func (c Config) ExecAllowed(cmd string) bool {
	for _, name := range c.Security.ExecAllowlist {
		if name == cmd {
			return true
		}
	}
	return false
}

func parseBool(key, v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	}
	return false, tsapi.ErrorInvalid(key+" must be a boolean (1, true, yes, on, 0, false, no, off)", [2]string{"variable", key}, [2]string{"value", v})
}

// LoadHost is Load for a sandbox root on the host filesystem.
// An empty root means there is no project: defaults plus environment apply.
//
// Errors:
//
//   - see Load.
func LoadHost(root string, env Env) (Config, error) {
	if root == "" {
		cfg := Default()
		if err := cfg.ApplyEnv(env); err != nil {
			return cfg, err
		}
		return cfg, cfg.Validate()
	}
	dir := strings.TrimPrefix(filepath.ToSlash(root), "/")
	if dir == "" {
		dir = "."
	}
	return Load(os.DirFS("/"), dir, env)
}
