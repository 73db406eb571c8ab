package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Checked before cfg.APIKey, in this order. API_KEY is what the hosted web
// front end exports.
var credentialEnvVars = []string{"XMLBOT_API_KEY", "API_KEY"}

var secretRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandSecret substitutes ${VAR} references from the environment. References
// to unset variables are kept as written.
func expandSecret(s string) string {
	return secretRef.ReplaceAllStringFunc(s, func(ref string) string {
		if v, ok := os.LookupEnv(ref[2 : len(ref)-1]); ok {
			return v
		}
		return ref
	})
}

// envOverrides are applied after the file, so the environment always wins.
var envOverrides = []struct {
	name  string
	apply func(cfg *Config, v string)
}{
	{"XMLBOT_PROVIDER", func(c *Config, v string) { c.Provider = strings.ToLower(v) }},
	{"XMLBOT_MODEL", func(c *Config, v string) { c.Model = v }},
	{"XMLBOT_GATEWAY_PORT", func(c *Config, v string) {
		if port, err := strconv.Atoi(v); err == nil {
			c.Gateway.Port = port
		}
	}},
	{"XMLBOT_GATEWAY_BIND", func(c *Config, v string) { c.Gateway.Bind = v }},
	{"XMLBOT_GATEWAY_TOKEN", func(c *Config, v string) { c.Gateway.Auth.Token = v }},
	{"XMLBOT_STORE_BACKEND", func(c *Config, v string) { c.Store.Backend = strings.ToLower(v) }},
	{"XMLBOT_LOG_LEVEL", func(c *Config, v string) { c.Logging.Level = strings.ToLower(v) }},
}

// Load reads the YAML file at path over Defaults, expands ${VAR} references
// in secret fields, then applies XMLBOT_* overrides. A missing file yields the
// defaults. Unknown keys are rejected so typos do not pass silently.
func Load(path string) (Config, error) {
	cfg := Defaults()
	cfg.Model = ""

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	if len(data) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
		}
	}

	cfg.APIKey = expandSecret(cfg.APIKey)
	cfg.Gateway.Auth.Token = expandSecret(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandSecret(cfg.Gateway.Auth.Password)

	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(&cfg, v)
		}
	}

	fillDefaults(&cfg)
	return cfg, nil
}

// fillDefaults restores defaults for fields the file set to empty values and
// picks the provider's default model when none is configured.
func fillDefaults(cfg *Config) {
	def := Defaults()
	setIfEmpty(&cfg.Provider, def.Provider)
	setIfEmpty(&cfg.Model, DefaultModels[cfg.Provider])
	setIfEmpty(&cfg.Gateway.Bind, def.Gateway.Bind)
	setIfEmpty(&cfg.Gateway.Auth.Mode, def.Gateway.Auth.Mode)
	setIfEmpty(&cfg.Store.Backend, def.Store.Backend)
	setIfEmpty(&cfg.Logging.Level, def.Logging.Level)
	setIfEmpty(&cfg.Logging.ConsoleStyle, def.Logging.ConsoleStyle)
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
}

func setIfEmpty(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// ResolveCredential returns the provider credential. The environment is read
// at call time so a key exported after Load is still seen. An unresolved
// ${VAR} reference counts as missing.
func ResolveCredential(cfg Config) string {
	for _, name := range credentialEnvVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	key := strings.TrimSpace(cfg.APIKey)
	if secretRef.MatchString(key) {
		return ""
	}
	return key
}

// LoadRaw reads the config file as a generic tree for `xmlbot config`. A
// missing or empty file is an empty tree.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw encodes raw as YAML and atomically replaces the file at path.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
