package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationIssue is one problem found by Validate. Path uses the same dot
// notation as `xmlbot config get`.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return v.Path + ": " + v.Message
}

// Providers lists the conversational providers xmlbot can talk to.
var Providers = []string{"gemini", "claude", "echo"}

var (
	bindModes     = []string{"loopback", "lan", "custom"}
	authModes     = []string{"token", "password"}
	storeBackends = []string{"sqlite", "memory"}
	logLevels     = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	consoleStyles = []string{"pretty", "json"}
)

type validator struct {
	issues []ValidationIssue
}

func (v *validator) failf(path, format string, args ...any) {
	v.issues = append(v.issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
}

// oneOf accepts value when it is listed, or empty and optional.
func (v *validator) oneOf(path, value string, allowed []string, optional bool) bool {
	if (optional && value == "") || slices.Contains(allowed, value) {
		return true
	}
	v.failf(path, "must be one of %v, got %q", allowed, value)
	return false
}

func (v *validator) nonNegative(path string, n int) {
	if n < 0 {
		v.failf(path, "must be >= 0, got %d", n)
	}
}

// Validate reports every problem in cfg, or nil.
//
// A missing API key is not an issue here: the chat controller reports it at
// initialization and the robot side keeps working.
func Validate(cfg *Config) []ValidationIssue {
	var v validator

	if v.oneOf("provider", cfg.Provider, Providers, false) && cfg.Provider != "echo" && cfg.Model == "" {
		v.failf("model", "required for provider %s", cfg.Provider)
	}
	for i, fb := range cfg.Fallbacks {
		v.oneOf(fmt.Sprintf("fallbacks.%d", i), fb, Providers, false)
	}
	v.nonNegative("assistant.maxTokens", cfg.Assistant.MaxTokens)
	if t := cfg.Assistant.Temperature; t != nil && (*t < 0 || *t > 2) {
		v.failf("assistant.temperature", "must be 0-2, got %.2f", *t)
	}

	v.nonNegative("robot.checkDelayMs", cfg.Robot.CheckDelayMs)
	v.nonNegative("robot.downloadDelayMs", cfg.Robot.DownloadDelayMs)
	v.nonNegative("robot.maxCount", cfg.Robot.MaxCount)

	gw := cfg.Gateway
	if gw.Port < 0 || gw.Port > 65535 {
		v.failf("gateway.port", "must be 0-65535, got %d", gw.Port)
	}
	v.oneOf("gateway.bind", gw.Bind, bindModes, true)
	v.oneOf("gateway.auth.mode", gw.Auth.Mode, authModes, true)
	if gw.TLS.Enabled && (gw.TLS.CertPath == "" || gw.TLS.KeyPath == "") {
		v.failf("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}

	v.oneOf("store.backend", cfg.Store.Backend, storeBackends, true)
	v.oneOf("logging.level", cfg.Logging.Level, logLevels, true)
	v.oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, consoleStyles, true)

	hooks := []struct {
		key     string
		entries []HookEntry
	}{
		{"messageReceived", cfg.Hooks.MessageReceived},
		{"exchangeFailed", cfg.Hooks.ExchangeFailed},
		{"robotAction", cfg.Hooks.RobotAction},
		{"gatewayStart", cfg.Hooks.GatewayStart},
		{"gatewayStop", cfg.Hooks.GatewayStop},
	}
	for _, hk := range hooks {
		for i, h := range hk.entries {
			path := fmt.Sprintf("hooks.%s.%d", hk.key, i)
			if strings.TrimSpace(h.Command) == "" {
				v.failf(path+".command", "must not be empty")
			}
			v.nonNegative(path+".timeout", h.Timeout)
		}
	}

	return v.issues
}
