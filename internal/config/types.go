package config

// Config is the root configuration for xmlbot.
type Config struct {
	Provider    string          `yaml:"provider,omitempty"`    // "gemini" | "claude" | "echo"
	APIKey      string          `yaml:"apiKey,omitempty"`      // credential for the provider; API_KEY / XMLBOT_API_KEY override
	Model       string          `yaml:"model,omitempty"`       // model ID for the provider
	APIEndpoint string          `yaml:"apiEndpoint,omitempty"` // custom base URL (proxies, tests)
	Fallbacks   []string        `yaml:"fallbacks,omitempty"`   // providers tried on retryable errors
	Assistant   AssistantConfig `yaml:"assistant,omitempty"`
	Robot       RobotConfig     `yaml:"robot,omitempty"`
	Gateway     GatewayConfig   `yaml:"gateway,omitempty"`
	Store       StoreConfig     `yaml:"store,omitempty"`
	Logging     LoggingConfig   `yaml:"logging,omitempty"`
	Hooks       HooksConfig     `yaml:"hooks,omitempty"`
}

// AssistantConfig overrides the assistant's fixed texts. Empty values keep
// the built-in Portuguese defaults.
type AssistantConfig struct {
	SystemInstruction string   `yaml:"systemInstruction,omitempty"`
	Greeting          string   `yaml:"greeting,omitempty"`
	Fallback          string   `yaml:"fallback,omitempty"`
	MaxTokens         int      `yaml:"maxTokens,omitempty"`
	Temperature       *float64 `yaml:"temperature,omitempty"`
}

// RobotConfig controls the simulated check/download actions.
type RobotConfig struct {
	CheckDelayMs    int `yaml:"checkDelayMs,omitempty"`
	DownloadDelayMs int `yaml:"downloadDelayMs,omitempty"`
	MaxCount        int `yaml:"maxCount,omitempty"` // upper bound (inclusive) of the random XML count
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// StoreConfig selects where clients and transcripts are kept.
type StoreConfig struct {
	Backend string `yaml:"backend,omitempty"` // "sqlite" | "memory"
	Path    string `yaml:"path,omitempty"`    // sqlite file; defaults to <data>/xmlbot.db
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// HooksConfig binds shell commands to lifecycle events.
type HooksConfig struct {
	MessageReceived []HookEntry `yaml:"messageReceived,omitempty"`
	ExchangeFailed  []HookEntry `yaml:"exchangeFailed,omitempty"`
	RobotAction     []HookEntry `yaml:"robotAction,omitempty"`
	GatewayStart    []HookEntry `yaml:"gatewayStart,omitempty"`
	GatewayStop     []HookEntry `yaml:"gatewayStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
