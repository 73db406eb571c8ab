package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultProvider = "gemini"
	DefaultModel    = "gemini-2.5-flash"
)

// DefaultModels is the model used for a provider when none is configured.
var DefaultModels = map[string]string{
	"gemini": DefaultModel,
	"claude": "claude-sonnet-4-5",
	"echo":   "echo",
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Provider: DefaultProvider,
		Model:    DefaultModel,
		Robot: RobotConfig{
			CheckDelayMs:    1500,
			DownloadDelayMs: 2500,
			MaxCount:        20,
		},
		Gateway: GatewayConfig{
			Port: 18790,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
		},
		Store: StoreConfig{
			Backend: "sqlite",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}
