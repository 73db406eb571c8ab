package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// rawTree parses YAML the way LoadRaw does.
func rawTree(t *testing.T, src string) map[string]any {
	t.Helper()
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(src), &raw))
	return raw
}

const sampleRaw = `
provider: gemini
fallbacks: [claude, echo]
robot:
  maxCount: 20
hooks:
  robotAction:
    - command: notify-send done
      timeout: 500
`

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		input   string
		want    KeyPath
		wantErr bool
	}{
		{"gateway", KeyPath{"gateway"}, false},
		{"robot.checkDelayMs", KeyPath{"robot", "checkDelayMs"}, false},
		{"hooks.robotAction.0.command", KeyPath{"hooks", "robotAction", "0", "command"}, false},
		{"", nil, true},
		{"a..b", nil, true},
		{".gateway", nil, true},
		{"gateway.", nil, true},
		{"apiKey", nil, true},
		{"gateway.auth.token", nil, true},
		{"gateway.auth.password", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestGetValueAtPath(t *testing.T) {
	raw := rawTree(t, sampleRaw)

	tests := []struct {
		path  string
		want  any
		found bool
	}{
		{"provider", "gemini", true},
		{"robot.maxCount", 20, true},
		{"fallbacks.1", "echo", true},
		{"hooks.robotAction.0.timeout", 500, true},
		{"fallbacks.2", nil, false},
		{"fallbacks.-1", nil, false},
		{"fallbacks.x", nil, false},
		{"provider.name", nil, false},
		{"gateway.port", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			path, err := ParseConfigPath(tt.path)
			require.NoError(t, err)
			got, ok := GetValueAtPath(raw, path)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetValueAtPath(t *testing.T) {
	raw := rawTree(t, sampleRaw)

	require.NoError(t, SetValueAtPath(raw, KeyPath{"robot", "maxCount"}, 5))
	require.NoError(t, SetValueAtPath(raw, KeyPath{"assistant", "greeting"}, "Oi"))
	require.NoError(t, SetValueAtPath(raw, KeyPath{"fallbacks", "0"}, "echo"))
	require.NoError(t, SetValueAtPath(raw, KeyPath{"fallbacks", "2"}, "gemini"))
	require.NoError(t, SetValueAtPath(raw, KeyPath{"hooks", "robotAction", "0", "timeout"}, 900))
	require.NoError(t, SetValueAtPath(raw, KeyPath{"hooks", "gatewayStart", "0", "command"}, "true"))
	require.NoError(t, SetValueAtPath(raw, KeyPath{"provider", "nested"}, "x"))

	assert.Equal(t, 5, raw["robot"].(map[string]any)["maxCount"])
	assert.Equal(t, "Oi", raw["assistant"].(map[string]any)["greeting"])
	assert.Equal(t, []any{"echo", "echo", "gemini"}, raw["fallbacks"])
	v, _ := GetValueAtPath(raw, KeyPath{"hooks", "robotAction", "0", "timeout"})
	assert.Equal(t, 900, v)
	assert.Equal(t, []any{map[string]any{"command": "true"}}, raw["hooks"].(map[string]any)["gatewayStart"])
	assert.Equal(t, map[string]any{"nested": "x"}, raw["provider"])
}

func TestSetValueAtPathErrors(t *testing.T) {
	raw := rawTree(t, sampleRaw)

	err := SetValueAtPath(raw, KeyPath{"fallbacks", "5"}, "gemini")
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "out of range")
	assert.Equal(t, []any{"claude", "echo"}, raw["fallbacks"], "failed set leaves the list alone")

	assert.Error(t, SetValueAtPath(raw, KeyPath{"fallbacks", "first"}, "gemini"))
	assert.Error(t, SetValueAtPath(raw, nil, "x"))
}

func TestUnsetValueAtPath(t *testing.T) {
	raw := rawTree(t, sampleRaw)

	assert.True(t, UnsetValueAtPath(raw, KeyPath{"robot", "maxCount"}))
	assert.Equal(t, map[string]any{}, raw["robot"])

	assert.True(t, UnsetValueAtPath(raw, KeyPath{"fallbacks", "0"}))
	assert.Equal(t, []any{"echo"}, raw["fallbacks"])

	assert.True(t, UnsetValueAtPath(raw, KeyPath{"hooks", "robotAction", "0", "timeout"}))
	assert.Equal(t, []any{map[string]any{"command": "notify-send done"}},
		raw["hooks"].(map[string]any)["robotAction"])

	assert.False(t, UnsetValueAtPath(raw, KeyPath{"robot", "maxCount"}))
	assert.False(t, UnsetValueAtPath(raw, KeyPath{"fallbacks", "3"}))
	assert.False(t, UnsetValueAtPath(raw, KeyPath{"a", "b", "c"}))
	assert.False(t, UnsetValueAtPath(raw, KeyPath{"provider", "x"}))
	assert.False(t, UnsetValueAtPath(raw, nil))
	assert.Equal(t, "gemini", raw["provider"])
}

func TestSecretKeys(t *testing.T) {
	for _, k := range []string{"apiKey", "token", "password"} {
		assert.True(t, secretKeys[k], k)
	}
	assert.False(t, secretKeys["gateway"])
}
