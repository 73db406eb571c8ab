package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/xmlbot/internal/config"
)

// DefaultCommandTimeout applies to hook commands that set no timeout.
const DefaultCommandTimeout = 10 * time.Second

// CommandHandler returns a Handler that runs command through "sh -c". The
// payload is written to the command's stdin as JSON and the event name is
// exported as XMLBOT_EVENT.
func CommandHandler(entry config.HookEntry) Handler {
	timeout := DefaultCommandTimeout
	if entry.Timeout > 0 {
		timeout = time.Duration(entry.Timeout) * time.Millisecond
	}

	return func(ctx context.Context, p Payload) error {
		input, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", entry.Command)
		cmd.Stdin = bytes.NewReader(input)
		cmd.Env = append(os.Environ(), "XMLBOT_EVENT="+p.Event)
		cmd.WaitDelay = time.Second

		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("hook command %q: %w: %s", entry.Command, err, msg)
			}
			return fmt.Errorf("hook command %q: %w", entry.Command, err)
		}
		return nil
	}
}

// RegisterCommands binds every command hook in cfg to its event.
// It returns the number of handlers registered.
func RegisterCommands(m *Manager, cfg config.HooksConfig) int {
	bindings := []struct {
		event   string
		entries []config.HookEntry
	}{
		{EventMessageReceived, cfg.MessageReceived},
		{EventExchangeFailed, cfg.ExchangeFailed},
		{EventRobotAction, cfg.RobotAction},
		{EventGatewayStart, cfg.GatewayStart},
		{EventGatewayStop, cfg.GatewayStop},
	}

	n := 0
	for _, b := range bindings {
		for i, entry := range b.entries {
			if strings.TrimSpace(entry.Command) == "" {
				continue
			}
			m.On(b.event, fmt.Sprintf("config:%s:%d", b.event, i), CommandHandler(entry))
			n++
		}
	}
	return n
}
