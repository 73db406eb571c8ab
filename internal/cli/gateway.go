package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/soyeahso/xmlbot/internal/config"
	"github.com/soyeahso/xmlbot/internal/gateway"
	"github.com/spf13/cobra"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Serve the assistant and the robot to web front ends",
	}
	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var override config.GatewayConfig

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the HTTP and WebSocket gateway until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if override.Port != 0 {
				cfg.Gateway.Port = override.Port
			}
			if override.Bind != "" {
				cfg.Gateway.Bind = override.Bind
			}
			if issues := config.Validate(&cfg); len(issues) > 0 {
				return reportIssues(cmd.ErrOrStderr(), issues)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serveGateway(ctx, cfg)
		},
	}

	cmd.Flags().IntVar(&override.Port, "port", 0, "listen on this port instead of gateway.port")
	cmd.Flags().StringVar(&override.Bind, "bind", "", "loopback, lan or custom instead of gateway.bind")
	return cmd
}

// serveGateway wires the app into a gateway server and blocks until ctx ends.
// A chat controller that failed to initialize still serves the robot and
// client book methods.
func serveGateway(ctx context.Context, cfg config.Config) error {
	a, err := openApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if snap := a.chat.Snapshot(); snap.LastError != "" {
		a.log.Warn().Str("error", snap.LastError).Msg("chat unavailable")
	}

	srv := gateway.New(cfg, a.log,
		gateway.WithChat(a.chat),
		gateway.WithRobot(a.book, a.runner),
		gateway.WithHooks(a.hooks),
	)
	defer srv.Close()

	return srv.Start(ctx)
}
