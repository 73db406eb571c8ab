package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/soyeahso/xmlbot/internal/config"
	"github.com/soyeahso/xmlbot/internal/hooks"
	"github.com/soyeahso/xmlbot/internal/llm"
	"github.com/soyeahso/xmlbot/internal/logging"
	"github.com/soyeahso/xmlbot/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show xmlbot status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "xmlbot %s (commit %s)\n\n", version.Version, version.ShortCommit())

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}
			writeStatus(out, cfg, config.ResolveCredential(cfg) != "")
			return nil
		},
	}
}

// writeStatus prints the configuration summary. hasCredential reports
// whether a provider key was found, without revealing it.
func writeStatus(out io.Writer, cfg config.Config, hasCredential bool) {
	provider := fmt.Sprintf("%s (%s)", llm.DisplayName(cfg.Provider), cfg.Provider)
	if cfg.Model != "" {
		provider += " model=" + cfg.Model
	}
	if len(cfg.Fallbacks) > 0 {
		provider += " fallbacks=" + strings.Join(cfg.Fallbacks, ",")
	}
	fmt.Fprintf(out, "LLM:     %s\n", provider)

	switch {
	case cfg.Provider == "echo":
		fmt.Fprintln(out, "API key: not required")
	case hasCredential:
		fmt.Fprintln(out, "API key: set")
	default:
		fmt.Fprintln(out, "API key: missing (set API_KEY or apiKey)")
	}

	fmt.Fprintf(out, "Gateway: port=%d bind=%s auth=%s tls=%v\n",
		cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.TLS.Enabled)

	storePath := cfg.Store.Path
	if storePath == "" && cfg.Store.Backend != "memory" {
		storePath = paths.DatabasePath()
	}
	if storePath != "" {
		fmt.Fprintf(out, "Store:   backend=%s path=%s\n", cfg.Store.Backend, storePath)
	} else {
		fmt.Fprintf(out, "Store:   backend=%s\n", cfg.Store.Backend)
	}

	fmt.Fprintf(out, "Robot:   check=%dms download=%dms maxCount=%d\n",
		cfg.Robot.CheckDelayMs, cfg.Robot.DownloadDelayMs, cfg.Robot.MaxCount)

	hm := hooks.NewManager(logging.Discard())
	if hooks.RegisterCommands(hm, cfg.Hooks) > 0 {
		var bound []string
		for _, event := range hooks.AllEvents {
			if n := hm.Count(event); n > 0 {
				bound = append(bound, fmt.Sprintf("%s=%d", event, n))
			}
		}
		fmt.Fprintf(out, "Hooks:   %s\n", strings.Join(bound, " "))
	}

	issues := config.Validate(&cfg)
	if len(issues) > 0 {
		fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
		for _, issue := range issues {
			fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
		}
	}
}
