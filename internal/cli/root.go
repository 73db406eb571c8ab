// Package cli implements the xmlbot command line.
package cli

import (
	"github.com/soyeahso/xmlbot/internal/config"
	"github.com/soyeahso/xmlbot/internal/logging"
	"github.com/soyeahso/xmlbot/internal/version"
	"github.com/spf13/cobra"
)

// Flags shared by every subcommand.
var (
	cfgFile  string
	logLevel string
)

// Set by setup before any subcommand runs.
var (
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "xmlbot",
		Short:   "Chat assistant for importing fiscal XML documents",
		Long:    "xmlbot pairs an LLM chat assistant with a simulated import robot that checks and downloads XML documents for registered clients.",
		Version: version.Version,

		PersistentPreRunE: setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
	cmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $XMLBOT_HOME/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "trace, debug, info, warn, error or silent")

	cmd.AddCommand(
		newChatCmd(),
		newGatewayCmd(),
		newStatusCmd(),
		newTranscriptsCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return cmd
}

// setup resolves the state directory and the console logger.
func setup(*cobra.Command, []string) error {
	p, err := config.ResolvePaths()
	if err != nil {
		return err
	}
	if cfgFile != "" {
		p.Config = cfgFile
	}
	paths = p

	level := logLevel
	if level == "" {
		level = "info"
	}
	log = logging.New(nil, level)
	return nil
}

func Execute() error {
	return newRootCmd().Execute()
}
