package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/soyeahso/xmlbot/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and edit the config file",
		Long: "Keys are dot paths into the YAML file, with list positions as numbers:\n" +
			"  robot.checkDelayMs\n  hooks.robotAction.0.command\n" +
			"Secrets (apiKey, gateway tokens and passwords) are never read or written here.",
	}
	cmd.AddCommand(
		newConfigGetCmd(),
		newConfigSetCmd(),
		newConfigUnsetCmd(),
		newConfigPathCmd(),
		newConfigValidateCmd(),
	)
	return cmd
}

// keyCommand builds a subcommand whose first argument is a config key. run
// receives the parsed key and the raw YAML tree; returning save=true writes
// the tree back.
func keyCommand(use, short string, nargs int, run func(cmd *cobra.Command, key config.KeyPath, raw map[string]any, args []string) (save bool, err error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := config.ParseConfigPath(args[0])
			if err != nil {
				return err
			}
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}
			save, err := run(cmd, key, raw, args[1:])
			if err != nil || !save {
				return err
			}
			return config.SaveRaw(paths.Config, raw)
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return keyCommand("get <key>", "Print a value", 1,
		func(cmd *cobra.Command, key config.KeyPath, raw map[string]any, _ []string) (bool, error) {
			v, ok := config.GetValueAtPath(raw, key)
			if !ok {
				return false, fmt.Errorf("key %q not found", key)
			}
			return false, printValue(cmd.OutOrStdout(), v)
		})
}

func newConfigSetCmd() *cobra.Command {
	return keyCommand("set <key> <value>", "Set a value; numbers and booleans keep their type", 2,
		func(cmd *cobra.Command, key config.KeyPath, raw map[string]any, args []string) (bool, error) {
			v := parseValue(args[0])
			if err := config.SetValueAtPath(raw, key, v); err != nil {
				return false, err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, v)
			return true, nil
		})
}

func newConfigUnsetCmd() *cobra.Command {
	return keyCommand("unset <key>", "Remove a value so the default applies again", 1,
		func(cmd *cobra.Command, key config.KeyPath, raw map[string]any, _ []string) (bool, error) {
			if !config.UnsetValueAtPath(raw, key) {
				return false, fmt.Errorf("key %q not found", key)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unset %s\n", key)
			return true, nil
		})
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print where the config file lives",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the config file and report every problem",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			return reportIssues(cmd.OutOrStdout(), config.Validate(&cfg))
		},
	}
}

// reportIssues prints one line per issue, or "Config OK" when there are none.
func reportIssues(w io.Writer, issues []config.ValidationIssue) error {
	if len(issues) == 0 {
		fmt.Fprintln(w, "Config OK")
		return nil
	}
	for _, issue := range issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}
	return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
}

// printValue writes scalars on one line and maps or lists as YAML.
func printValue(w io.Writer, v any) error {
	switch v.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	_, err := fmt.Fprintln(w, v)
	return err
}

// parseValue turns a command line value into a bool, an int or a float when
// it reads as one. Integers only count when they print back the same, so
// "007" is stored as the float 7.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil && strconv.Itoa(n) == s {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
