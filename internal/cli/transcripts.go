package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/soyeahso/xmlbot/internal/domain"
	"github.com/soyeahso/xmlbot/internal/store"
	"github.com/spf13/cobra"
)

func newTranscriptsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "transcripts",
		Short: "List recorded chat transcripts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := openStore()
			if err != nil {
				return err
			}
			defer backend.Close()

			list, err := backend.Transcripts.ListTranscripts(cmd.Context(), limit)
			if err != nil {
				return err
			}
			writeTranscriptList(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most this many transcripts")
	cmd.AddCommand(newTranscriptShowCmd())
	return cmd
}

func newTranscriptShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := openStore()
			if err != nil {
				return err
			}
			defer backend.Close()

			t, err := backend.Transcripts.GetTranscript(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			writeTranscript(cmd.OutOrStdout(), t)
			return nil
		},
	}
}

func openStore() (*store.Backend, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.OpenBackend(cfg.Store, paths.DatabasePath(), log)
}

func writeTranscriptList(w io.Writer, list []store.Transcript) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no transcripts recorded")
		return
	}
	for _, t := range list {
		fmt.Fprintf(w, "%s  %s  %-7s", t.ID, t.StartedAt.Local().Format(time.DateTime), t.Provider)
		if t.LastError != "" {
			fmt.Fprintf(w, "  error: %s", t.LastError)
		}
		fmt.Fprintln(w)
	}
}

func writeTranscript(w io.Writer, t *store.Transcript) {
	fmt.Fprintf(w, "Transcript %s (%s, started %s)\n\n", t.ID, t.Provider, t.StartedAt.Local().Format(time.DateTime))
	for _, m := range t.Messages {
		who := "you"
		if m.Role == domain.RoleAssistant {
			who = "bot"
		}
		fmt.Fprintf(w, "%s %s> %s\n", m.Timestamp.Local().Format(time.TimeOnly), who, m.Content)
	}
	if t.LastError != "" {
		fmt.Fprintf(w, "\nlast error: %s\n", t.LastError)
	}
}
