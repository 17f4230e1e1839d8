package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or clear stored transcripts",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print the transcript of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, logger, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		history, err := a.store.Read(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(history) == 0 {
			fmt.Fprintf(out, "session %s has no messages\n", args[0])
			return nil
		}
		for _, msg := range history {
			ts := ""
			if !msg.CreatedAt.IsZero() {
				ts = msg.CreatedAt.Local().Format("2006-01-02 15:04:05") + " "
			}
			fmt.Fprintf(out, "%s[%s] %s\n", ts, msg.Role, msg.Content)
		}
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear <session-id>",
	Short: "Delete the transcript of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, logger, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		cleared, err := a.store.Clear(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if cleared {
			fmt.Fprintf(cmd.OutOrStdout(), "session %s cleared\n", args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "session %s not found\n", args[0])
		}
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd, sessionClearCmd)
}
