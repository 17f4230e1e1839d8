package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quickcomm/internal/chat"
)

var chatCmd = &cobra.Command{
	Use:   "chat <session-id> <message>",
	Short: "Run one chat turn and stream the reply to stdout",
	Long: `Send a message into a session as the customer would. The reply is
printed as it streams and both sides are stored in the session transcript.
With --no-stream the reply is requested in one call and printed whole.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, logger, appOptions{generator: true, database: true})
		if err != nil {
			return err
		}
		defer a.Close()
		if a.faqs != nil {
			faqs, err := a.faqs.List(cmd.Context())
			if err != nil {
				return err
			}
			a.generator.SetFAQs(faqs)
		}

		coord := a.coordinator
		if noStream, _ := cmd.Flags().GetBool("no-stream"); noStream {
			coord = coord.WithGenerator(chat.OneShot(a.generator))
		}
		out := cmd.OutOrStdout()
		message := strings.Join(args[1:], " ")
		_, err = coord.Stream(cmd.Context(), chat.TransportCLI, args[0], message, func(fragment string) error {
			_, err := fmt.Fprint(out, fragment)
			return err
		})
		fmt.Fprintln(out)
		return err
	},
}

func init() {
	chatCmd.Flags().Bool("no-stream", false, "request the whole reply in one call")
}
