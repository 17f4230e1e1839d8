package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"quickcomm/internal/service/faq"
)

var faqCmd = &cobra.Command{
	Use:   "faq",
	Short: "Manage the FAQ knowledge base",
}

// faqApp opens the knowledge base only; it fails when no database is configured.
func faqApp(cmd *cobra.Command) (*app, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver == "" {
		return nil, errNoDatabase
	}
	return newApp(cmd.Context(), cfg, logger, appOptions{database: true})
}

var faqSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the default FAQs that are missing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := faqApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		added, err := a.faqs.Seed(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d faqs\n", added)
		return nil
	},
}

var faqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored FAQs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := faqApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		faqs, err := a.faqs.List(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(faqs) == 0 {
			fmt.Fprintln(out, "no faqs stored")
			return nil
		}
		for _, f := range faqs {
			fmt.Fprintf(out, "%d. %s\n   %s\n", f.ID, f.Question, f.Answer)
		}
		return nil
	},
}

var faqAddCmd = &cobra.Command{
	Use:   "add <question> <answer>",
	Short: "Add one FAQ",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := faqApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		added, err := a.faqs.Add(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if added {
			fmt.Fprintln(cmd.OutOrStdout(), "faq added")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "faq already exists")
		}
		return nil
	},
}

var faqImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Add the Q:/A: entries found in a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := faqApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		importer, err := faq.NewImporter(cmd.Context())
		if err != nil {
			return err
		}
		entries, err := importer.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		added, err := a.faqs.Import(cmd.Context(), entries)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d faqs\n", added, len(entries))
		return nil
	},
}

func init() {
	faqCmd.AddCommand(faqSeedCmd, faqListCmd, faqAddCmd, faqImportCmd)
}
