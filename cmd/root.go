// Package cmd holds the quickcomm command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"quickcomm/internal/config"
	"quickcomm/internal/logging"
)

var (
	cfgPath string
	verbose bool
	version = "dev"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quickcomm",
	Short: "Customer-support chat relay",
	Long: `quickcomm relays customer chat messages to a generative-language model
and streams the replies back over HTTP, Server-Sent Events or WebSocket.
Session transcripts live in Redis.

Quick Start:
  quickcomm serve                      # Run the HTTP and WebSocket server
  quickcomm chat <session-id> <text>   # Run one turn from the terminal
  quickcomm session show <session-id>  # Print a stored transcript
  quickcomm faq seed                   # Seed the FAQ knowledge base`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to a JSON or YAML config file (default $"+config.EnvConfigPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(serveCmd, chatCmd, faqCmd, sessionCmd)
}

// loadConfig reads the config and builds the logger every command shares.
// Logs go to the command's error stream.
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return cfg, logger, nil
}
