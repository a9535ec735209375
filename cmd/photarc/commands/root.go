// Package commands implements the photarc CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "photarc",
	Short: "photarc - self-hosted photo library indexer",
	Long: `photarc indexes a read-only photo library into a searchable catalog:
EXIF metadata, thumbnails, perceptual fingerprints, motion videos, faces,
AI tags and captions, plus duplicate and event detection. The catalog is
served over an HTTP API with live progress over WebSocket.

Use "photarc [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/photarc/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(scanCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
