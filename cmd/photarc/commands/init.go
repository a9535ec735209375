package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mbianchi/photarc/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample photarc configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/photarc/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  photarc init

  # Initialize with custom path
  photarc init --config /etc/photarc/config.yaml

  # Force overwrite existing config
  photarc init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Point library.photos_path at your photo root")
	fmt.Println("  2. Point library.data_dir at a writable directory")
	fmt.Println("  3. Start the server with: photarc start")
	fmt.Println("  4. Trigger the first scan with: photarc scan")
	return nil
}
