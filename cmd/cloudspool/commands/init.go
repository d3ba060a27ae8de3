package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudspool/cloudspool/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample cloudspool configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/cloudspool/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  cloudspool init

  # Initialize with custom path
  cloudspool init --config /etc/cloudspool/config.yaml

  # Force overwrite existing config
  cloudspool init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Set the storage connection string:")
	fmt.Println("       cloudspool setting set Azure.StorageConnectionString '<connection string>'")
	fmt.Println("  3. Add a source folder:")
	fmt.Println("       cloudspool source add inbox --folder /var/spool/inbox")
	fmt.Println("  4. Start the service with: cloudspool start")

	return nil
}
