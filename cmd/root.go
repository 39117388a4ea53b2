package cmd

import (
	"os"

	"mcphub/internal/config"
	"mcphub/pkg/logging"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
)

// rootCmd is the entry point when the application is called without any
// subcommand.
var rootCmd = &cobra.Command{
	Use:   "mcphub",
	Short: "Aggregate MCP tool servers behind one hub",
	Long: `mcphub connects to a set of MCP tool servers over persistent sessions,
keeps them healthy through probing and automatic reconnection, and routes
natural-language queries to the right tool via a configured language model.`,
	// SilenceUsage prevents cobra from printing the usage message on
	// errors the application already reports itself.
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelInfo
		if debug {
			level = logging.LevelDebug
		}
		logging.Init(level, os.Stderr)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Directory containing config.yaml (default ~/.config/mcphub)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mcphub version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the config path and loads the configuration.
func loadConfig() (config.Config, string, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.GetDefaultConfigPath()
		if err != nil {
			return config.Config{}, "", err
		}
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return config.Config{}, "", err
	}
	return cfg, path, nil
}
