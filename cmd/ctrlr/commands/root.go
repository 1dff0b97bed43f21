package commands

import (
	"fmt"

	"github.com/ctrlr/ctrlr/internal/config"
	"github.com/ctrlr/ctrlr/internal/logging"
	"github.com/ctrlr/ctrlr/internal/osdetect"
	"github.com/ctrlr/ctrlr/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Version is set at build time
	Version = "dev"
	// Commit is set at build time
	Commit = "none"
)

var rootCmd = &cobra.Command{
	Use:   "ctrlr",
	Short: "Ctrlr - control-surface link between a phone and a workstation",
	Long: `Ctrlr links a mobile control surface to a desktop audio workstation
over the local network. The workstation side advertises itself over mDNS
("ctrlr listen"); the surface side discovers it and connects
("ctrlr connect"). Both daemons serve a local control plane that the
status, send and watch commands talk to.

Use "ctrlr [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		noColor, _ := cmd.Flags().GetBool("no-color")
		ui.SetNoColor(noColor)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ~/.ctrlr/config.json)")
	rootCmd.PersistentFlags().String("control-addr", "", "Control plane address (default: from config)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(reconnectCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(watchCmd)
}

// versionCmd shows version info
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Ctrlr\n")
		fmt.Printf("  Version:  %s\n", Version)
		fmt.Printf("  Commit:   %s\n", Commit)
		fmt.Printf("  Platform: %s\n", osdetect.Detect())
	},
}

// loadConfig reads the config file and applies flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFrom(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Verbose = true
	}
	if addr, _ := cmd.Flags().GetString("control-addr"); addr != "" {
		cfg.ControlAddr = addr
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *zap.Logger {
	return logging.New(logging.Options{Verbose: cfg.Verbose})
}
