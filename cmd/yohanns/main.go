// Command yohanns runs the Yohanns storefront backend and its maintenance
// tasks.
package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yohanns/storefront/internal/config"
	"github.com/yohanns/storefront/internal/logging"
)

// Set by the release build with -ldflags.
var (
	Version = "dev"
	Commit  = ""
)

var (
	configFile string
	consoleLog bool
	noColor    bool

	v      *viper.Viper
	cfg    *config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "yohanns",
	Short: "Yohanns storefront backend",
	Long: `Backend for the Yohanns sportswear storefront.

Serves the catalog, checkout, production workflow, artist task and chat
APIs, and ships the maintenance commands used around them.

Configuration is read from yohanns.yaml (current directory or
~/.config/yohanns), YOHANNS_* environment variables and the legacy
SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY / PORT variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || termenv.EnvNoColor() {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
		if cmd.Annotations["skipConfig"] == "true" {
			return nil
		}

		v = config.NewViper(configFile)
		if err := v.BindPFlag("log.level", cmd.Flags().Lookup("log-level")); err != nil {
			return err
		}
		if f := cmd.Flags().Lookup("port"); f != nil {
			if err := v.BindPFlag("server.port", f); err != nil {
				return err
			}
		}

		c, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = c

		l, err := logging.New(logging.Options{
			Level:      c.Log.Level,
			File:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			Console:    consoleLog,
		})
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server:"},
		&cobra.Group{ID: "data", Title: "Data:"},
	)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: search ./yohanns.yaml and ~/.config/yohanns)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&consoleLog, "console", false, "human readable log output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
