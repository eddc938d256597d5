package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/branchlite/branchlite/internal/config"
	"github.com/branchlite/branchlite/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	dataDir   string
	quiet     bool

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string

	// Populated by initConfig before any subcommand runs.
	appCfg *config.Config
	appLog *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "branchlite",
	Short: "Branch-aware SQL execution and undo over per-project SQLite stores",
	Long: `branchlite runs SQL against isolated per-project SQLite stores where
every row of a branch-aware table belongs to exactly one branch. Statements
are scoped to the selected branch automatically, every mutation is captured
for undo, and branches merge additively into Main.

Run 'branchlite shell --project NAME' for an interactive session.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initConfig()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: .branchlite.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "",
		"data directory holding the project registry and stores")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"suppress non-essential output")

	// Bind flags to viper (errors are nil when flag exists)
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("data.dir", rootCmd.PersistentFlags().Lookup("data-dir"))
}

// initConfig loads and validates the configuration, then builds the logger
// every command shares. Flags bound above override file and environment.
func initConfig() error {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	out := io.Writer(os.Stderr)
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		out = f
	}
	level := cfg.Log.Level
	if quiet {
		level = "error"
	}

	appCfg = cfg
	appLog = logging.New(logging.Config{
		Level:  level,
		Format: cfg.Log.Format,
		Output: out,
	})
	return nil
}
