package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/branchlite/branchlite/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a commented default configuration file.

By default the file lands in the current directory as .branchlite.yaml;
with --global it is written to the user configuration directory instead.`,
	RunE: runInit,
}

var (
	initForce  bool
	initGlobal bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing configuration")
	initCmd.Flags().BoolVar(&initGlobal, "global", false, "Write to the user config directory")
}

func runInit(_ *cobra.Command, _ []string) error {
	dir := "."
	if initGlobal {
		userDir, err := config.UserConfigDir()
		if err != nil {
			return err
		}
		dir = userDir
	}
	configPath := filepath.Join(dir, ".branchlite.yaml")

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration already exists at %s, use --force to overwrite", configPath)
	}

	if err := config.WriteDefault(configPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	if !quiet {
		fmt.Println("Configuration written to", configPath)
		fmt.Println("Run 'branchlite config show' to see the effective settings")
	}
	return nil
}
