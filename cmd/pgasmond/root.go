package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const (
	flagHome       = "home"
	defaultHomeDir = ".pgasmon"
)

func defaultHome() string {
	if home := os.Getenv("PGASMON_HOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return defaultHomeDir
	}
	return filepath.Join(userHome, defaultHomeDir)
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pgasmond",
		Short:         "Multi-chain gas telemetry daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String(flagHome, defaultHome(), "directory for config and data")

	InitRootCmd(rootCmd) // add subcommands like `start` and `version`

	return rootCmd
}
