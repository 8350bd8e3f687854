// Package cli implements the gridpoint command-line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gridpoint",
	Short: "GridPoint measurement platform",
	Long: `gridpoint ingests sensor measurements from heterogeneous uploads and
serves tenant-scoped analytical queries over them.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
}
