package cmd

import (
	"github.com/spf13/cobra"

	"covod-recorder/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{}
	rootCmd.AddCommand(server(config))
	rootCmd.AddCommand(record(config))
	rootCmd.AddCommand(upload(config))
	return rootCmd
}
