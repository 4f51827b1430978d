package cmd

import (
	"github.com/spf13/cobra"

	"covod-recorder/config"
	server2 "covod-recorder/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start the merge/upload worker and http server",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}
}
