package main

import (
	"github.com/flemzord/seline/pkg/app"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook gateway and the reply pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), app.RunParams{
				ConfigPath: configPath(cmd),
				Version:    version,
				Commit:     commit,
				Date:       date,
			})
		},
	}
}
