package main

import (
	"fmt"

	"github.com/flemzord/seline/internal/config"
	"github.com/flemzord/seline/pkg/app"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	var show bool
	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration, optionally printing it with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := app.LoadConfig(configPath(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK: %s\n", path)
			fmt.Fprintf(out, "  storage: %s\n", cfg.Storage.Driver)
			fmt.Fprintf(out, "  gateway: %s\n", cfg.Gateway.Bind)
			fmt.Fprintf(out, "  faq entries: %d\n", len(cfg.Pipeline.FAQ))
			if !show {
				return nil
			}

			doc, err := config.Document(path)
			if err != nil {
				return err
			}
			app.NewRedactor(cfg).RedactMap(doc)
			fmt.Fprintln(out, "---")
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	check.Flags().BoolVar(&show, "show", false, "Print the expanded configuration with secrets redacted")
	cmd.AddCommand(check)
	return cmd
}
