package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/flemzord/seline/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// program runs the service under the platform service manager.
type program struct {
	params app.RunParams
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() { p.done <- app.Run(ctx, p.params) }()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

func newService(cmd *cobra.Command) (service.Service, error) {
	params := app.RunParams{Version: version, Commit: commit, Date: date}
	args := []string{"service", "run"}
	if p := configPath(cmd); p != "" {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		params.ConfigPath = abs
		args = append(args, "--config", abs)
	}
	return service.New(&program{params: params}, &service.Config{
		Name:        "seline",
		DisplayName: "Seline LINE assistant",
		Description: "Debounced retrieval-augmented replies for the LINE insurance channel.",
		Arguments:   args,
	})
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install, remove or run seline as a system service",
	}

	action := func(use, short string, fn func(service.Service) error, done string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := newService(cmd)
				if err != nil {
					return err
				}
				if err := fn(svc); err != nil {
					return fmt.Errorf("service %s: %w", use, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), done)
				return nil
			},
		}
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run under the service manager",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if service.Interactive() {
				return errors.New("service run must be started by the service manager; use serve instead")
			}
			svc, err := newService(cmd)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}

	cmd.AddCommand(
		action("install", "Register seline with the service manager", service.Service.Install, "service installed"),
		action("uninstall", "Remove seline from the service manager", service.Service.Uninstall, "service uninstalled"),
		action("start", "Start the installed service", service.Service.Start, "service started"),
		action("stop", "Stop the installed service", service.Service.Stop, "service stopped"),
		run,
	)
	return cmd
}
