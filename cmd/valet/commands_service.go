package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valetd/valet/internal/daemon"
	"github.com/valetd/valet/internal/store"
)

func buildServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Run the daemon as a user-level service",
	}
	install := &cobra.Command{
		Use:   "install",
		Short: "Install and start the service (launchd or systemd)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stateDir, err := store.StateDir()
			if err != nil {
				return err
			}
			m := &daemon.ServiceManager{}
			path, err := m.Install(stateDir)
			if err != nil {
				return err
			}
			fmt.Printf("Service installed at %s.\n", path)
			return nil
		},
	}
	uninstall := &cobra.Command{
		Use:   "uninstall",
		Short: "Stop and remove the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := &daemon.ServiceManager{}
			if err := m.Uninstall(); err != nil {
				return err
			}
			fmt.Println("Service removed.")
			return nil
		},
	}
	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether the service is installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := &daemon.ServiceManager{}
			installed, err := m.Installed()
			if err != nil {
				return err
			}
			if installed {
				path, _ := m.UnitPath()
				fmt.Printf("Installed at %s.\n", path)
			} else {
				fmt.Println("Not installed.")
			}
			return nil
		},
	}
	cmd.AddCommand(install, uninstall, status)
	return cmd
}
