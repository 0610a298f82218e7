package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/melih/simfleet/internal/core/domain"
	"github.com/melih/simfleet/internal/core/fleet"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [instance-id]",
	Short: "Show the state of one or all instances",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		manager, engine, err := newManager(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeEngine(engine)

		var statuses []domain.InstanceStatus
		if len(args) == 1 {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("instance ID must be an integer: %q", args[0])
			}
			st, err := manager.Status(ctx, id)
			if err != nil {
				return err
			}
			statuses = append(statuses, *st)
		} else if statuses, err = manager.List(ctx); err != nil {
			return err
		}

		rows := make([][]string, 0, len(statuses))
		for _, st := range statuses {
			rows = append(rows, []string{
				strconv.Itoa(st.InstanceID),
				st.Status,
				st.ContainerID,
				st.Created,
				st.WebRTCURL,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Engine: %s\n", manager.EngineMode())
		showTable(cmd.OutOrStdout(), []string{"ID", "Status", "Container", "Created", "WebRTC"}, rows)
		return nil
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Print the port block reserved for every instance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		rows := make([][]string, 0, cfg.Instances.MaxInstances)
		for id, mapping := range fleet.AllPortMappings(&cfg.Instances) {
			rows = append(rows, []string{
				strconv.Itoa(id),
				fleet.ContainerName(cfg.Engine.ContainerPrefix, id),
				strconv.Itoa(mapping[domain.RoleHTTP]),
				strconv.Itoa(mapping[domain.RoleStreaming]),
				strconv.Itoa(mapping[domain.RoleNative]),
				strconv.Itoa(mapping[domain.RoleRemoteDesktop]),
			})
		}
		showTable(cmd.OutOrStdout(), []string{"ID", "Container", "HTTP", "Streaming", "Native", "Remote Desktop"}, rows)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Stop and remove every managed instance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		manager, engine, err := newManager(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeEngine(engine)

		report, err := manager.CleanupAll(ctx)
		if err != nil {
			return err
		}

		rows := make([][]string, 0, len(report.Results))
		for _, res := range report.Results {
			rows = append(rows, []string{strconv.Itoa(res.InstanceID), res.Status, res.Error})
		}
		showTable(cmd.OutOrStdout(), []string{"ID", "Result", "Error"}, rows)

		if failed := report.Failed(); len(failed) > 0 {
			return fmt.Errorf("%d instance(s) could not be removed", len(failed))
		}
		return nil
	},
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
