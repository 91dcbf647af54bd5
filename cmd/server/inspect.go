package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/easayliu/alist-photo-relay/internal/application/container"
	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05"

func tasksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List configured tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := container.OpenTaskRepository(cfg)
			if err != nil {
				return err
			}
			tasks, err := repo.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			renderTasks(cmd.OutOrStdout(), tasks)
			return nil
		},
	}
}

func historyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <taskId>",
		Short: "Show download counts recorded for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return showHistory(cmd.Context(), cmd.OutOrStdout(), cfg, args[0])
		},
	}
}

func showHistory(ctx context.Context, out io.Writer, cfg *config.Config, taskID string) error {
	store, err := container.OpenHistoryStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	counts, err := store.AggregateCounts(ctx, taskID)
	if err != nil {
		return fmt.Errorf("aggregate history for %s: %w", taskID, err)
	}
	renderCounts(out, taskID, counts)
	return nil
}

func renderTasks(out io.Writer, tasks []*entities.TaskConfig) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks configured")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Target", "Interval", "Destination", "Engine", "Active"})
	for _, task := range tasks {
		engine := task.Automation.Engine
		if engine == "" {
			engine = "-"
		}
		t.AppendRow(table.Row{
			task.ID,
			task.Name,
			task.TargetURL,
			task.Interval().String(),
			task.DestinationPath,
			engine,
			strconv.FormatBool(task.Active),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "Total", len(tasks)})
	t.Render()
}

func renderCounts(out io.Writer, taskID string, counts *entities.HistoryCounts) {
	lastSuccess := "-"
	if counts.LastSuccessAt != nil {
		lastSuccess = counts.LastSuccessAt.Local().Format(timeLayout)
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Task", "Total", "Success", "Failed", "Last Success"})
	t.AppendRow(table.Row{taskID, counts.Total, counts.Success, counts.Failed, lastSuccess})
	t.Render()
}
