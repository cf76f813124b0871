package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/teambot/internal/output"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks <user-id>",
	Short: "List tasks assigned to a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tasksRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}

// parseUserID parses a chat user ID argument.
func parseUserID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q", arg)
	}
	return id, nil
}

func tasksRun(arg string) error {
	userID, err := parseUserID(arg)
	if err != nil {
		return err
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	tasks, err := s.TasksFor(context.Background(), userID)
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		ui.Info("No tasks assigned to user %d.", userID)
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Status", "Due", "Creator"})
	for _, t := range tasks {
		due := t.DueDate
		if due == "" {
			due = "-"
		}
		table.Append([]string{
			strconv.FormatInt(t.ID, 10),
			output.Cyan(t.Title),
			output.TaskStatusColor(t.Status),
			due,
			strconv.FormatInt(t.CreatorID, 10),
		})
	}
	table.Render()
	return nil
}
