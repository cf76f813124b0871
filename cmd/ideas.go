package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/teambot/internal/models"
	"github.com/joescharf/teambot/internal/output"
)

var ideasPriority string

var ideasCmd = &cobra.Command{
	Use:   "ideas",
	Short: "List submitted ideas, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return ideasRun()
	},
}

func init() {
	ideasCmd.Flags().StringVar(&ideasPriority, "priority", "", "Filter by priority (low, medium, high)")
	rootCmd.AddCommand(ideasCmd)
}

func ideasRun() error {
	var filter models.Priority
	if ideasPriority != "" {
		filter = models.Priority(ideasPriority)
		if !filter.Valid() {
			return fmt.Errorf("invalid priority %q (want low, medium or high)", ideasPriority)
		}
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	ideas, err := s.AllIdeas(context.Background())
	if err != nil {
		return err
	}

	table := ui.Table([]string{"ID", "Title", "Author", "Priority", "Submitted"})
	shown := 0
	for _, i := range ideas {
		if filter != "" && i.Priority != filter {
			continue
		}
		table.Append([]string{
			strconv.FormatInt(i.ID, 10),
			output.Cyan(i.Title),
			i.AuthorName,
			output.PriorityColor(i.Priority),
			i.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
		shown++
	}

	if shown == 0 {
		if filter != "" && len(ideas) > 0 {
			ui.Info("No %s-priority ideas (%d in total).", filter, len(ideas))
		} else {
			ui.Info("No ideas submitted yet.")
		}
		return nil
	}
	table.Render()
	return nil
}
