package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bot and database summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	st, err := s.Stats(context.Background())
	if err != nil {
		return err
	}

	if pid, alive := pidFile().IsRunning(); alive {
		ui.Success("Bot is running (pid %d)", pid)
	} else {
		ui.Info("Bot is not running")
	}
	fmt.Fprintln(ui.Out)

	table := ui.Table([]string{"Users", "Ideas", "Tasks", "Total karma"})
	table.Append([]string{
		fmt.Sprint(st.Users),
		fmt.Sprint(st.Ideas),
		fmt.Sprint(st.Tasks),
		fmt.Sprint(st.TotalKarma),
	})
	table.Render()
	return nil
}
