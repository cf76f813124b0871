package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/joescharf/teambot/internal/store"
)

var karmaCmd = &cobra.Command{
	Use:   "karma <user-id>",
	Short: "Show a user's karma",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return karmaRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(karmaCmd)
}

func karmaRun(arg string) error {
	userID, err := parseUserID(arg)
	if err != nil {
		return err
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	ctx := context.Background()
	karma, err := s.KarmaOf(ctx, userID)
	if err != nil {
		return err
	}

	name := "unknown user"
	if u, err := s.GetUser(ctx, userID); err == nil {
		name = u.DisplayName
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	ui.Info("%s (%d): %d karma", name, userID, karma)
	return nil
}
