package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gamenative/depotsync/internal/depot"
)

func newForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <app-id>",
		Short: "Drop all tracked state for an app",
		Long: `Remove an app's install state, change-number, and file-change-list
history from the state database. The next announcement for the app is
treated as if the app had never been seen.`,
		Args: cobra.ExactArgs(1),
		RunE: runForget,
	}
}

func runForget(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	appID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid app id %q: %w", args[0], err)
	}

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := depot.Forget(cmd.Context(), st, appID); err != nil {
		return fmt.Errorf("forgetting app %d: %w", appID, err)
	}

	logger.Info("app forgotten", "app_id", appID)
	statusf("Forgot app %d\n", appID)

	return nil
}
