package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gamenative/depotsync/internal/store"
)

func newAppsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List the imported app catalog",
		RunE:  runApps,
	}
}

func runApps(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	apps, err := st.ListSteamApps(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing catalog: %w", err)
	}

	if len(apps) == 0 {
		fmt.Println("Catalog is empty. Run 'depotsync import' to load a manifest.")
		return nil
	}

	if flagJSON {
		return printJSON(os.Stdout, apps)
	}

	printAppsTable(os.Stdout, apps)

	return nil
}

func printAppsTable(w io.Writer, apps []*store.SteamApp) {
	headers := []string{"APP", "NAME", "SHARED"}
	table := make([][]string, 0, len(apps))

	for _, app := range apps {
		shared := ""
		if app.Shared {
			shared = "shared"
		}

		table = append(table, []string{
			fmt.Sprintf("%d", app.ID),
			app.Name,
			shared,
		})
	}

	printTable(w, headers, table)
}
