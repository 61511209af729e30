package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gamenative/depotsync/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tracked apps, depots, and change-numbers",
		Long: `Display the install state of every tracked app.

Shows downloaded depots, the up-to-date flag, and the last change-number
seen for each app. Reads from the state database only.`,
		RunE: runStatus,
	}
}

// appStatus is one app's row in the status report.
type appStatus struct {
	AppID            int64   `json:"app_id"`
	Name             string  `json:"name,omitempty"`
	IsDownloaded     bool    `json:"is_downloaded"`
	DownloadedDepots []int64 `json:"downloaded_depots"`
	LastChangeNumber int64   `json:"last_change_number"`
	UpdatedAt        int64   `json:"updated_at"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	rows, err := buildStatusRows(cmd.Context(), st)
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Println("No apps tracked. Run 'depotsync import' to load a manifest.")
		return nil
	}

	if flagJSON {
		return printJSON(os.Stdout, rows)
	}

	printStatusTable(os.Stdout, rows)

	return nil
}

// buildStatusRows joins install state, catalog names, and change-numbers
// into one report, ordered by app id.
func buildStatusRows(ctx context.Context, st store.Store) ([]appStatus, error) {
	infos, err := st.ListAppInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing app state: %w", err)
	}

	rows := make([]appStatus, 0, len(infos))

	for _, info := range infos {
		row := appStatus{
			AppID:            info.ID,
			IsDownloaded:     info.IsDownloaded,
			DownloadedDepots: info.DownloadedDepots,
			UpdatedAt:        info.UpdatedAt,
		}

		if app, err := st.GetSteamApp(ctx, info.ID); err != nil {
			return nil, fmt.Errorf("reading catalog entry for app %d: %w", info.ID, err)
		} else if app != nil {
			row.Name = app.Name
		}

		number, err := st.GetChangeNumber(ctx, info.ID)
		if err != nil {
			return nil, fmt.Errorf("reading change-number for app %d: %w", info.ID, err)
		}

		row.LastChangeNumber = number
		rows = append(rows, row)
	}

	return rows, nil
}

func printStatusTable(w io.Writer, rows []appStatus) {
	headers := []string{"APP", "NAME", "DOWNLOADED", "DEPOTS", "CHANGE", "UPDATED"}
	table := make([][]string, 0, len(rows))

	for _, row := range rows {
		downloaded := "no"
		if row.IsDownloaded {
			downloaded = "yes"
		}

		table = append(table, []string{
			fmt.Sprintf("%d", row.AppID),
			row.Name,
			downloaded,
			formatIDs(row.DownloadedDepots),
			fmt.Sprintf("%d", row.LastChangeNumber),
			formatTime(time.Unix(0, row.UpdatedAt)),
		})
	}

	printTable(w, headers, table)
}

// printJSON writes indented JSON output for any report type.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}
