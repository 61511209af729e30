package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gamenative/depotsync/internal/catalog"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [manifest]",
		Short: "Import the app/depot manifest into the state database",
		Long: `Load a TOML manifest of apps, depots, and file ownership and replace
the stored catalog with it wholesale. With no argument the configured
manifest path is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runImport,
	}

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	path := resolvedCfg.Paths.Manifest
	if len(args) == 1 {
		path = args[0]
	}

	manifest, err := catalog.Load(path)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	apps := manifest.Apps()
	if err := st.ReplaceCatalog(cmd.Context(), apps); err != nil {
		return fmt.Errorf("replacing catalog: %w", err)
	}

	logger.Info("catalog imported", "path", path, "apps", len(apps))
	statusf("Imported %d apps from %s\n", len(apps), path)

	return nil
}
