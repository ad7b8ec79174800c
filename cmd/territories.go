package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mfvargas/fieldops/config"
	"github.com/mfvargas/fieldops/core/store"
	"github.com/mfvargas/fieldops/core/territory"
	"github.com/mfvargas/fieldops/infra/postgres"
)

var territoriesCmd = &cobra.Command{
	Use:   "territories",
	Short: "Territory reference data commands",
}

var territoriesImportCmd = &cobra.Command{
	Use:   "import <file.geojson>",
	Short: "Import a GeoJSON feature collection of territories",
	Args:  cobra.ExactArgs(1),
	RunE:  runTerritoriesImport,
}

func init() {
	territoriesCmd.AddCommand(territoriesImportCmd)
	rootCmd.AddCommand(territoriesCmd)
}

func runTerritoriesImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("territories import requires a database url")
	}
	ctx := context.Background()
	pg, err := postgres.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pg.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	var st store.TerritoryStore = pg
	n, err := territory.ImportGeoJSON(ctx, st, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d territories\n", n)
	return nil
}
