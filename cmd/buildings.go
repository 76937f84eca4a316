package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nest-urban/anchor-cli/internal/buildings"
)

var buildingsCmd = &cobra.Command{
	Use:   "buildings",
	Short: "Manage the Overture buildings layer",
}

var buildingsLoadCmd = &cobra.Command{
	Use:   "load <file.geojson>",
	Short: "Load building footprints into PostGIS",
	Long:  "Parses an Overture buildings GeoJSON export and upserts footprints into the overture_buildings table in batches.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fresh, _ := cmd.Flags().GetBool("fresh")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		if batchSize <= 0 {
			batchSize = cfg.Buildings.BatchSize
		}

		log := zap.L().With(zap.String("command", "buildings.load"))

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "buildings load: open %s", args[0])
		}
		parsed, err := buildings.ParseGeoJSON(f)
		_ = f.Close()
		if err != nil {
			return err
		}
		if len(parsed) == 0 {
			fmt.Println("No buildings found in input")
			return nil
		}

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		store := buildings.NewStore(pool, batchSize)
		if err := store.EnsureSchema(ctx, fresh); err != nil {
			return err
		}

		log.Info("loading buildings",
			zap.Int("features", len(parsed)),
			zap.Int("batch_size", batchSize),
			zap.Bool("fresh", fresh),
		)

		n, err := store.UpsertAll(ctx, parsed)
		if err != nil {
			return err
		}

		fmt.Printf("Loaded %d buildings\n", n)
		return nil
	},
}

// storePool connects to the configured PostGIS database.
func storePool(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("buildings: store.database_url is not configured")
	}
	pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "buildings: connect to store")
	}
	return pool, nil
}

func init() {
	buildingsLoadCmd.Flags().Bool("fresh", false, "drop and recreate the buildings table before loading")
	buildingsLoadCmd.Flags().Int("batch-size", 0, "buildings per upsert batch (default from config)")

	buildingsCmd.AddCommand(buildingsLoadCmd)
	rootCmd.AddCommand(buildingsCmd)
}
