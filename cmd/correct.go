package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nest-urban/anchor-cli/internal/dataset"
	"github.com/nest-urban/anchor-cli/internal/model"
	"github.com/nest-urban/anchor-cli/internal/pipeline"
	"github.com/nest-urban/anchor-cli/internal/throttle"
	"github.com/nest-urban/anchor-cli/pkg/nominatim"
	"github.com/nest-urban/anchor-cli/pkg/overpass"
)

var correctCmd = &cobra.Command{
	Use:   "correct",
	Short: "Correct anchor coordinates",
	Long:  "Resolves each anchor against Nominatim, snaps to a nearby entrance node via Overpass, validates plausibility, and writes the corrected dataset plus a changelog.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input, _ := cmd.Flags().GetString("input")
		output, _ := cmd.Flags().GetString("output")
		changelogPath, _ := cmd.Flags().GetString("changelog")
		radius, _ := cmd.Flags().GetInt("radius")
		throttleInterval, _ := cmd.Flags().GetDuration("throttle")
		limit, _ := cmd.Flags().GetInt("limit")

		if radius <= 0 {
			radius = cfg.Correct.RadiusM
		}
		if throttleInterval <= 0 {
			throttleInterval = cfg.Correct.Throttle
		}

		log := zap.L().With(zap.String("command", "correct"))

		in, err := os.Open(input)
		if err != nil {
			return eris.Wrapf(err, "correct: open %s", input)
		}
		records, err := dataset.ReadAnchors(in)
		_ = in.Close()
		if err != nil {
			return err
		}
		if limit > 0 && limit < len(records) {
			records = records[:limit]
		}
		if len(records) == 0 {
			fmt.Println("No anchors to process")
			return nil
		}

		log.Info("starting correction run",
			zap.Int("anchors", len(records)),
			zap.String("input", input),
			zap.String("output", output),
			zap.String("changelog", changelogPath),
			zap.Duration("throttle", throttleInterval),
			zap.Int("radius_m", radius),
		)

		gate := throttle.New(throttleInterval, throttle.KeyNominatim, throttle.KeyOverpass)

		poi := nominatim.NewClient(gate,
			nominatim.WithBaseURL(cfg.Nominatim.BaseURL),
			nominatim.WithUserAgent(cfg.Nominatim.UserAgent),
			nominatim.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Nominatim.TimeoutSecs) * time.Second}),
		)
		entrances := overpass.NewClient(gate,
			overpass.WithBaseURL(cfg.Overpass.BaseURL),
			overpass.WithUserAgent(cfg.Overpass.UserAgent),
			overpass.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Overpass.TimeoutSecs) * time.Second}),
		)

		corrector := pipeline.NewCorrector(poi, entrances, pipeline.WithRadius(radius))

		corrected, changelog, err := corrector.Run(ctx, records)
		if err != nil {
			return eris.Wrap(err, "correct: pipeline run")
		}

		if err := writeOutputs(output, corrected, changelogPath, changelog); err != nil {
			return err
		}

		var review int
		for _, rec := range corrected {
			if rec.NeedsManualReview {
				review++
			}
		}
		log.Info("correction run complete",
			zap.Int("anchors", len(corrected)),
			zap.Int("needs_review", review),
		)
		fmt.Printf("Wrote %s\n", output)
		fmt.Printf("Wrote %s\n", changelogPath)
		return nil
	},
}

// writeOutputs persists the corrected dataset and the changelog. The two
// files are independent, so they are written concurrently.
func writeOutputs(anchorPath string, records []model.AnchorRecord, changelogPath string, entries []model.ChangelogEntry) error {
	var eg errgroup.Group

	eg.Go(func() error {
		f, err := os.Create(anchorPath)
		if err != nil {
			return eris.Wrapf(err, "correct: create %s", anchorPath)
		}
		defer f.Close() //nolint:errcheck
		return dataset.WriteAnchors(f, records)
	})

	eg.Go(func() error {
		f, err := os.Create(changelogPath)
		if err != nil {
			return eris.Wrapf(err, "correct: create %s", changelogPath)
		}
		defer f.Close() //nolint:errcheck
		return dataset.WriteChangelog(f, entries)
	})

	return eg.Wait()
}

func init() {
	correctCmd.Flags().String("input", "anchors.csv", "input anchors CSV")
	correctCmd.Flags().String("output", "anchors_corrected.csv", "corrected anchors CSV")
	correctCmd.Flags().String("changelog", "anchors_changelog.csv", "changelog CSV")
	correctCmd.Flags().Int("radius", 0, "entrance search radius in metres (default from config)")
	correctCmd.Flags().Duration("throttle", 0, "minimum interval between requests per service (default from config)")
	correctCmd.Flags().Int("limit", 0, "process only the first N anchors")

	rootCmd.AddCommand(correctCmd)
}
