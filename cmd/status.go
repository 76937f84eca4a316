package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/nest-urban/anchor-cli/internal/dataset"
	"github.com/nest-urban/anchor-cli/internal/model"
)

// datasetSummary aggregates a corrected anchors file for reporting.
type datasetSummary struct {
	Total       int
	ByMethod    map[model.CorrectionMethod]int
	NeedsReview int
	MeanConf    float64
}

// summarize computes per-method counts, the review-queue size, and the
// mean confidence over all records.
func summarize(records []model.AnchorRecord) datasetSummary {
	s := datasetSummary{
		Total:    len(records),
		ByMethod: make(map[model.CorrectionMethod]int),
	}

	var confSum int
	for _, rec := range records {
		s.ByMethod[rec.CorrectionMethod]++
		if rec.NeedsManualReview {
			s.NeedsReview++
		}
		confSum += rec.ConfidenceScore
	}
	if s.Total > 0 {
		s.MeanConf = float64(confSum) / float64(s.Total)
	}
	return s
}

var statusCmd = &cobra.Command{
	Use:   "status <corrected.csv>",
	Short: "Summarize a corrected anchors dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "status: open %s", args[0])
		}
		defer f.Close() //nolint:errcheck

		records, err := dataset.ReadAnchors(f)
		if err != nil {
			return err
		}

		s := summarize(records)

		fmt.Printf("Anchors: %d\n", s.Total)
		fmt.Printf("Needs manual review: %d\n", s.NeedsReview)
		fmt.Printf("Mean confidence: %.1f\n", s.MeanConf)

		methods := make([]string, 0, len(s.ByMethod))
		for m := range s.ByMethod {
			methods = append(methods, string(m))
		}
		sort.Strings(methods)
		for _, m := range methods {
			label := m
			if label == "" {
				label = "(unprocessed)"
			}
			fmt.Printf("  %-20s %d\n", label, s.ByMethod[model.CorrectionMethod(m)])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
