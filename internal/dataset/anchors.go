// Package dataset reads and writes the anchors CSV and its changelog.
// The reader is header-driven so optional audit columns may be absent in
// the input; they default to null before processing.
package dataset

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/nest-urban/anchor-cli/internal/model"
)

// requiredColumns must be present in every input file.
var requiredColumns = []string{"id", "name", "postcode", "anchor_type", "subtype", "latitude", "longitude"}

// anchorColumns is the full output column set, in write order.
var anchorColumns = []string{
	"id", "name", "postcode", "anchor_type", "subtype",
	"latitude", "longitude",
	"lat_corrected", "lon_corrected",
	"point_intent", "correction_method", "confidence_score",
	"change_note", "source_checked", "last_verified_date", "needs_manual_review",
}

// changelogColumns is the audit file column set, in write order.
var changelogColumns = []string{
	"id", "name", "anchor_type", "subtype", "postcode",
	"old_lat", "old_lon", "new_lat", "new_lon",
	"method", "confidence", "notes",
}

// ReadAnchors parses an anchors CSV. Missing optional columns and empty
// cells become null/zero values on the returned records.
func ReadAnchors(r io.Reader) ([]model.AnchorRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read header")
	}

	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(strings.ToLower(col))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("dataset: missing required column %q", col)
		}
	}

	cell := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []model.AnchorRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: read row at line %d", line)
		}

		rec := model.AnchorRecord{
			ID:               cell(row, "id"),
			Name:             cell(row, "name"),
			Postcode:         cell(row, "postcode"),
			AnchorType:       cell(row, "anchor_type"),
			Subtype:          cell(row, "subtype"),
			PointIntent:      model.PointIntent(cell(row, "point_intent")),
			CorrectionMethod: model.CorrectionMethod(cell(row, "correction_method")),
			ChangeNote:       cell(row, "change_note"),
			SourceChecked:    cell(row, "source_checked"),
			LastVerifiedDate: cell(row, "last_verified_date"),
		}

		rec.Latitude, err = parseOptFloat(cell(row, "latitude"))
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: latitude at line %d", line)
		}
		rec.Longitude, err = parseOptFloat(cell(row, "longitude"))
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: longitude at line %d", line)
		}
		rec.LatCorrected, err = parseOptFloat(cell(row, "lat_corrected"))
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: lat_corrected at line %d", line)
		}
		rec.LonCorrected, err = parseOptFloat(cell(row, "lon_corrected"))
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: lon_corrected at line %d", line)
		}

		if s := cell(row, "confidence_score"); s != "" {
			rec.ConfidenceScore, err = strconv.Atoi(s)
			if err != nil {
				return nil, eris.Wrapf(err, "dataset: confidence_score at line %d", line)
			}
		}
		if s := cell(row, "needs_manual_review"); s != "" {
			rec.NeedsManualReview, err = strconv.ParseBool(s)
			if err != nil {
				return nil, eris.Wrapf(err, "dataset: needs_manual_review at line %d", line)
			}
		}

		records = append(records, rec)
	}

	return records, nil
}

// WriteAnchors writes records with the full corrected column set.
func WriteAnchors(w io.Writer, records []model.AnchorRecord) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(anchorColumns); err != nil {
		return eris.Wrap(err, "dataset: write header")
	}

	for _, rec := range records {
		row := []string{
			rec.ID, rec.Name, rec.Postcode, rec.AnchorType, rec.Subtype,
			formatOptFloat(rec.Latitude), formatOptFloat(rec.Longitude),
			formatOptFloat(rec.LatCorrected), formatOptFloat(rec.LonCorrected),
			string(rec.PointIntent), string(rec.CorrectionMethod),
			strconv.Itoa(rec.ConfidenceScore),
			rec.ChangeNote, rec.SourceChecked, rec.LastVerifiedDate,
			strconv.FormatBool(rec.NeedsManualReview),
		}
		if err := writer.Write(row); err != nil {
			return eris.Wrapf(err, "dataset: write row %s", rec.ID)
		}
	}

	writer.Flush()
	return eris.Wrap(writer.Error(), "dataset: flush")
}

// WriteChangelog writes one audit row per changelog entry.
func WriteChangelog(w io.Writer, entries []model.ChangelogEntry) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(changelogColumns); err != nil {
		return eris.Wrap(err, "dataset: write changelog header")
	}

	for _, e := range entries {
		row := []string{
			e.ID, e.Name, e.AnchorType, e.Subtype, e.Postcode,
			formatOptFloat(e.OldLat), formatOptFloat(e.OldLon),
			formatOptFloat(e.NewLat), formatOptFloat(e.NewLon),
			string(e.Method), strconv.Itoa(e.Confidence), e.Notes,
		}
		if err := writer.Write(row); err != nil {
			return eris.Wrapf(err, "dataset: write changelog row %s", e.ID)
		}
	}

	writer.Flush()
	return eris.Wrap(writer.Error(), "dataset: flush changelog")
}

func parseOptFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func formatOptFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
