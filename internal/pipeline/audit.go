package pipeline

import "github.com/nest-urban/anchor-cli/internal/model"

// newChangelogEntry captures the before/after state of one record. The
// original supplies the identity fields and old coordinates; the corrected
// record supplies the result of the run.
func newChangelogEntry(original, corrected model.AnchorRecord) model.ChangelogEntry {
	return model.ChangelogEntry{
		ID:         original.ID,
		Name:       original.Name,
		AnchorType: original.AnchorType,
		Subtype:    original.Subtype,
		Postcode:   original.Postcode,
		OldLat:     original.Latitude,
		OldLon:     original.Longitude,
		NewLat:     corrected.LatCorrected,
		NewLon:     corrected.LonCorrected,
		Method:     corrected.CorrectionMethod,
		Confidence: corrected.ConfidenceScore,
		Notes:      corrected.ChangeNote,
	}
}
