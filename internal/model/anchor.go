// Package model defines the anchor dataset records shared across the
// correction pipeline, the CSV boundary, and the audit log.
package model

// PointIntent describes what kind of point a corrected coordinate represents.
type PointIntent string

const (
	// IntentMainEntrance is a node explicitly tagged entrance=main.
	IntentMainEntrance PointIntent = "main_entrance"
	// IntentEntranceNearby is a non-primary entrance node near the POI.
	IntentEntranceNearby PointIntent = "entrance_nearby"
	// IntentPublicEntrance is the fallback intent when no entrance-specific
	// evidence exists.
	IntentPublicEntrance PointIntent = "public_entrance"
)

// CorrectionMethod tags the provenance of a corrected coordinate.
// The zero value means the record has not been through the pipeline yet;
// it is never written to output.
type CorrectionMethod string

const (
	MethodOverpassEntrance CorrectionMethod = "overpass_entrance"
	MethodNominatimPOI     CorrectionMethod = "nominatim_poi"
	MethodNoMatch          CorrectionMethod = "no_match"
)

// AnchorRecord is one row of the anchors dataset. Coordinate fields are
// pointers because both the originals and the corrections may be absent.
type AnchorRecord struct {
	ID         string
	Name       string
	Postcode   string
	AnchorType string
	Subtype    string

	Latitude  *float64
	Longitude *float64

	LatCorrected      *float64
	LonCorrected      *float64
	PointIntent       PointIntent
	CorrectionMethod  CorrectionMethod
	ConfidenceScore   int
	ChangeNote        string
	SourceChecked     string
	LastVerifiedDate  string
	NeedsManualReview bool
}

// ChangelogEntry is one audit row per processed anchor, capturing the
// before/after coordinates and the rationale for the change.
type ChangelogEntry struct {
	ID         string
	Name       string
	AnchorType string
	Subtype    string
	Postcode   string
	OldLat     *float64
	OldLon     *float64
	NewLat     *float64
	NewLon     *float64
	Method     CorrectionMethod
	Confidence int
	Notes      string
}
