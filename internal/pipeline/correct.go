// Package pipeline corrects anchor coordinates record by record: a POI
// lookup establishes a candidate point, an entrance query refines it, and
// a plausibility check guards the result. Every record yields exactly one
// corrected row and one changelog entry.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nest-urban/anchor-cli/internal/model"
	"github.com/nest-urban/anchor-cli/pkg/nominatim"
	"github.com/nest-urban/anchor-cli/pkg/overpass"
)

// sourceChecked is the attribution written to every processed record.
const sourceChecked = "OSM:Nominatim; OSM:Overpass"

// Confidence scores per provenance quality.
const (
	confidenceEntrance = 85
	confidencePOI      = 65
	confidencePOIOnly  = 60
	confidenceCap      = 20
)

// POIResolver finds the best POI match for a (name, postcode) pair.
// A nil Place with nil error means no match.
type POIResolver interface {
	Search(ctx context.Context, name, postcode string) (*nominatim.Place, error)
}

// EntranceFinder finds the best entrance node near a point.
// A nil Entrance with nil error means no entrance nodes in range.
type EntranceFinder interface {
	FindEntrance(ctx context.Context, lat, lon float64, radiusM int) (*overpass.Entrance, error)
}

// stage is the per-record state of the correction chain. Transitions only
// move forward; each record runs the chain at most once.
type stage int

const (
	stageStart stage = iota
	stagePOILookup
	stageEntranceLookup
	stageFinalize
	stageDone
)

func (s stage) String() string {
	switch s {
	case stageStart:
		return "start"
	case stagePOILookup:
		return "poi_lookup"
	case stageEntranceLookup:
		return "entrance_lookup"
	case stageFinalize:
		return "finalize"
	default:
		return "done"
	}
}

// outcome accumulates the correction result for one record. The method
// zero value marks the pre-resolution state and is overwritten on every
// terminal path before write-back.
type outcome struct {
	lat, lon    *float64
	method      model.CorrectionMethod
	intent      model.PointIntent
	confidence  int
	notes       []string
	needsReview bool
}

func (o *outcome) note(s string) {
	o.notes = append(o.notes, s)
}

func (o *outcome) setPoint(lat, lon float64) {
	o.lat, o.lon = &lat, &lon
}

// Option configures the Corrector.
type Option func(*Corrector)

// WithRadius sets the entrance search radius in metres.
func WithRadius(radiusM int) Option {
	return func(c *Corrector) {
		if radiusM > 0 {
			c.radiusM = radiusM
		}
	}
}

// WithNow overrides the clock used for last_verified_date.
func WithNow(now func() time.Time) Option {
	return func(c *Corrector) {
		c.now = now
	}
}

// Corrector drives the per-record correction state machine.
type Corrector struct {
	poi       POIResolver
	entrances EntranceFinder
	radiusM   int
	now       func() time.Time
}

// NewCorrector creates a Corrector over the given resolvers.
func NewCorrector(poi POIResolver, entrances EntranceFinder, opts ...Option) *Corrector {
	c := &Corrector{
		poi:       poi,
		entrances: entrances,
		radiusM:   overpass.DefaultRadiusM,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes every record in order and returns the corrected records
// alongside one changelog entry per input record. Records are never
// dropped; unresolved ones come back flagged for manual review.
func (c *Corrector) Run(ctx context.Context, records []model.AnchorRecord) ([]model.AnchorRecord, []model.ChangelogEntry, error) {
	log := zap.L().With(zap.String("component", "pipeline.corrector"))
	today := c.now().Format("2006-01-02")

	out := make([]model.AnchorRecord, len(records))
	changelog := make([]model.ChangelogEntry, 0, len(records))

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		log.Info("processing anchor",
			zap.Int("row", i+1),
			zap.Int("total", len(records)),
			zap.String("anchor_type", rec.AnchorType),
			zap.String("subtype", rec.Subtype),
			zap.String("name", rec.Name),
			zap.String("postcode", rec.Postcode),
		)

		result := c.processRecord(ctx, rec)

		corrected := rec
		corrected.LatCorrected = result.lat
		corrected.LonCorrected = result.lon
		corrected.PointIntent = result.intent
		corrected.CorrectionMethod = result.method
		corrected.ConfidenceScore = result.confidence
		corrected.ChangeNote = strings.Join(result.notes, " ")
		corrected.SourceChecked = sourceChecked
		corrected.LastVerifiedDate = today
		corrected.NeedsManualReview = result.needsReview

		out[i] = corrected
		changelog = append(changelog, newChangelogEntry(rec, corrected))
	}

	return out, changelog, nil
}

// processRecord walks the record through the stage chain.
func (c *Corrector) processRecord(ctx context.Context, rec model.AnchorRecord) *outcome {
	result := &outcome{intent: model.IntentPublicEntrance}

	st := stageStart
	for st != stageDone {
		st = c.step(ctx, st, rec, result)
	}
	return result
}

// step runs one stage and returns the next. Entrance lookup is reachable
// only from a POI match; everything funnels into finalize.
func (c *Corrector) step(ctx context.Context, st stage, rec model.AnchorRecord, result *outcome) stage {
	switch st {
	case stageStart:
		return stagePOILookup
	case stagePOILookup:
		return c.lookupPOI(ctx, rec, result)
	case stageEntranceLookup:
		return c.lookupEntrance(ctx, result)
	case stageFinalize:
		c.finalize(result)
		return stageDone
	default:
		return stageDone
	}
}

// lookupPOI resolves the anchor against the POI search service. Both a
// failed search and an empty result leave the record unresolved; only a
// match advances to the entrance lookup.
func (c *Corrector) lookupPOI(ctx context.Context, rec model.AnchorRecord, result *outcome) stage {
	place, err := c.poi.Search(ctx, rec.Name, rec.Postcode)
	if err != nil {
		result.note(fmt.Sprintf("Nominatim failed: %v", err))
		result.needsReview = true
	} else {
		result.note("Nominatim OK")
	}

	if place == nil {
		result.needsReview = true
		result.note("No geocode match")
		result.confidence = 0
		result.method = model.MethodNoMatch
		return stageFinalize
	}

	result.setPoint(place.Lat, place.Lon)
	result.method = model.MethodNominatimPOI
	result.confidence = confidencePOI
	result.note("Nominatim POI match")
	return stageEntranceLookup
}

// lookupEntrance tries to snap the POI point to a nearby entrance node.
// On failure the POI point stays the best available.
func (c *Corrector) lookupEntrance(ctx context.Context, result *outcome) stage {
	ent, err := c.entrances.FindEntrance(ctx, *result.lat, *result.lon, c.radiusM)
	if err != nil {
		result.note(fmt.Sprintf("Overpass failed: %v", err))
		result.needsReview = true
	} else {
		result.note("Overpass OK")
	}

	if ent == nil {
		if err == nil {
			result.needsReview = true
			result.note("No entrance node; using POI location (likely centroid/site point)")
			result.confidence = confidencePOIOnly
		}
		return stageFinalize
	}

	result.setPoint(ent.Lat, ent.Lon)
	result.method = model.MethodOverpassEntrance
	result.confidence = confidenceEntrance
	if ent.IsMain() {
		result.intent = model.IntentMainEntrance
	} else {
		result.intent = model.IntentEntranceNearby
	}
	result.note("Entrance node found")
	return stageFinalize
}

// finalize runs the plausibility check on the current best point. An
// implausible point is kept but its confidence is capped; the method and
// intent tags from the upstream stage stay untouched.
func (c *Corrector) finalize(result *outcome) {
	switch {
	case result.lat == nil || result.lon == nil:
		result.needsReview = true
		result.note("Missing coordinates")
		result.confidence = 0
	case !IsPlausibleUK(*result.lat, *result.lon):
		result.needsReview = true
		result.note("Implausible UK bounds")
		if result.confidence > confidenceCap {
			result.confidence = confidenceCap
		}
	}
}
