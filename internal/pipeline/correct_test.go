package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nest-urban/anchor-cli/internal/model"
	"github.com/nest-urban/anchor-cli/pkg/nominatim"
	"github.com/nest-urban/anchor-cli/pkg/overpass"
)

// fakeResolver returns a canned place or error per (name, postcode) call.
type fakeResolver struct {
	place *nominatim.Place
	err   error
	calls int
}

func (f *fakeResolver) Search(_ context.Context, _, _ string) (*nominatim.Place, error) {
	f.calls++
	return f.place, f.err
}

// fakeFinder returns a canned entrance or error.
type fakeFinder struct {
	entrance *overpass.Entrance
	err      error
	calls    int
}

func (f *fakeFinder) FindEntrance(_ context.Context, _, _ float64, _ int) (*overpass.Entrance, error) {
	f.calls++
	return f.entrance, f.err
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
}

func testRecord() model.AnchorRecord {
	return model.AnchorRecord{
		ID:         "a-1",
		Name:       "Acme Library",
		Postcode:   "NE1 1AA",
		AnchorType: "civic",
		Subtype:    "library",
	}
}

func runOne(t *testing.T, poi POIResolver, ent EntranceFinder) (model.AnchorRecord, model.ChangelogEntry) {
	t.Helper()
	c := NewCorrector(poi, ent, WithNow(fixedNow))
	recs, changelog, err := c.Run(context.Background(), []model.AnchorRecord{testRecord()})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Len(t, changelog, 1)
	return recs[0], changelog[0]
}

func TestRun_MainEntranceFound(t *testing.T) {
	poi := &fakeResolver{place: &nominatim.Place{Lat: 54.97, Lon: -1.61}}
	ent := &fakeFinder{entrance: &overpass.Entrance{
		Lat: 54.9701, Lon: -1.6099, Tags: map[string]string{"entrance": "main"},
	}}

	rec, entry := runOne(t, poi, ent)

	assert.Equal(t, model.MethodOverpassEntrance, rec.CorrectionMethod)
	assert.Equal(t, model.IntentMainEntrance, rec.PointIntent)
	assert.Equal(t, 85, rec.ConfidenceScore)
	assert.False(t, rec.NeedsManualReview)
	require.NotNil(t, rec.LatCorrected)
	require.NotNil(t, rec.LonCorrected)
	assert.InDelta(t, 54.9701, *rec.LatCorrected, 1e-9)
	assert.InDelta(t, -1.6099, *rec.LonCorrected, 1e-9)
	assert.Equal(t, "OSM:Nominatim; OSM:Overpass", rec.SourceChecked)
	assert.Equal(t, "2026-08-30", rec.LastVerifiedDate)
	assert.Equal(t, "Nominatim OK Nominatim POI match Overpass OK Entrance node found", rec.ChangeNote)

	assert.Equal(t, "a-1", entry.ID)
	assert.Equal(t, model.MethodOverpassEntrance, entry.Method)
	assert.Equal(t, 85, entry.Confidence)
	assert.Nil(t, entry.OldLat)
	require.NotNil(t, entry.NewLat)
	assert.InDelta(t, 54.9701, *entry.NewLat, 1e-9)
}

func TestRun_NonMainEntranceIsNearby(t *testing.T) {
	poi := &fakeResolver{place: &nominatim.Place{Lat: 54.97, Lon: -1.61}}
	ent := &fakeFinder{entrance: &overpass.Entrance{
		Lat: 54.9702, Lon: -1.6101, Tags: map[string]string{"entrance": "yes"},
	}}

	rec, _ := runOne(t, poi, ent)

	assert.Equal(t, model.MethodOverpassEntrance, rec.CorrectionMethod)
	assert.Equal(t, model.IntentEntranceNearby, rec.PointIntent)
	assert.Equal(t, 85, rec.ConfidenceScore)
	assert.False(t, rec.NeedsManualReview)
}

func TestRun_POIOnlyNoEntrance(t *testing.T) {
	poi := &fakeResolver{place: &nominatim.Place{Lat: 54.97, Lon: -1.61}}
	ent := &fakeFinder{} // service succeeds, zero entrance nodes

	rec, _ := runOne(t, poi, ent)

	assert.Equal(t, model.MethodNominatimPOI, rec.CorrectionMethod)
	assert.Equal(t, model.IntentPublicEntrance, rec.PointIntent)
	assert.Equal(t, 60, rec.ConfidenceScore)
	assert.True(t, rec.NeedsManualReview)
	require.NotNil(t, rec.LatCorrected)
	assert.InDelta(t, 54.97, *rec.LatCorrected, 1e-9)
	assert.Contains(t, rec.ChangeNote, "No entrance node; using POI location")
}

func TestRun_NoGeocodeMatch(t *testing.T) {
	poi := &fakeResolver{} // service succeeds, zero results
	ent := &fakeFinder{}

	rec, entry := runOne(t, poi, ent)

	assert.Equal(t, model.MethodNoMatch, rec.CorrectionMethod)
	assert.Equal(t, 0, rec.ConfidenceScore)
	assert.True(t, rec.NeedsManualReview)
	assert.Nil(t, rec.LatCorrected)
	assert.Nil(t, rec.LonCorrected)
	assert.Contains(t, rec.ChangeNote, "No geocode match")
	assert.Contains(t, rec.ChangeNote, "Missing coordinates")

	// Entrance lookup is skipped entirely without a POI point.
	assert.Equal(t, 0, ent.calls)
	assert.Equal(t, model.MethodNoMatch, entry.Method)
}

func TestRun_ResolverFailure(t *testing.T) {
	poi := &fakeResolver{err: eris.New("connection refused")}
	ent := &fakeFinder{}

	rec, _ := runOne(t, poi, ent)

	assert.Equal(t, model.MethodNoMatch, rec.CorrectionMethod)
	assert.Equal(t, 0, rec.ConfidenceScore)
	assert.True(t, rec.NeedsManualReview)
	assert.Nil(t, rec.LatCorrected)
	assert.Contains(t, rec.ChangeNote, "Nominatim failed: connection refused")
	assert.Equal(t, 0, ent.calls)
}

func TestRun_EntranceFailureKeepsPOIPoint(t *testing.T) {
	poi := &fakeResolver{place: &nominatim.Place{Lat: 54.97, Lon: -1.61}}
	ent := &fakeFinder{err: eris.New("gateway timeout")}

	rec, _ := runOne(t, poi, ent)

	assert.Equal(t, model.MethodNominatimPOI, rec.CorrectionMethod)
	assert.Equal(t, 65, rec.ConfidenceScore)
	assert.True(t, rec.NeedsManualReview)
	require.NotNil(t, rec.LatCorrected)
	assert.InDelta(t, 54.97, *rec.LatCorrected, 1e-9)
	assert.Contains(t, rec.ChangeNote, "Overpass failed: gateway timeout")
}

func TestRun_ImplausiblePointCapsConfidence(t *testing.T) {
	// POI outside the UK box and a failed entrance lookup: both notes must
	// appear and confidence is capped at 20 with the method left intact.
	poi := &fakeResolver{place: &nominatim.Place{Lat: 61.0, Lon: 0.0}}
	ent := &fakeFinder{err: eris.New("transport error")}

	rec, _ := runOne(t, poi, ent)

	assert.LessOrEqual(t, rec.ConfidenceScore, 20)
	assert.True(t, rec.NeedsManualReview)
	assert.Equal(t, model.MethodNominatimPOI, rec.CorrectionMethod)
	assert.Contains(t, rec.ChangeNote, "Overpass failed")
	assert.Contains(t, rec.ChangeNote, "Implausible UK bounds")
	require.NotNil(t, rec.LatCorrected)
	assert.InDelta(t, 61.0, *rec.LatCorrected, 1e-9)
}

func TestRun_ImplausibleEntranceCapped(t *testing.T) {
	poi := &fakeResolver{place: &nominatim.Place{Lat: 54.97, Lon: -1.61}}
	ent := &fakeFinder{entrance: &overpass.Entrance{
		Lat: -54.97, Lon: -1.61, Tags: map[string]string{"entrance": "main"},
	}}

	rec, _ := runOne(t, poi, ent)

	assert.Equal(t, model.MethodOverpassEntrance, rec.CorrectionMethod)
	assert.Equal(t, 20, rec.ConfidenceScore)
	assert.True(t, rec.NeedsManualReview)
}

func TestRun_PreservesOrderAndCounts(t *testing.T) {
	poi := &fakeResolver{place: &nominatim.Place{Lat: 54.97, Lon: -1.61}}
	ent := &fakeFinder{}

	records := []model.AnchorRecord{
		{ID: "a-1", Name: "First", Postcode: "NE1 1AA"},
		{ID: "a-2", Name: "Second", Postcode: "NE2 2BB"},
		{ID: "a-3", Name: "Third", Postcode: "NE3 3CC"},
	}

	c := NewCorrector(poi, ent, WithNow(fixedNow))
	out, changelog, err := c.Run(context.Background(), records)
	require.NoError(t, err)

	require.Len(t, out, len(records))
	require.Len(t, changelog, len(records))
	for i := range records {
		assert.Equal(t, records[i].ID, out[i].ID)
		assert.Equal(t, records[i].ID, changelog[i].ID)
	}
}

func TestRun_Idempotent(t *testing.T) {
	poi := &fakeResolver{place: &nominatim.Place{Lat: 54.97, Lon: -1.61}}
	ent := &fakeFinder{entrance: &overpass.Entrance{
		Lat: 54.9701, Lon: -1.6099, Tags: map[string]string{"entrance": "main"},
	}}

	c := NewCorrector(poi, ent, WithNow(fixedNow))

	first, _, err := c.Run(context.Background(), []model.AnchorRecord{testRecord()})
	require.NoError(t, err)

	// Re-run on the pipeline's own output with identical service responses.
	second, _, err := c.Run(context.Background(), first)
	require.NoError(t, err)

	assert.Equal(t, *first[0].LatCorrected, *second[0].LatCorrected)
	assert.Equal(t, *first[0].LonCorrected, *second[0].LonCorrected)
	assert.Equal(t, first[0].CorrectionMethod, second[0].CorrectionMethod)
	assert.Equal(t, first[0].PointIntent, second[0].PointIntent)
	assert.Equal(t, first[0].ConfidenceScore, second[0].ConfidenceScore)
	assert.Equal(t, first[0].ChangeNote, second[0].ChangeNote)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCorrector(&fakeResolver{}, &fakeFinder{})
	_, _, err := c.Run(ctx, []model.AnchorRecord{testRecord()})
	require.Error(t, err)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "start", stageStart.String())
	assert.Equal(t, "poi_lookup", stagePOILookup.String())
	assert.Equal(t, "entrance_lookup", stageEntranceLookup.String())
	assert.Equal(t, "finalize", stageFinalize.String())
	assert.Equal(t, "done", stageDone.String())
}
