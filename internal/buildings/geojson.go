// Package buildings loads Overture building footprints from GeoJSON into
// a PostGIS table for the map layer behind the anchors dataset.
package buildings

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// Building is one footprint row destined for the overture_buildings table.
type Building struct {
	ID           string
	Name         *string
	Height       *float64
	RenderHeight *float64
	Geometry     geom.T
}

// ParseGeoJSON decodes a GeoJSON FeatureCollection into buildings.
// Features without a usable id or geometry are skipped with a warning
// rather than failing the whole load.
func ParseGeoJSON(r io.Reader) ([]Building, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "buildings: read geojson")
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "buildings: parse geojson")
	}

	log := zap.L().With(zap.String("component", "buildings.parser"))

	buildings := make([]Building, 0, len(fc.Features))
	for i, feat := range fc.Features {
		if feat == nil {
			continue
		}

		id := featureID(feat)
		if id == "" {
			log.Warn("skipping feature without id", zap.Int("index", i))
			continue
		}
		if feat.Geometry == nil {
			log.Warn("skipping feature without geometry", zap.String("id", id))
			continue
		}

		b := Building{
			ID:           id,
			Name:         propString(feat.Properties, "name"),
			Height:       propFloat(feat.Properties, "height"),
			RenderHeight: propFloat(feat.Properties, "render_height"),
			Geometry:     feat.Geometry,
		}
		buildings = append(buildings, b)
	}

	return buildings, nil
}

func featureID(feat *geojson.Feature) string {
	if id := propString(feat.Properties, "id"); id != nil {
		return *id
	}
	return feat.ID
}

func propString(props map[string]any, key string) *string {
	v, ok := props[key]
	if !ok || v == nil {
		return nil
	}
	s := fmt.Sprintf("%v", v)
	if s == "" {
		return nil
	}
	return &s
}

func propFloat(props map[string]any, key string) *float64 {
	v, ok := props[key]
	if !ok || v == nil {
		return nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}
