package territory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mfvargas/fieldops/core/model"
	"github.com/mfvargas/fieldops/core/store"
)

type geoJSONGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type geoJSONFeature struct {
	Type       string           `json:"type"`
	Properties map[string]any   `json:"properties"`
	Geometry   *geoJSONGeometry `json:"geometry"`
}

type geoJSONCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

// ParseGeometry converts a GeoJSON Polygon or MultiPolygon into the internal
// polygon form. For a MultiPolygon the first member polygon is kept.
func ParseGeometry(g *geoJSONGeometry) (*model.Polygon, error) {
	if g == nil {
		return nil, &model.ArgumentError{Field: "geometry", Reason: "missing"}
	}
	switch g.Type {
	case "Polygon":
		var rings []model.Ring
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, &model.ArgumentError{Field: "geometry", Reason: "malformed polygon coordinates"}
		}
		p := &model.Polygon{Rings: rings}
		if err := ValidatePolygon(p); err != nil {
			return nil, err
		}
		return p, nil
	case "MultiPolygon":
		var polys [][]model.Ring
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return nil, &model.ArgumentError{Field: "geometry", Reason: "malformed multipolygon coordinates"}
		}
		if len(polys) == 0 {
			return nil, &model.ArgumentError{Field: "geometry", Reason: "empty multipolygon"}
		}
		p := &model.Polygon{Rings: polys[0]}
		if err := ValidatePolygon(p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, &model.ArgumentError{Field: "geometry", Reason: "unsupported type " + g.Type}
}

func propString(props map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := props[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func propFloat(props map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := props[k]; ok {
			if f, ok := v.(float64); ok {
				return f
			}
		}
	}
	return 0
}

// ImportGeoJSON loads a GeoJSON feature collection into the territory store.
// Each feature needs a code property; name and area are optional. Returns the
// number of territories stored.
func ImportGeoJSON(ctx context.Context, st store.TerritoryStore, r io.Reader) (int, error) {
	var coll geoJSONCollection
	if err := json.NewDecoder(r).Decode(&coll); err != nil {
		return 0, fmt.Errorf("decode feature collection: %w", err)
	}
	if coll.Type != "FeatureCollection" {
		return 0, fmt.Errorf("expected FeatureCollection, got %q", coll.Type)
	}
	count := 0
	for i, f := range coll.Features {
		code := strings.TrimSpace(propString(f.Properties, "code", "CODE", "id"))
		if code == "" {
			return count, fmt.Errorf("feature %d: missing code property", i)
		}
		poly, err := ParseGeometry(f.Geometry)
		if err != nil {
			return count, fmt.Errorf("feature %q: %w", code, err)
		}
		centroid, err := Centroid(poly)
		if err != nil {
			return count, fmt.Errorf("feature %q: %w", code, err)
		}
		t := &model.Territory{
			ID:           uuid.New(),
			Code:         code,
			Name:         propString(f.Properties, "name", "NAME"),
			Geometry:     poly,
			Centroid:     &centroid,
			AreaHectares: propFloat(f.Properties, "area_hectares", "area"),
			Active:       true,
			CreatedAt:    time.Now(),
		}
		if existing, err := st.TerritoryByCode(ctx, code); err == nil {
			t.ID = existing.ID
			t.CreatedAt = existing.CreatedAt
		}
		if err := st.PutTerritory(ctx, t); err != nil {
			return count, fmt.Errorf("store feature %q: %w", code, err)
		}
		count++
	}
	return count, nil
}
