package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
)

// obstacle file: a GeoJSON FeatureCollection of Polygon features.

type obstacleFile struct {
	Features []struct {
		Geometry struct {
			Type        string            `json:"type"`
			Coordinates json.RawMessage   `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// readObstacles parses obstacle polygons from a GeoJSON file.
func readObstacles(path string) ([]orb.Polygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file obstacleFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse obstacles: %w", err)
	}

	var out []orb.Polygon
	for _, f := range file.Features {
		if f.Geometry.Type != "Polygon" {
			continue
		}
		var rings [][][2]float64
		if err := json.Unmarshal(f.Geometry.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("parse obstacles: %w", err)
		}
		var poly orb.Polygon
		for _, ring := range rings {
			r := make(orb.Ring, len(ring))
			for i, c := range ring {
				r[i] = orb.Point{c[0], c[1]}
			}
			poly = append(poly, r)
		}
		out = append(out, poly)
	}
	return out, nil
}
