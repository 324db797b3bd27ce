package basegraph

import (
	"encoding/json"
	"io"
)

// The debug dump mirrors the geo-graph JSON format of the line graph:
// grid nodes become Point features, grid edges LineString features with
// their routing state attached. Intended for inspecting the settle state
// of a finished or failed embedding.

type debugFeature struct {
	Type       string         `json:"type"`
	Geometry   debugGeometry  `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type debugGeometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// WriteJSON dumps the base graph as geo-graph JSON for debugging. Sink and
// bend edges are omitted unless withSecondary is set.
func WriteJSON(g BaseGraph, w io.Writer, withSecondary bool) error {
	var features []debugFeature

	for i := 0; i < g.NumNodes(); i++ {
		nd := g.NodeAt(GridNodeID(i))
		if nd.Port >= 0 && !withSecondary {
			continue
		}
		props := map[string]any{"id": i, "port": nd.Port}
		if nd.Settled != NoOwner {
			props["settled_for"] = nd.Settled
		}
		if nd.closed {
			props["closed"] = true
		}
		features = append(features, debugFeature{
			Type:       "Feature",
			Geometry:   debugGeometry{Type: "Point", Coordinates: [2]float64{nd.Pos.X(), nd.Pos.Y()}},
			Properties: props,
		})
	}

	for i := 0; i < g.NumEdges(); i++ {
		e := g.EdgeAt(GridEdgeID(i))
		if e.Secondary() && !withSecondary {
			continue
		}
		a, b := g.NodeAt(e.From), g.NodeAt(e.To)
		props := map[string]any{
			"id":   i,
			"cost": e.Cost(),
		}
		if e.closed {
			props["closed"] = true
		}
		if e.blocked {
			props["blocked"] = true
		}
		if n := e.ResCount(); n > 0 {
			props["residents"] = n
		}
		features = append(features, debugFeature{
			Type: "Feature",
			Geometry: debugGeometry{
				Type: "LineString",
				Coordinates: [][2]float64{
					{a.Pos.X(), a.Pos.Y()},
					{b.Pos.X(), b.Pos.Y()},
				},
			},
			Properties: props,
		})
	}

	enc := json.NewEncoder(w)
	return enc.Encode(map[string]any{
		"type":     "FeatureCollection",
		"features": features,
	})
}
