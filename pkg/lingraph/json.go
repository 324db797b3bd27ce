package lingraph

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/paulmach/orb"

	"github.com/pvnkmrksk/magga/pkg/geo"
)

// The wire format is a GeoJSON-flavoured graph: a FeatureCollection whose
// Point features are nodes and whose LineString features are edges. Edge
// features reference node ids through from/to properties and carry the line
// bundle under a lines property. The same types serve API responses and
// Mongo storage.

// FeatureCollection is the serialized graph.
type FeatureCollection struct {
	Type     string    `json:"type" bson:"type"`
	Features []Feature `json:"features" bson:"features"`
}

// Feature is a single node or edge.
type Feature struct {
	Type       string     `json:"type" bson:"type"`
	Geometry   Geometry   `json:"geometry" bson:"geometry"`
	Properties Properties `json:"properties" bson:"properties"`
}

// Geometry holds either a point or a line string.
type Geometry struct {
	Type        string          `json:"type" bson:"type"`
	Coordinates json.RawMessage `json:"coordinates" bson:"coordinates"`
}

// Properties carries node and edge attributes.
type Properties struct {
	ID           string    `json:"id,omitempty" bson:"id,omitempty"`
	StationID    string    `json:"station_id,omitempty" bson:"station_id,omitempty"`
	StationLabel string    `json:"station_label,omitempty" bson:"station_label,omitempty"`
	From         string    `json:"from,omitempty" bson:"from,omitempty"`
	To           string    `json:"to,omitempty" bson:"to,omitempty"`
	Lines        []LineOcc `json:"lines,omitempty" bson:"lines,omitempty"`
	NotServed    []string  `json:"not_serving,omitempty" bson:"not_serving,omitempty"`
}

// LineOcc is the serialized form of a line occurrence.
type LineOcc struct {
	ID        string `json:"id" bson:"id"`
	Label     string `json:"label,omitempty" bson:"label,omitempty"`
	Color     string `json:"color,omitempty" bson:"color,omitempty"`
	Direction string `json:"direction,omitempty" bson:"direction,omitempty"`
}

// Read parses a graph from its wire format.
func Read(r io.Reader) (*Graph, error) {
	var fc FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	return FromFeatures(fc)
}

// ReadFile parses a graph from a file.
func ReadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// FromFeatures builds a graph from its serialized form.
func FromFeatures(fc FeatureCollection) (*Graph, error) {
	g := New()
	byID := map[string]NodeID{}

	for _, f := range fc.Features {
		if f.Geometry.Type != "Point" {
			continue
		}
		var coord [2]float64
		if err := json.Unmarshal(f.Geometry.Coordinates, &coord); err != nil {
			return nil, fmt.Errorf("node %s: %w", f.Properties.ID, err)
		}
		var stops []Station
		if f.Properties.StationID != "" || f.Properties.StationLabel != "" {
			stops = []Station{{ID: f.Properties.StationID, Name: f.Properties.StationLabel}}
		}
		nid := g.AddNode(orb.Point{coord[0], coord[1]}, stops...)
		byID[f.Properties.ID] = nid
		for _, l := range f.Properties.NotServed {
			g.AddLineNotServed(nid, l)
		}
	}

	for _, f := range fc.Features {
		if f.Geometry.Type != "LineString" {
			continue
		}
		var coords [][2]float64
		if err := json.Unmarshal(f.Geometry.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("edge %s→%s: %w", f.Properties.From, f.Properties.To, err)
		}
		from, ok := byID[f.Properties.From]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNode, f.Properties.From)
		}
		to, ok := byID[f.Properties.To]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNode, f.Properties.To)
		}

		pts := make([]orb.Point, len(coords))
		for i, c := range coords {
			pts[i] = orb.Point{c[0], c[1]}
		}

		occs := make([]Occ, 0, len(f.Properties.Lines))
		for _, l := range f.Properties.Lines {
			g.AddLine(Line{ID: l.ID, Label: l.Label, Color: l.Color})
			dir := None
			switch l.Direction {
			case "":
			case f.Properties.From:
				dir = from
			case f.Properties.To:
				dir = to
			default:
				return nil, fmt.Errorf("%w: line %s direction %q", ErrBadDirection, l.ID, l.Direction)
			}
			occs = append(occs, Occ{Line: l.ID, Dir: dir})
		}

		if _, err := g.AddEdge(from, to, geo.NewPolyLine(pts...), occs); err != nil {
			return nil, err
		}
	}

	return g, g.Validate()
}

// ToFeatures serializes a graph to its wire format. Node ids are the arena
// indices rendered as decimal strings.
func ToFeatures(g *Graph) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection"}

	g.Nodes(func(id NodeID, nd *Node) {
		p := Properties{ID: fmt.Sprintf("%d", id)}
		if len(nd.Stops) > 0 {
			p.StationID = nd.Stops[0].ID
			p.StationLabel = nd.Stops[0].Name
		}
		for l := range nd.notServed {
			p.NotServed = append(p.NotServed, l)
		}
		coords, _ := json.Marshal([2]float64{nd.Pos.X(), nd.Pos.Y()})
		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			Geometry:   Geometry{Type: "Point", Coordinates: coords},
			Properties: p,
		})
	})

	g.Edges(func(_ EdgeID, ed *Edge) {
		pts := ed.Geom.Points()
		coords := make([][2]float64, len(pts))
		for i, pt := range pts {
			coords[i] = [2]float64{pt.X(), pt.Y()}
		}
		raw, _ := json.Marshal(coords)

		occs := make([]LineOcc, len(ed.Lines))
		for i, o := range ed.Lines {
			meta, _ := g.Line(o.Line)
			occs[i] = LineOcc{ID: o.Line, Label: meta.Label, Color: meta.Color}
			if o.Dir != None {
				occs[i].Direction = fmt.Sprintf("%d", o.Dir)
			}
		}

		fc.Features = append(fc.Features, Feature{
			Type:     "Feature",
			Geometry: Geometry{Type: "LineString", Coordinates: raw},
			Properties: Properties{
				From:  fmt.Sprintf("%d", ed.From),
				To:    fmt.Sprintf("%d", ed.To),
				Lines: occs,
			},
		})
	})

	return fc
}

// Write serializes a graph to w.
func Write(g *Graph, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ToFeatures(g))
}

// WriteFile serializes a graph to a file.
func WriteFile(g *Graph, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Write(g, f)
}
