package api

import (
	"time"

	"github.com/pvnkmrksk/magga/pkg/cache"
	"github.com/pvnkmrksk/magga/pkg/lingraph"
	"github.com/pvnkmrksk/magga/pkg/octi"
)

// DrawRequest is the body of POST /api/draw: the input line graph plus
// the embedding options.
type DrawRequest struct {
	Graph   lingraph.FeatureCollection `json:"graph" bson:"graph"`
	Options DrawOptions                `json:"options" bson:"options"`
}

// DrawOptions mirrors the CLI's embedding flags.
type DrawOptions struct {
	CellSize  float64 `json:"cell_size,omitempty" bson:"cell_size,omitempty"`
	BorderRad float64 `json:"border_rad,omitempty" bson:"border_rad,omitempty"`
	MaxGrDist float64 `json:"max_gr_dist,omitempty" bson:"max_gr_dist,omitempty"`
	EnfGeoPen float64 `json:"enf_geo_pen,omitempty" bson:"enf_geo_pen,omitempty"`
	Deg2Heur  *bool   `json:"deg2_heur,omitempty" bson:"deg2_heur,omitempty"`
	OctiGrid  bool    `json:"octi_grid,omitempty" bson:"octi_grid,omitempty"`
	Seed      int64   `json:"seed,omitempty" bson:"seed,omitempty"`
}

// keyOpts converts the request options into their cache key form.
func (o DrawOptions) keyOpts() cache.LayoutKeyOpts {
	deg2 := true
	if o.Deg2Heur != nil {
		deg2 = *o.Deg2Heur
	}
	return cache.LayoutKeyOpts{
		CellSize:  o.CellSize,
		BorderRad: o.BorderRad,
		MaxGrDist: o.MaxGrDist,
		EnfGeoPen: o.EnfGeoPen,
		Deg2Heur:  deg2,
		OctiGrid:  o.OctiGrid,
		Seed:      o.Seed,
	}
}

// DrawResponse is the body of a successful draw: the octilinear layout
// with its cost report.
type DrawResponse struct {
	ID     string                     `json:"id"`
	Graph  lingraph.FeatureCollection `json:"graph"`
	Score  octi.Score                 `json:"score"`
	Cached bool                       `json:"cached"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

// StoredLayout is the persisted form of a finished layout.
type StoredLayout struct {
	ID        string                     `json:"id" bson:"_id"`
	CreatedAt time.Time                  `json:"created_at" bson:"created_at"`
	Graph     lingraph.FeatureCollection `json:"graph" bson:"graph"`
	Score     octi.Score                 `json:"score" bson:"score"`
	Options   DrawOptions                `json:"options" bson:"options"`
}
