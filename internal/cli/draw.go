package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pvnkmrksk/magga/pkg/basegraph"
	"github.com/pvnkmrksk/magga/pkg/cache"
	"github.com/pvnkmrksk/magga/pkg/lingraph"
	"github.com/pvnkmrksk/magga/pkg/octi"
)

// drawFlags carries the embedding flags shared by draw and ilp.
type drawFlags struct {
	output     string
	cellSize   float64
	borderRad  float64
	maxGrDist  float64
	enfGeoPen  float64
	octiGrid   bool
	noDeg2     bool
	restrLoc   bool
	seed       int64
	obstacles  string
	debugGrid  string
	debugDot   string
	noCache    bool
}

func (f *drawFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().Float64Var(&f.cellSize, "grid-size", 0, "grid cell size in input units")
	cmd.Flags().Float64Var(&f.borderRad, "border-rad", 0, "grid border radius, in cells")
	cmd.Flags().Float64Var(&f.maxGrDist, "max-grid-dist", 0, "maximum station displacement, in cells")
	cmd.Flags().Float64Var(&f.enfGeoPen, "geo-pen", 0, "geographic course fidelity weight")
	cmd.Flags().BoolVar(&f.octiGrid, "octi-grid", false, "use the octilinear base graph variant")
	cmd.Flags().BoolVar(&f.noDeg2, "no-deg2-heur", false, "disable degree-2 chain contraction")
	cmd.Flags().BoolVar(&f.restrLoc, "restr-loc-search", false, "restrict local search to the displacement radius")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "random seed for reproducible runs")
	cmd.Flags().StringVar(&f.obstacles, "obstacles", "", "GeoJSON polygon obstacle file")
	cmd.Flags().StringVar(&f.debugGrid, "debug-grid", "", "write the settled grid as geo-graph JSON")
	cmd.Flags().StringVar(&f.debugDot, "debug-dot", "", "render the contracted graph as SVG via graphviz")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable the layout cache")
}

// options merges flags over the config file.
func (f *drawFlags) options(cfg Config) octi.Options {
	opts := octi.Options{
		Pens:           cfg.Penalties,
		CellSize:       cfg.Grid.CellSize,
		BorderRad:      cfg.Grid.BorderRad,
		MaxGrDist:      cfg.Grid.MaxGrDist,
		Deg2Heur:       true,
		RestrLocSearch: f.restrLoc,
		EnfGeoPen:      f.enfGeoPen,
	}
	if cfg.Grid.Deg2Heur != nil {
		opts.Deg2Heur = *cfg.Grid.Deg2Heur
	}
	if f.noDeg2 {
		opts.Deg2Heur = false
	}
	if f.cellSize > 0 {
		opts.CellSize = f.cellSize
	}
	if f.borderRad > 0 {
		opts.BorderRad = f.borderRad
	}
	if f.maxGrDist > 0 {
		opts.MaxGrDist = f.maxGrDist
	}
	return opts
}

func (f *drawFlags) keyOpts(opts octi.Options) cache.LayoutKeyOpts {
	return cache.LayoutKeyOpts{
		CellSize:  opts.CellSize,
		BorderRad: opts.BorderRad,
		MaxGrDist: opts.MaxGrDist,
		EnfGeoPen: opts.EnfGeoPen,
		Deg2Heur:  opts.Deg2Heur,
		OctiGrid:  f.octiGrid,
		Seed:      f.seed,
	}
}

// cachedLayout is the cache entry of a finished embedding.
type cachedLayout struct {
	Graph lingraph.FeatureCollection `json:"graph"`
	Score octi.Score                 `json:"score"`
}

// newDrawCmd creates the draw command.
func newDrawCmd(configPath *string) *cobra.Command {
	var flags drawFlags

	cmd := &cobra.Command{
		Use:   "draw [graph.json]",
		Short: "Compute an octilinear layout with the routing heuristic",
		Long: `Compute an octilinear layout with the routing heuristic.

The input is a line graph in geo-graph JSON (read from the given file, or
stdin when omitted): stations as Point features, edges as LineString
features carrying the ordered line bundle. The output is the same format
with grid-aligned geometry.

Results are cached locally keyed by the input and the embedding options.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := ""
			if len(args) > 0 {
				input = args[0]
			}
			return runDraw(cmd.Context(), input, flags, *configPath)
		},
	}

	flags.register(cmd)
	return cmd
}

func runDraw(ctx context.Context, input string, flags drawFlags, configPath string) error {
	logger := loggerFromContext(ctx)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	opts := flags.options(cfg)

	raw, g, err := readGraph(input)
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}

	if flags.obstacles != "" {
		obst, err := readObstacles(flags.obstacles)
		if err != nil {
			return fmt.Errorf("load obstacles: %w", err)
		}
		opts.Obstacles = obst
	}

	// cached layouts skip the solver entirely
	var layoutCache cache.Cache = cache.NewNullCache()
	if !flags.noCache && flags.obstacles == "" {
		if dir, err := cacheDir(cfg); err == nil {
			if fc, err := cache.NewFileCache(dir); err == nil {
				layoutCache = fc
			}
		}
	}
	defer layoutCache.Close()

	key := cache.NewDefaultKeyer().LayoutKey(cache.Hash(raw), flags.keyOpts(opts))
	if data, hit, err := layoutCache.Get(ctx, key); err == nil && hit {
		var cached cachedLayout
		if json.Unmarshal(data, &cached) == nil {
			logger.Debug("layout cache hit")
			printSuccess("Layout complete %s", StyleDim.Render("(cached)"))
			printScore(cached.Score)
			return writeFeatures(cached.Graph, flags.output)
		}
	}

	oc := &octi.Octilinearizer{Seed: flags.seed, Logger: logger}
	if flags.octiGrid {
		oc.Kind = octi.OctiGrid
	}

	p := newProgress(logger)
	spinner := newSpinnerWithContext(ctx, "Embedding onto the grid...")
	spinner.Start()

	res, err := oc.Draw(g, opts)
	if err != nil {
		spinner.StopWithError("Embedding failed")
		return err
	}
	spinner.Stop()
	p.done(fmt.Sprintf("Embedded %d nodes, %d edges", res.Graph.NumNodes(), res.Graph.NumEdges()))

	if flags.debugGrid != "" {
		if err := writeDebugGrid(res.Grid, flags.debugGrid); err != nil {
			return fmt.Errorf("write debug grid: %w", err)
		}
		printFile(flags.debugGrid)
	}
	if flags.debugDot != "" {
		if err := renderDot(ctx, g, flags.debugDot); err != nil {
			return fmt.Errorf("render debug dot: %w", err)
		}
		printFile(flags.debugDot)
	}

	out := lingraph.ToFeatures(res.Graph)
	if data, err := json.Marshal(cachedLayout{Graph: out, Score: res.Score}); err == nil {
		_ = layoutCache.Set(ctx, key, data, 7*24*time.Hour)
	}

	printSuccess("Layout complete")
	printScore(res.Score)
	return writeFeatures(out, flags.output)
}

// readGraph loads a line graph from a file or stdin, returning the raw
// bytes for cache keying.
func readGraph(path string) ([]byte, *lingraph.Graph, error) {
	var raw []byte
	var err error
	if path == "" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, nil, err
	}
	g, err := lingraph.Read(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, err
	}
	return raw, g, nil
}

// writeFeatures writes a serialized graph to the output file or stdout.
func writeFeatures(fc lingraph.FeatureCollection, output string) error {
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fc); err != nil {
		return err
	}
	if output != "" {
		printFile(output)
	}
	return nil
}

func writeDebugGrid(gg basegraph.BaseGraph, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return basegraph.WriteJSON(gg, f, false)
}
