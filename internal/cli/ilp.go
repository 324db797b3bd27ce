package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pvnkmrksk/magga/pkg/ilp"
	"github.com/pvnkmrksk/magga/pkg/lingraph"
	"github.com/pvnkmrksk/magga/pkg/octi"
	"github.com/pvnkmrksk/magga/pkg/optim"
)

// newILPCmd creates the ilp command.
func newILPCmd(configPath *string) *cobra.Command {
	var (
		flags    drawFlags
		backend  string
		timeLim  int
		noSolve  bool
		lpPath   string
	)

	cmd := &cobra.Command{
		Use:   "ilp [graph.json]",
		Short: "Compute a layout by integer programming",
		Long: `Compute a layout by integer programming over the same grid the
heuristic routes on. The heuristic presolves the program to a feasible
incumbent; the solver then improves on it within the time limit.

Requires a MIP solver backend (glpsol on PATH for the default backend).
Use --no-solve with --write-lp to inspect the program without solving.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := ""
			if len(args) > 0 {
				input = args[0]
			}
			return runILP(cmd.Context(), input, flags, *configPath, ilpParams{
				backend: backend, timeLim: timeLim, noSolve: noSolve, lpPath: lpPath,
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&backend, "solver", "glpk", "MIP solver backend")
	cmd.Flags().IntVar(&timeLim, "time-limit", 0, "solve time limit in seconds (0 = none)")
	cmd.Flags().BoolVar(&noSolve, "no-solve", false, "formulate only, do not solve")
	cmd.Flags().StringVar(&lpPath, "write-lp", "", "write the program in CPLEX LP format")
	return cmd
}

type ilpParams struct {
	backend string
	timeLim int
	noSolve bool
	lpPath  string
}

func runILP(ctx context.Context, input string, flags drawFlags, configPath string, params ilpParams) error {
	logger := loggerFromContext(ctx)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	opts := flags.options(cfg)

	_, g, err := readGraph(input)
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

	oc := &octi.Octilinearizer{Seed: flags.seed, Logger: logger}
	if flags.octiGrid {
		oc.Kind = octi.OctiGrid
	}

	p := newProgress(logger)
	res, err := ilp.Draw(g, opts, ilp.Config{
		Backend: params.backend,
		TimeLim: params.timeLim,
		NoSolve: params.noSolve,
		Path:    params.lpPath,
		Logger:  logger,
	}, oc)
	if err != nil {
		return err
	}
	p.done("ILP optimization finished")

	if params.noSolve {
		printSuccess("Program written")
		if params.lpPath != "" {
			printFile(params.lpPath)
		}
		return nil
	}

	switch res.Status {
	case optim.Optimal:
		printSuccess("Optimal layout found")
	case optim.NonOptimal:
		printInfo("Returning best incumbent %s", StyleDim.Render("(non-optimal)"))
	case optim.Infeasible:
		printError("Program infeasible, keeping heuristic layout")
	}
	printScore(res.Score)

	return writeFeatures(lingraph.ToFeatures(res.Graph), flags.output)
}
