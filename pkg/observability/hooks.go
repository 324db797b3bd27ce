// Package observability provides hooks for instrumenting the layout
// engine without hard dependencies on an observability backend.
//
// The package uses a simple hooks pattern: hook interfaces with no-op
// defaults, replaceable at startup. Registration happens in main, never in
// library packages, which keeps the engine free of backend imports and
// avoids import cycles.
//
//	func main() {
//	    observability.SetSolverHooks(&myHooks{})
//	    // ... run application
//	}
package observability

import (
	"context"
	"sync"
	"time"
)

// SolverHooks receives events from the embedding heuristic and the ILP
// optimizer.
type SolverHooks interface {
	OnDrawStart(combNodes, combEdges int)
	OnTry(try int, ok bool, score float64)
	OnLocalSearchIter(iter int, prev, next float64)
	OnDrawComplete(score float64, duration time.Duration, err error)

	OnIlpStart(cols, rows int)
	OnIlpComplete(status string, score float64, duration time.Duration)
}

// CacheHooks receives events from layout cache operations.
type CacheHooks interface {
	OnCacheHit(ctx context.Context, key string)
	OnCacheMiss(ctx context.Context, key string)
	OnCacheError(ctx context.Context, key string, err error)
}

type noopSolver struct{}

func (noopSolver) OnDrawStart(int, int)                         {}
func (noopSolver) OnTry(int, bool, float64)                     {}
func (noopSolver) OnLocalSearchIter(int, float64, float64)      {}
func (noopSolver) OnDrawComplete(float64, time.Duration, error) {}
func (noopSolver) OnIlpStart(int, int)                          {}
func (noopSolver) OnIlpComplete(string, float64, time.Duration) {}

type noopCache struct{}

func (noopCache) OnCacheHit(context.Context, string)          {}
func (noopCache) OnCacheMiss(context.Context, string)         {}
func (noopCache) OnCacheError(context.Context, string, error) {}

var (
	mu          sync.RWMutex
	solverHooks SolverHooks = noopSolver{}
	cacheHooks  CacheHooks  = noopCache{}
)

// SetSolverHooks registers solver instrumentation. Pass nil to restore the
// no-op default.
func SetSolverHooks(h SolverHooks) {
	mu.Lock()
	defer mu.Unlock()
	if h == nil {
		solverHooks = noopSolver{}
		return
	}
	solverHooks = h
}

// SetCacheHooks registers cache instrumentation. Pass nil to restore the
// no-op default.
func SetCacheHooks(h CacheHooks) {
	mu.Lock()
	defer mu.Unlock()
	if h == nil {
		cacheHooks = noopCache{}
		return
	}
	cacheHooks = h
}

// Solver returns the registered solver hooks.
func Solver() SolverHooks {
	mu.RLock()
	defer mu.RUnlock()
	return solverHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	mu.RLock()
	defer mu.RUnlock()
	return cacheHooks
}
