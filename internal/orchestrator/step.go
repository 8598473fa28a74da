package orchestrator

import (
	"context"
	"time"
)

// Context is the shared key/value state a run threads through its steps.
// Steps read the keys they declared in Requires and the orchestrator stores
// each step's result under its Provides key.
type Context map[string]any

// StepFunc is the unit of work for one step. It receives the run context and
// the current shared state, and returns the step's result.
type StepFunc func(ctx context.Context, c Context) (any, error)

// StepSpec declaratively describes one unit of orchestrated work.
type StepSpec struct {
	// Name uniquely identifies the step within a run.
	Name string

	// Run executes the step. It must respect ctx cancellation; the
	// orchestrator abandons the call once the step timeout fires.
	Run StepFunc

	// Requires lists context keys that must be populated before the step
	// becomes eligible.
	Requires []string

	// Provides is the context key the result is stored under. Empty means
	// the result is discarded.
	Provides string

	// Timeout bounds each attempt's wall-clock time. Zero means no limit.
	Timeout time.Duration

	// Retries is the number of additional attempts after the first failure.
	Retries int

	// RetryBackoff is the base delay for exponential backoff between
	// attempts. Zero selects a small default.
	RetryBackoff time.Duration

	// CacheKey, when set, keys the orchestrator's result cache explicitly.
	// When empty the key is derived from a hash of the Requires inputs, so
	// re-running a step against identical inputs is idempotent and cheap.
	CacheKey string

	// Validate gates success: a false return is treated as a step failure
	// and goes through the retry path.
	Validate func(result any, c Context) bool

	// ParallelGroup labels steps that may run concurrently within one
	// scheduling tick. Steps without a group run as singletons.
	ParallelGroup string
}

// clone returns a shallow copy of the context map. The orchestrator mutates a
// private copy so callers keep ownership of their initial context.
func (c Context) clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
