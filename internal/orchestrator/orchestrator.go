// Package orchestrator executes named steps respecting data dependencies,
// with per-step retries, timeouts, result caching, and bounded parallelism.
//
// Scheduling is a tick loop: each tick computes the "ready set" (steps whose
// required context keys are all present), partitions it by parallel group,
// and runs one group at a time. An empty ready set with steps remaining is a
// wiring bug and fails immediately as a deadlock.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"smartquery/internal/logging"
	"smartquery/internal/metrics"
)

const defaultBackoff = 100 * time.Millisecond

// ErrDeadlock marks a dependency-graph wiring error: no remaining step can
// ever become ready.
var ErrDeadlock = errors.New("orchestrator: dependency deadlock")

// StuckStep names one step that can never run and the inputs it is missing.
type StuckStep struct {
	Name    string
	Missing []string
}

// DeadlockError reports every stuck step so the wiring bug is diagnosable
// from the error alone.
type DeadlockError struct {
	Stuck []StuckStep
}

func (e *DeadlockError) Error() string {
	parts := make([]string, len(e.Stuck))
	for i, s := range e.Stuck {
		parts[i] = fmt.Sprintf("%s (missing: %s)", s.Name, strings.Join(s.Missing, ", "))
	}
	return fmt.Sprintf("orchestrator: dependency deadlock: %s", strings.Join(parts, "; "))
}

func (e *DeadlockError) Unwrap() error { return ErrDeadlock }

// Orchestrator runs step graphs. The result cache lives for the lifetime of
// the instance and is shared across runs.
type Orchestrator struct {
	maxParallel int
	log         *zap.Logger

	mu    sync.Mutex
	cache map[string]any
}

// New creates an Orchestrator with the given per-run concurrency cap.
// A cap below 1 selects the default of 5.
func New(maxParallel int) *Orchestrator {
	if maxParallel < 1 {
		maxParallel = 5
	}
	return &Orchestrator{
		maxParallel: maxParallel,
		log:         logging.Named("orchestrator"),
		cache:       make(map[string]any),
	}
}

// Run executes steps until all have completed, returning the final context.
// Any step failure after its retries exhaust aborts the whole run: downstream
// steps structurally depend on upstream outputs, so partial results would be
// fabrications.
func (o *Orchestrator) Run(ctx context.Context, steps []StepSpec, initial Context, correlationID string) (Context, error) {
	log := logging.WithCorrelation(o.log, correlationID)

	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if s.Name == "" {
			return nil, fmt.Errorf("orchestrator: step with empty name")
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("orchestrator: duplicate step name %q", s.Name)
		}
		seen[s.Name] = true
	}

	c := initial.clone()
	if c == nil {
		c = Context{}
	}

	pending := make([]StepSpec, len(steps))
	copy(pending, steps)

	for len(pending) > 0 {
		ready, blocked := o.partitionReady(pending, c)
		if len(ready) == 0 {
			stuck := make([]StuckStep, len(blocked))
			for i, s := range blocked {
				stuck[i] = StuckStep{Name: s.Name, Missing: missingKeys(s, c)}
			}
			err := &DeadlockError{Stuck: stuck}
			log.Error("dependency deadlock", zap.Error(err))
			return nil, err
		}

		// Groups run one at a time in discovery order; members of a group
		// run concurrently under the per-run cap with fail-fast semantics.
		for _, group := range groupReady(ready) {
			results := make([]any, len(group))
			eg, gctx := errgroup.WithContext(ctx)
			eg.SetLimit(o.maxParallel)
			for i, step := range group {
				eg.Go(func() error {
					res, err := o.executeStep(gctx, step, c, log)
					if err != nil {
						return err
					}
					results[i] = res
					return nil
				})
			}
			if err := eg.Wait(); err != nil {
				return nil, err
			}
			for i, step := range group {
				if step.Provides != "" {
					c[step.Provides] = results[i]
				}
			}
		}

		pending = blocked
	}

	return c, nil
}

// partitionReady splits pending steps into those whose requirements are all
// satisfied and those still blocked, preserving order.
func (o *Orchestrator) partitionReady(pending []StepSpec, c Context) (ready, blocked []StepSpec) {
	for _, s := range pending {
		if len(missingKeys(s, c)) == 0 {
			ready = append(ready, s)
		} else {
			blocked = append(blocked, s)
		}
	}
	return ready, blocked
}

func missingKeys(s StepSpec, c Context) []string {
	var missing []string
	for _, k := range s.Requires {
		if _, ok := c[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// groupReady partitions the ready set by parallel group, keeping the order in
// which groups were first discovered. Steps without a group are singletons.
func groupReady(ready []StepSpec) [][]StepSpec {
	var groups [][]StepSpec
	index := make(map[string]int)
	for _, s := range ready {
		if s.ParallelGroup == "" {
			groups = append(groups, []StepSpec{s})
			continue
		}
		if i, ok := index[s.ParallelGroup]; ok {
			groups[i] = append(groups[i], s)
		} else {
			index[s.ParallelGroup] = len(groups)
			groups = append(groups, []StepSpec{s})
		}
	}
	return groups
}

// executeStep runs one step through the cache, timeout, validation, and retry
// machinery.
func (o *Orchestrator) executeStep(ctx context.Context, step StepSpec, c Context, log *zap.Logger) (any, error) {
	key := step.CacheKey
	if key == "" {
		key = derivedCacheKey(step, c)
	}

	o.mu.Lock()
	cached, hit := o.cache[key]
	o.mu.Unlock()
	if hit {
		metrics.CacheHitsTotal.WithLabelValues(step.Name).Inc()
		log.Debug("step cache hit", zap.String("step", step.Name))
		return cached, nil
	}

	backoff := step.RetryBackoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	var result any
	err := retry.Do(
		func() error {
			res, err := o.attempt(ctx, step, c)
			if err != nil {
				return err
			}
			if step.Validate != nil && !step.Validate(res, c) {
				return fmt.Errorf("step %s: result failed validation", step.Name)
			}
			result = res
			return nil
		},
		retry.Attempts(uint(step.Retries)+1),
		retry.Delay(backoff),
		retry.MaxJitter(backoff/2),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			metrics.StepRetriesTotal.WithLabelValues(step.Name).Inc()
			log.Warn("step retry",
				zap.String("step", step.Name),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", step.Name, err)
	}

	o.mu.Lock()
	o.cache[key] = result
	o.mu.Unlock()

	return result, nil
}

// attempt runs a single invocation of the step, enforcing its wall-clock
// timeout. A call that ignores ctx is abandoned once the timeout fires; the
// underlying client is responsible for honoring cancellation to avoid leaking
// in-flight I/O.
func (o *Orchestrator) attempt(ctx context.Context, step StepSpec, c Context) (any, error) {
	actx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := step.Run(actx, c)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-actx.Done():
		return nil, fmt.Errorf("step %s: %w", step.Name, actx.Err())
	}
}

// derivedCacheKey hashes the step's declared inputs in sorted key order so
// the key is independent of Requires ordering.
func derivedCacheKey(step StepSpec, c Context) string {
	keys := make([]string, len(step.Requires))
	copy(keys, step.Requires)
	sort.Strings(keys)

	h := fnv.New64a()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v;", k, c[k])
	}
	return fmt.Sprintf("%s:%016x", step.Name, h.Sum64())
}
