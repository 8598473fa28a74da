// Package planner wires the intent parser, pipeline generator, and storage
// adapter into one orchestrated plan-and-execute flow.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"smartquery/internal/intent"
	"smartquery/internal/logging"
	"smartquery/internal/metrics"
	"smartquery/internal/orchestrator"
	"smartquery/internal/pipeline"
	"smartquery/internal/storage"
)

// Result is the structured outcome of one plan-and-execute run. On failure
// only Error is populated; no partial pipeline or result is fabricated.
type Result struct {
	Success    bool                `json:"success"`
	Intent     *intent.QueryIntent `json:"intent,omitempty"`
	Pipeline   []map[string]any    `json:"pipeline,omitempty"`
	PipelineJS string              `json:"pipeline_js,omitempty"`
	Result     []bson.M            `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Options tunes one Planner instance.
type Options struct {
	Database       string
	MaxParallel    int
	ConnectTimeout time.Duration
	ParseTimeout   time.Duration
	ExecuteTimeout time.Duration
}

func (o *Options) fill() {
	if o.Database == "" {
		o.Database = "tracker"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 8 * time.Second
	}
	if o.ParseTimeout <= 0 {
		o.ParseTimeout = 15 * time.Second
	}
	if o.ExecuteTimeout <= 0 {
		o.ExecuteTimeout = 25 * time.Second
	}
}

// Planner is the composition root for the query-planning flow. Collaborators
// are injected; the planner owns no ambient globals.
type Planner struct {
	parser *intent.Parser
	gen    *pipeline.Generator
	store  storage.Store
	orch   *orchestrator.Orchestrator
	opts   Options
	log    *zap.Logger
}

// New wires a Planner from its collaborators.
func New(parser *intent.Parser, gen *pipeline.Generator, store storage.Store, opts Options) *Planner {
	opts.fill()
	return &Planner{
		parser: parser,
		gen:    gen,
		store:  store,
		orch:   orchestrator.New(opts.MaxParallel),
		opts:   opts,
		log:    logging.Named("planner"),
	}
}

// PlanAndExecute turns a natural-language query into a validated intent,
// compiles it, executes the pipeline, and returns the normalized outcome.
// The returned Result is always well-formed; failures carry a human-readable
// error, never a stack trace.
func (p *Planner) PlanAndExecute(ctx context.Context, query string) *Result {
	correlationID := uuid.NewString()
	log := logging.WithCorrelation(p.log, correlationID)
	start := time.Now()
	defer func() {
		metrics.PlanDuration.Observe(time.Since(start).Seconds())
	}()

	final, err := p.orch.Run(ctx, p.steps(), orchestrator.Context{"query": query}, correlationID)
	if err != nil {
		metrics.PlansTotal.WithLabelValues("failure").Inc()
		log.Warn("plan failed", zap.String("query", query), zap.Error(err))
		return &Result{Success: false, Error: err.Error()}
	}

	in, okIntent := final["intent"].(*intent.QueryIntent)
	pl, okPipeline := final["pipeline"].(mongo.Pipeline)
	docs, _ := final["result"].([]bson.M)
	if !okIntent || in == nil {
		metrics.PlansTotal.WithLabelValues("failure").Inc()
		return &Result{Success: false, Error: "planner: parse step provided no intent"}
	}
	if !okPipeline {
		metrics.PlansTotal.WithLabelValues("failure").Inc()
		return &Result{Success: false, Error: "planner: generate step provided no pipeline"}
	}

	metrics.PlansTotal.WithLabelValues("success").Inc()
	log.Info("plan executed",
		zap.String("entity", in.PrimaryEntity),
		zap.Int("stages", len(pl)),
		zap.Int("documents", len(docs)))

	return &Result{
		Success:    true,
		Intent:     in,
		Pipeline:   pipeline.ToJSONSafe(pl),
		PipelineJS: pipeline.RenderJS(in.PrimaryEntity, pl),
		Result:     docs,
	}
}

// steps declares the dependency graph for one run.
func (p *Planner) steps() []orchestrator.StepSpec {
	return []orchestrator.StepSpec{
		{
			Name:     "ensure_connection",
			Provides: "connected",
			Timeout:  p.opts.ConnectTimeout,
			Retries:  2,
			// Static key: a verified connection is reused for the
			// orchestrator's lifetime; Connect itself stays idempotent.
			CacheKey: "ensure_connection",
			Run: func(ctx context.Context, _ orchestrator.Context) (any, error) {
				if err := p.store.Connect(ctx); err != nil {
					return nil, err
				}
				return true, nil
			},
		},
		{
			Name:     "parse_intent",
			Requires: []string{"query"},
			Provides: "intent",
			Timeout:  p.opts.ParseTimeout,
			Retries:  1,
			Run: func(ctx context.Context, c orchestrator.Context) (any, error) {
				query, _ := c["query"].(string)
				return p.parser.Parse(ctx, query)
			},
			Validate: func(result any, _ orchestrator.Context) bool {
				in, ok := result.(*intent.QueryIntent)
				return ok && in != nil
			},
		},
		{
			Name:     "generate_pipeline",
			Requires: []string{"intent"},
			Provides: "pipeline",
			Timeout:  5 * time.Second,
			Run: func(_ context.Context, c orchestrator.Context) (any, error) {
				in, ok := c["intent"].(*intent.QueryIntent)
				if !ok {
					return nil, fmt.Errorf("planner: context carries no intent")
				}
				return p.gen.Generate(in)
			},
		},
		{
			Name:     "execute_query",
			Requires: []string{"intent", "pipeline"},
			Provides: "result",
			Timeout:  p.opts.ExecuteTimeout,
			Retries:  1,
			Run: func(ctx context.Context, c orchestrator.Context) (any, error) {
				in, _ := c["intent"].(*intent.QueryIntent)
				pl, ok := c["pipeline"].(mongo.Pipeline)
				if in == nil || !ok {
					return nil, fmt.Errorf("planner: context carries no pipeline")
				}
				return p.store.Aggregate(ctx, p.opts.Database, in.PrimaryEntity, pl)
			},
		},
	}
}
