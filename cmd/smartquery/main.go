package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"smartquery/internal/config"
	"smartquery/internal/intent"
	"smartquery/internal/llm"
	"smartquery/internal/logging"
	"smartquery/internal/pipeline"
	"smartquery/internal/planner"
	"smartquery/internal/storage"
)

var version = "dev"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "smartquery",
	Short: "smartquery - natural-language queries against the work-item store",
	Long: `smartquery converts free-form questions ("show recent high priority bugs
assigned to Alice") into safe, bounded MongoDB aggregation pipelines,
executes them, and prints normalized results.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		if err := logging.Initialize(level, cfg.Logging.JSONFormat); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		loadedConfig = cfg
		return nil
	},
}

var loadedConfig *config.Config

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Plan and execute a natural-language query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, store, err := buildPlanner(loadedConfig)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = store.Close(shutdownCtx)
		}()

		result := p.PlanAndExecute(cmd.Context(), args[0])
		return printJSON(result)
	},
}

var planCmd = &cobra.Command{
	Use:   "plan [question]",
	Short: "Parse and compile a query without executing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := llm.New(llmConfig(loadedConfig))
		if err != nil {
			return err
		}
		parser := intent.NewParser(client)
		gen := pipeline.NewGenerator()

		in, err := parser.Parse(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("could not parse query: %w", err)
		}
		pl, err := gen.Generate(in)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"intent":      in,
			"pipeline":    pipeline.ToJSONSafe(pl),
			"pipeline_js": pipeline.RenderJS(in.PrimaryEntity, pl),
		})
	},
}

var metricsAddr string

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Expose Prometheus metrics and health over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})

		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return err
		case <-stop:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the smartquery version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("smartquery %s\n", version)
	},
}

func buildPlanner(cfg *config.Config) (*planner.Planner, storage.Store, error) {
	client, err := llm.New(llmConfig(cfg))
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewMongoStore(cfg.Storage.URI, cfg.ConnectTimeout())
	p := planner.New(
		intent.NewParser(client),
		pipeline.NewGenerator(),
		store,
		planner.Options{
			Database:       cfg.Storage.Database,
			MaxParallel:    cfg.Planner.MaxParallel,
			ConnectTimeout: cfg.ConnectTimeout(),
			ParseTimeout:   cfg.ParseTimeout(),
			ExecuteTimeout: cfg.ExecuteTimeout(),
		},
	)
	return p, store, nil
}

func llmConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.LLMTimeout(),
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "smartquery.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	serveMetricsCmd.Flags().StringVar(&metricsAddr, "addr", ":9090", "listen address")

	rootCmd.AddCommand(queryCmd, planCmd, serveMetricsCmd, versionCmd)

	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
