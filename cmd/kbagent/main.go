// kbagent server: HTTP API over the multi-agent orchestration runtime,
// with background trace and query-log writers.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kbase-labs/kbagent/pkg/agent"
	"github.com/kbase-labs/kbagent/pkg/api"
	"github.com/kbase-labs/kbagent/pkg/cleanup"
	"github.com/kbase-labs/kbagent/pkg/config"
	"github.com/kbase-labs/kbagent/pkg/dag"
	"github.com/kbase-labs/kbagent/pkg/eval"
	"github.com/kbase-labs/kbagent/pkg/executor"
	"github.com/kbase-labs/kbagent/pkg/intent"
	"github.com/kbase-labs/kbagent/pkg/llm"
	"github.com/kbase-labs/kbagent/pkg/masking"
	"github.com/kbase-labs/kbagent/pkg/orchestrator"
	"github.com/kbase-labs/kbagent/pkg/permission"
	"github.com/kbase-labs/kbagent/pkg/store"
	"github.com/kbase-labs/kbagent/pkg/tools"
	"github.com/kbase-labs/kbagent/pkg/writer"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	settings := config.LoadSettings()
	if settings.Mode == config.ModeProduction {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	slog.Info("Starting kbagent",
		"http_port", settings.HTTPPort,
		"mode", string(settings.Mode))

	ctx := context.Background()

	// Database is optional: without it the service answers requests but
	// skips trace and query-log persistence.
	var (
		dbClient    *store.Client
		traceWriter *writer.TraceWriter
		queryWriter *writer.QueryLogWriter
	)
	dbCfg, err := store.LoadConfigFromEnv()
	if err == nil {
		dbClient, err = store.NewClient(ctx, dbCfg)
	}
	if err != nil {
		slog.Warn("Database unavailable, persistence disabled", "error", err)
		dbClient = nil
	} else {
		defer dbClient.Close()
		slog.Info("Connected to PostgreSQL database")

		traceWriter = writer.NewTraceWriter(store.NewTraceStore(dbClient))
		traceWriter.Start()
		queryWriter = writer.NewQueryLogWriter(store.NewQueryLogStore(dbClient))
		queryWriter.Start()
		slog.Info("Background writers started")

		retention := cleanup.NewService(cleanup.DefaultRetentionConfig(), store.NewRetentionStore(dbClient))
		retention.Start(ctx)
		defer retention.Stop()
	}

	llmClient := llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL:     settings.LLMBaseURL,
		APIKey:      settings.LLMAPIKey,
		Model:       settings.LLMModel,
		Temperature: settings.LLMTemperature,
	})
	slog.Info("LLM client initialized", "base_url", settings.LLMBaseURL, "model", settings.LLMModel)

	toolRegistry := tools.NewRegistry()
	for _, t := range []tools.Tool{
		tools.NewVectorSearchTool(settings.VectorSearchURL),
		tools.NewGraphQueryTool(settings.GraphQueryURL),
		tools.NewIMSSearchTool(settings.IMSSearchURL),
		tools.NewDocumentReadTool(settings.DocumentReadURL),
		tools.NewWebFetchTool(),
		tools.NewShellTool(settings.ShellTimeout),
	} {
		if err := toolRegistry.Register(t); err != nil {
			slog.Error("Failed to register tool", "tool", t.Name(), "error", err)
			os.Exit(1)
		}
	}

	perms := permission.NewManager()
	permission.DefaultRules(perms)

	agents := agent.NewRegistry()
	agents.RegisterDefaults()

	runner := agent.NewExecutor(llmClient, toolRegistry, perms)
	runner.SetMasker(masking.NewDefaultMasker())
	evaluator := eval.New(llmClient)
	intents := intent.NewClassifier(llmClient)

	orchCfg := config.Default()
	orchCfg.MaxConcurrentTasks = settings.MaxConcurrentTasks

	orch := orchestrator.New(orchestrator.Deps{
		LLM:       llmClient,
		Agents:    agents,
		Runner:    runner,
		Builder:   dag.NewBuilder(llmClient),
		Executor:  executor.New(agents, runner, evaluator),
		Intents:   intents,
		Evaluator: evaluator,
		Web:       tools.NewWebFetchTool(),
		Config:    orchCfg,
		Traces:    traceWriter,
		QueryLogs: queryWriter,
	})

	server := api.NewServer(orch, agents, toolRegistry, intents, dbClient, settings.Mode)
	httpServer := &http.Server{
		Addr:              ":" + settings.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, settings.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Flush buffered writers last so in-flight requests can still submit.
	if queryWriter != nil {
		queryWriter.Stop(shutdownCtx)
	}
	if traceWriter != nil {
		traceWriter.Stop(shutdownCtx)
	}

	slog.Info("Shutdown complete")
}
