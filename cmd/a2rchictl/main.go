// a2rchictl is a2rchi's process entrypoint: it loads configuration,
// wires the catalog, vector collection, connector, scheduler, classic
// pipelines, and façade once, then serves them over HTTP until a
// termination signal arrives.
//
// Usage:
//
//	# Start the server with defaults plus environment overrides
//	a2rchictl
//
//	# Show version information
//	a2rchictl --version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/philippgille/chromem-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/a2rchi/a2rchi/internal/a2rchi"
	"github.com/a2rchi/a2rchi/internal/catalog"
	"github.com/a2rchi/a2rchi/internal/collector"
	"github.com/a2rchi/a2rchi/internal/config"
	"github.com/a2rchi/a2rchi/internal/embeddings"
	"github.com/a2rchi/a2rchi/internal/httpapi"
	"github.com/a2rchi/a2rchi/internal/llm"
	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/persistence"
	"github.com/a2rchi/a2rchi/internal/pipeline"
	"github.com/a2rchi/a2rchi/internal/prompt"
	"github.com/a2rchi/a2rchi/internal/scheduler"
	"github.com/a2rchi/a2rchi/internal/vectorcollection"
	"github.com/a2rchi/a2rchi/internal/vstoremgr"

	"go.uber.org/zap"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "a2rchictl",
	Short:   "a2rchictl serves a2rchi's chat and grading HTTP API",
	Version: fmt.Sprintf("%s (%s)", version, gitCommit),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return run(ctx)
	},
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.NewLogger(logging.NewDefaultConfig())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "starting a2rchictl",
		zap.String("version", version),
		zap.Int("http_port", cfg.Server.Port),
		zap.String("vectorstore_provider", cfg.VectorStore.Provider))

	deps, err := wireDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("wiring dependencies: %w", err)
	}

	if cfg.Scheduler.Enabled {
		if err := deps.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer func() { _ = deps.scheduler.Stop(cfg.Server.ShutdownTimeout.Duration()) }()
	}

	srv, err := httpapi.NewServer(deps.facade, deps.conversations, logger, httpapi.Config{
		Host:            "0.0.0.0",
		Port:            cfg.Server.Port,
		GradingPipeline: "grading",
	}, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("building http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// wiredDependencies holds the process-wide state constructed exactly
// once and threaded down into the HTTP and scheduler layers.
type wiredDependencies struct {
	connector     *vstoremgr.Connector
	scheduler     *scheduler.Scheduler
	facade        *a2rchi.Facade
	conversations *a2rchi.ConversationStore
}

func wireDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*wiredDependencies, error) {
	cat, err := catalog.Load(cfg.DataPath, logger)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	// Only a deterministic test double ships an embeddings/LLM factory
	// out of the box (see internal/embeddings, internal/llm); concrete
	// providers (OpenAI, vLLM, a locally served HuggingFace model, ...)
	// are added via embeddings.Register / llm.Register. This entrypoint
	// always constructs the KindDumb embedder and does not choose a kind
	// from configuration, which keeps a2rchictl runnable standalone.
	embedder, err := embeddings.New(embeddings.KindDumb, nil)
	if err != nil {
		return nil, fmt.Errorf("constructing embedder: %w", err)
	}

	collection, err := buildCollection(cfg, embedder)
	if err != nil {
		return nil, fmt.Errorf("opening vector collection: %w", err)
	}

	connector := vstoremgr.NewConnector(collection, cat, embedder, cfg.VectorStore, logger)

	persistenceSvc, err := persistence.New(cfg.DataPath, cat, logger)
	if err != nil {
		return nil, fmt.Errorf("opening persistence: %w", err)
	}

	stagingDir := filepath.Join(cfg.DataPath, "staging")
	localFiles := collector.NewLocalFileManager(cfg.Collectors.LocalFiles.Enabled, stagingDir, "", persistenceSvc, logger)

	sched := scheduler.New(0, nil, logger)
	if err := sched.AddJob("local-files", cfg.Scheduler.CronSpec, func(ctx context.Context) error {
		if err := localFiles.CollectAllFromConfig(ctx, "local"); err != nil {
			return err
		}
		if err := persistenceSvc.FlushAll(); err != nil {
			return err
		}
		return connector.UpdateVectorstore(ctx)
	}); err != nil {
		return nil, fmt.Errorf("scheduling local-files collector: %w", err)
	}

	qa, grading, err := buildPipelines(cfg)
	if err != nil {
		return nil, fmt.Errorf("building pipelines: %w", err)
	}

	agent, err := buildAgentPipeline(cfg, cat, logger)
	if err != nil {
		return nil, fmt.Errorf("building agent pipeline: %w", err)
	}

	facade, err := a2rchi.New(connector, map[string]pipeline.Pipeline{
		"qa":      qa,
		"grading": grading,
		"agent":   agent,
	}, "qa", logger)
	if err != nil {
		return nil, fmt.Errorf("building facade: %w", err)
	}

	conversations := a2rchi.NewConversationStore(filepath.Join(cfg.DataPath, "conversations.json"))

	return &wiredDependencies{
		connector:     connector,
		scheduler:     sched,
		facade:        facade,
		conversations: conversations,
	}, nil
}

// buildCollection opens the vector collection backend named by
// cfg.VectorStore.Provider: "memory" for an in-process collection with
// no persistence (useful for local runs and tests), or "chromem" (the
// default) for a chromem-go collection persisted under
// cfg.VectorStore.Chromem.Path.
func buildCollection(cfg *config.Config, embedder embeddings.Embedder) (vectorcollection.Collection, error) {
	metric := vectorcollection.DistanceMetric(cfg.VectorStore.Chromem.DistanceMetric)
	if metric == "" {
		metric = vectorcollection.DistanceCosine
	}

	switch cfg.VectorStore.Provider {
	case "memory":
		return vectorcollection.NewMemoryCollection(metric, embedder), nil
	case "chromem", "":
		db, err := chromem.NewPersistentDB(cfg.VectorStore.Chromem.Path, cfg.VectorStore.Chromem.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem-go db at %s: %w", cfg.VectorStore.Chromem.Path, err)
		}
		name := cfg.VectorStore.CollectionName + "_with_" + cfg.Embeddings.Model
		return vectorcollection.NewChromemCollection(db, name, metric, embedder)
	default:
		return nil, fmt.Errorf("unsupported vectorstore provider %q", cfg.VectorStore.Provider)
	}
}

// buildPipelines constructs the QA and grading pipelines against a
// KindDumb model, for the same reason wireDependencies constructs
// KindDumb embeddings: only the test double ships a factory.
func buildPipelines(cfg *config.Config) (pipeline.Pipeline, pipeline.Pipeline, error) {
	model, err := llm.New(llm.KindDumb, map[string]any{"max_tokens": cfg.TokenLimit.MaxTokens})
	if err != nil {
		return nil, nil, fmt.Errorf("constructing model: %w", err)
	}

	condensePrompt, err := prompt.New("condense_question",
		"Given the conversation so far:\n{history}\n\nRephrase the latest question as a standalone question: {question}",
		nil)
	if err != nil {
		return nil, nil, err
	}
	chatPrompt, err := prompt.New("chat",
		"Use the following retrieved context to answer the question.\n\nContext:\n{retriever_output}\n\nCondensed question: {condensed_output}\n\nQuestion: {question}",
		nil)
	if err != nil {
		return nil, nil, err
	}

	formatter := prompt.NewPromptFormatter(prompt.StyleBase, false, map[string]bool{"user": true, "assistant": true})

	qa, err := pipeline.NewQAPipeline(
		model, model,
		condensePrompt, chatPrompt,
		formatter, formatter,
		cfg.TokenLimit.MaxTokens,
		pipeline.HybridRetrieverConfig{K: 4, BM25Weight: 0.5, SemanticWeight: 0.5, BM25K1: 1.2, BM25B: 0.75},
		map[string]bool{"user": true, "assistant": true},
		nil,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("building qa pipeline: %w", err)
	}

	summaryPrompt, err := prompt.New("grading_summary", "Summarise this submission:\n{submission_text}", nil)
	if err != nil {
		return nil, nil, err
	}
	analysisPrompt, err := prompt.New("grading_analysis",
		"Submission:\n{submission_text}\n\nRubric:\n{rubric_text}\n\nSummary:\n{summary}\n\nAnalyse how well the submission meets the rubric.",
		nil)
	if err != nil {
		return nil, nil, err
	}
	finalPrompt, err := prompt.New("grading_final",
		"Rubric:\n{rubric_text}\n\nSubmission:\n{submission_text}\n\nAnalysis:\n{analysis}\n\nAssign a final grade.",
		nil)
	if err != nil {
		return nil, nil, err
	}

	grading, err := pipeline.NewGradingPipeline(
		model, model,
		summaryPrompt, analysisPrompt, finalPrompt,
		formatter,
		cfg.TokenLimit.MaxTokens, 4,
		nil,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("building grading pipeline: %w", err)
	}

	return qa, grading, nil
}

// buildAgentPipeline constructs the computing-operations ReAct agent
// against the same KindDumb model buildPipelines uses, for the same
// reason.
func buildAgentPipeline(cfg *config.Config, cat *catalog.Service, logger *logging.Logger) (pipeline.Pipeline, error) {
	model, err := llm.New(llm.KindDumb, map[string]any{"max_tokens": cfg.TokenLimit.MaxTokens})
	if err != nil {
		return nil, fmt.Errorf("constructing model: %w", err)
	}

	agentPrompt, err := prompt.New("cms_comp_ops_agent",
		"Answer the question using the tools available to you.\n\n"+
			"Tools:\n{tools}\n\nUse one of [{tool_names}] for Action.\n\n"+
			"Use the format:\nThought: ...\nAction: ...\nAction Input: ...\nObservation: ...\n"+
			"(repeat Thought/Action/Action Input/Observation as needed)\nThought: I now know the final answer\nFinal Answer: ...\n\n"+
			"Question: {question}\n{agent_scratchpad}",
		nil)
	if err != nil {
		return nil, err
	}

	formatter := prompt.NewPromptFormatter(prompt.StyleBase, false, map[string]bool{"user": true, "assistant": true})

	return pipeline.NewCMSCompOpsAgent(
		model,
		agentPrompt,
		formatter,
		cat,
		pipeline.HybridRetrieverConfig{K: 4, BM25Weight: 0.5, SemanticWeight: 0.5, BM25K1: 1.2, BM25B: 0.75},
		0,
		logger,
	)
}
