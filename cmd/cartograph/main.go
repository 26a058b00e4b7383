// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/poiesic/cartograph/ai"
	"github.com/poiesic/cartograph/ai/local"
	"github.com/poiesic/cartograph/ai/openai"
	"github.com/poiesic/cartograph/artifact"
	"github.com/poiesic/cartograph/graphstore"
	"github.com/poiesic/cartograph/ledger"
	"github.com/poiesic/cartograph/pipeline"
	"github.com/poiesic/cartograph/stages"
	"github.com/poiesic/cartograph/storage/badger"
	"github.com/poiesic/cartograph/vectorstore"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "cartograph",
		Usage: "Incremental pipeline from conversation archives to a graph and vector map",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the pipeline (all stages, or --steps)",
				Action: runCommand,
				Flags:  append(pipelineFlags(), runOnlyFlags()...),
			},
			{
				Name:   "plan",
				Usage:  "Report what a run would process, without processing anything",
				Action: planCommand,
				Flags:  pipelineFlags(),
			},
			{
				Name:  "ledger",
				Usage: "Inspect or clear stage ledgers",
				Subcommands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "Show a stage ledger's slot counts",
						Action: ledgerShowCommand,
						Flags:  ledgerFlags(),
					},
					{
						Name:   "clear",
						Usage:  "Clear one stage ledger (downstream ledgers are NOT cascaded; prefer run --force)",
						Action: ledgerClearCommand,
						Flags:  ledgerFlags(),
					},
				},
			},
		},
	}
}

func pipelineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "workspace",
			Aliases:  []string{"w"},
			Usage:    "Path to the pipeline workspace directory",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "input",
			Aliases: []string{"i"},
			Usage:   "Directory of conversation export archives (*.json)",
			Value:   ".",
		},
		&cli.StringFlag{
			Name:  "steps",
			Usage: "Comma-separated stage names to run (default: all)",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Clear the selected stages' ledgers and all downstream ledgers, then reprocess",
		},
		&cli.BoolFlag{
			Name:  "cloud",
			Usage: "Use the OpenAI-compatible provider for embedding, tagging and summarization (default: local heuristics)",
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
		&cli.StringFlag{
			Name:  "chat-host",
			Usage: "Chat completion host URL (defaults to embedding-host)",
		},
		&cli.StringFlag{
			Name:  "chat-model",
			Usage: "Chat model name for tagging and summarization",
			Value: "qwen2.5:3b",
		},
		&cli.IntFlag{
			Name:  "max-tags",
			Usage: "Maximum tags per message",
			Value: 5,
		},
		&cli.Float64Flag{
			Name:  "cluster-threshold",
			Usage: "Cosine similarity threshold for cluster membership",
			Value: 0.80,
		},
		&cli.IntFlag{
			Name:  "chunk-size",
			Usage: "Target chunk size in characters",
			Value: 1000,
		},
		&cli.IntFlag{
			Name:  "chunk-overlap",
			Usage: "Chunk overlap in characters",
			Value: 200,
		},
		&cli.IntFlag{
			Name:  "pool-size",
			Usage: "Worker pool size per stage",
			Value: 4,
		},
	}
}

func runOnlyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "abort-threshold",
			Usage: "Abort a stage after this many consecutive item failures (0 keeps the default)",
		},
	}
}

func ledgerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "workspace",
			Aliases:  []string{"w"},
			Usage:    "Path to the pipeline workspace directory",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "stage",
			Aliases:  []string{"s"},
			Usage:    "Stage name",
			Required: true,
		},
	}
}

// buildOrchestrator wires the workspace, provider, stores and stages. The
// returned cleanup closes everything opened along the way.
func buildOrchestrator(c *cli.Context, forLoading bool) (*pipeline.Orchestrator, *pipeline.Ledgers, func(), error) {
	ws, err := artifact.NewWorkspace(c.String("workspace"))
	if err != nil {
		return nil, nil, nil, err
	}

	backend, err := badger.OpenBackend(ws.VectorDBPath(), false)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open embedding repository: %w", err)
	}
	vectors, err := badger.NewVectorRepository(backend)
	if err != nil {
		backend.Close()
		return nil, nil, nil, err
	}

	var closers []func()
	closers = append(closers, func() { backend.Close() })

	// --chat-host falls back to the embedding host, as its usage promises.
	chatHost := c.String("chat-host")
	if chatHost == "" {
		chatHost = c.String("embedding-host")
	}

	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithChatHost(chatHost),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithChatModel(c.String("chat-model")),
		ai.WithMaxTags(c.Int("max-tags")),
		ai.WithClusterThreshold(c.Float64("cluster-threshold")),
	)
	if err := aiConfig.Validate(); err != nil {
		backend.Close()
		return nil, nil, nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	var provider ai.Provider
	method := "heuristic"
	if c.Bool("cloud") {
		provider, err = openai.NewProvider(aiConfig)
		if err != nil {
			backend.Close()
			return nil, nil, nil, fmt.Errorf("create provider: %w", err)
		}
		method = "llm"
	} else {
		provider = local.NewProvider(aiConfig)
	}
	closers = append(closers, func() { provider.Close() })

	logger := slog.Default()
	ledgers := pipeline.NewLedgers(ws, logger)

	env := &stages.Env{
		Workspace: ws,
		Ledgers:   ledgers,
		Provider:  provider,
		Vectors:   vectors,
		Runner: pipeline.RunnerConfig{
			Concurrency:    c.Int("pool-size"),
			AbortThreshold: c.Int("abort-threshold"),
			Progress:       os.Stderr,
			Logger:         logger,
		},
		EmbeddingModel: aiConfig.EmbeddingModel,
		TaggingMethod:  method,
		SummaryMethod:  method,
		ChunkSize:      c.Int("chunk-size"),
		ChunkOverlap:   c.Int("chunk-overlap"),
		Logger:         logger,
	}

	// Store credentials are consumed here and nowhere else; the pipeline
	// core stays credential-agnostic.
	if forLoading {
		graphClient, err := graphstore.NewFromEnv()
		if err != nil {
			runClosers(closers)
			return nil, nil, nil, fmt.Errorf("graph store: %w (set NEO4J_URI or restrict --steps)", err)
		}
		closers = append(closers, func() { graphClient.Close(context.Background()) })
		env.Graph = graphstore.NewWriter(graphClient)

		qdrant, err := vectorstore.NewFromEnv()
		if err != nil {
			runClosers(closers)
			return nil, nil, nil, fmt.Errorf("vector store: %w (set QDRANT_URL or restrict --steps)", err)
		}
		env.Points = qdrant
	}

	resolver := pipeline.NewResolver(ws, ledgers)
	orch, err := pipeline.NewOrchestrator(ledgers, resolver, logger, stages.BuildStages(env, c.String("input"))...)
	if err != nil {
		runClosers(closers)
		return nil, nil, nil, err
	}
	cleanup := func() { runClosers(closers) }
	return orch, ledgers, cleanup, nil
}

func runClosers(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

func requestedSteps(c *cli.Context) []string {
	raw := strings.TrimSpace(c.String("steps"))
	if raw == "" {
		return nil
	}
	var steps []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
	}
	return steps
}

// loadingSelected reports whether the loading stage is part of the request
// (it always is when no --steps restriction is given).
func loadingSelected(steps []string) bool {
	return len(steps) == 0 || slices.Contains(steps, "loading")
}

func runCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	steps := requestedSteps(c)
	orch, ledgers, cleanup, err := buildOrchestrator(c, loadingSelected(steps))
	if err != nil {
		return err
	}
	defer cleanup()

	report, runErr := orch.Execute(ctx, steps, c.Bool("force"))
	if err := ledgers.FlushAll(); err != nil {
		slog.Error("final ledger flush failed", "err", err)
	}

	for _, entry := range report.Entries {
		line := fmt.Sprintf("%-22s %s", entry.Stage, entry.State)
		if entry.Outcome != nil {
			line += fmt.Sprintf("  processed=%d skipped=%d failed=%d",
				entry.Outcome.Processed, entry.Outcome.Skipped, entry.Outcome.Failed)
		}
		if entry.Err != nil {
			line += fmt.Sprintf("  (%v)", entry.Err)
		}
		fmt.Println(line)
	}
	return runErr
}

func planCommand(c *cli.Context) error {
	steps := requestedSteps(c)
	orch, _, cleanup, err := buildOrchestrator(c, false)
	if err != nil {
		return err
	}
	defer cleanup()

	plan, err := orch.PlanRun(c.Context, steps, c.Bool("force"))
	if err != nil {
		return err
	}

	if plan.Force && len(plan.Cleared) > 0 {
		fmt.Printf("force would clear ledgers: %s\n", strings.Join(plan.Cleared, ", "))
	}
	for _, entry := range plan.Entries {
		switch {
		case entry.Blocked != nil:
			fmt.Printf("%-22s blocked: %v\n", entry.Stage, entry.Blocked)
		case entry.Pending == 0:
			fmt.Printf("%-22s up to date (%d items)\n", entry.Stage, entry.Total)
		default:
			fmt.Printf("%-22s %d of %d items pending\n", entry.Stage, entry.Pending, entry.Total)
		}
	}
	return nil
}

func ledgerShowCommand(c *cli.Context) error {
	ws, err := artifact.NewWorkspace(c.String("workspace"))
	if err != nil {
		return err
	}
	led, err := ledger.Open(c.String("stage"), ws.LedgerPath(c.String("stage")), slog.Default())
	if err != nil {
		return err
	}
	fmt.Printf("stage %s: %d done\n", led.Stage(), led.Count())
	for _, slot := range led.Slots() {
		if slot == ledger.DefaultSlot {
			continue
		}
		fmt.Printf("  slot %-20s %d\n", slot, led.SlotCount(slot))
	}
	return nil
}

func ledgerClearCommand(c *cli.Context) error {
	ws, err := artifact.NewWorkspace(c.String("workspace"))
	if err != nil {
		return err
	}
	led, err := ledger.Open(c.String("stage"), ws.LedgerPath(c.String("stage")), slog.Default())
	if err != nil {
		return err
	}
	if err := led.Clear(); err != nil {
		return err
	}
	fmt.Printf("cleared ledger for stage %s\n", c.String("stage"))
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
