package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mendcore/internal/agent"
	"mendcore/internal/auth"
	"mendcore/internal/autofix"
	"mendcore/internal/config"
	"mendcore/internal/db"
	"mendcore/internal/gitops"
	"mendcore/internal/httpserver"
	"mendcore/internal/incident"
	"mendcore/internal/logevents"
	"mendcore/internal/logging"
	"mendcore/internal/playbook"
	"mendcore/internal/rag"
	"mendcore/internal/stream"
)

func main() {
	ctx := context.Background()
	logger := logging.New()

	cfg := config.Load()

	dbConn, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer dbConn.Close()

	if err := db.RunMigrations(ctx, dbConn, "sql"); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	operatorStore := auth.NewStore(dbConn)
	if err := operatorStore.SeedFromFile(ctx, cfg.OperatorsPath); err != nil {
		log.Fatalf("seed operators: %v", err)
	}
	authSvc := auth.NewService(operatorStore, cfg.JWTSecret)

	ragClient := rag.NewClient(cfg.RAGBaseURL, cfg.RAGAPIKey)
	ragSvc := rag.NewService(ragClient,
		cfg.RAGAssistantID, cfg.RAGThreadID, cfg.RAGProvider, cfg.RAGModel, logger)

	hub := stream.NewHub(logger)

	incidentStore := incident.NewStore(dbConn)
	incidentSvc := incident.NewService(incidentStore, ragSvc, hub, logger)

	playbooks, err := playbook.Load()
	if err != nil {
		log.Fatalf("load playbooks: %v", err)
	}
	executor := agent.NewExecutor(cfg.ProjectRoot, cfg.ExecTimeout, playbooks.Allowlist())

	var fixer agent.CodeFixer
	if cfg.OpenAIAPIKey != "" && cfg.GitHubToken != "" {
		repo := gitops.New(ctx, cfg.GitHubToken, cfg.GitHubOwner, cfg.GitHubRepo, cfg.GitHubBranch)
		fixer = agent.NewFixer(cfg.OpenAIAPIKey, cfg.OpenAIModel, repo, logger)
	} else {
		logger.Warn("code-fix agent disabled; OPENAI_API_KEY or GITHUB_TOKEN missing")
	}

	eventStore := logevents.NewStore(dbConn)
	pipeline := &autofix.Pipeline{
		Incidents:   incidentSvc,
		Playbooks:   playbooks,
		Executor:    executor,
		Gate:        autofix.NewGate(cfg.DedupeWindow),
		Logger:      logger,
		AutoApprove: cfg.AutoRemediate,
	}

	handler := httpserver.NewRouter(httpserver.Deps{
		Logger:      logger,
		AuthSvc:     authSvc,
		Incidents:   incidentSvc,
		Playbooks:   playbooks,
		Fixer:       fixer,
		RAG:         ragSvc,
		EventStore:  eventStore,
		Sink:        pipeline,
		Hub:         hub,
		IngestToken: cfg.IngestToken,
		AutoApprove: cfg.AutoRemediate,
	})
	server := httpserver.New(cfg.HTTPAddr, handler, logger)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
