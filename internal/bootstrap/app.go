package bootstrap

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"prreview-backend/internal/analyzer"
	openai "prreview-backend/internal/analyzer/openai"
	"prreview-backend/internal/cache"
	"prreview-backend/internal/githubpr"
	"prreview-backend/internal/kvstore"
	"prreview-backend/internal/queue"
	"prreview-backend/internal/shared/config"
	"prreview-backend/internal/shared/server"
	"prreview-backend/internal/tasks"
	"prreview-backend/internal/worker"
)

// App holds shared dependencies.
type App struct {
	Config      config.Config
	Router      *gin.Engine
	KV          kvstore.Store
	Cache       *cache.Manager
	TaskStore   *tasks.Store
	Queue       queue.Client
	Analyzer    analyzer.Client
	Runner      *worker.Runner
	Pool        *worker.Pool
	TaskHandler *tasks.Handler
}

// Build prepares shared dependencies and wires the router. With the memory
// queue backend the worker pool runs in-process; with SQS, cmd/worker
// consumes the queue instead and Pool is nil.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	kv, err := buildKV(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cacheMgr := cache.NewManager(kv)
	taskStore := tasks.NewStore(kv, cacheMgr)
	analyzerClient := buildAnalyzer(cfg)

	// Requests without a token fall back to the server-wide one (if any).
	sources := func(token string) githubpr.Source {
		if token == "" {
			token = cfg.GitHubToken
		}
		return githubpr.NewClient(token)
	}

	app := &App{
		Config:    cfg,
		KV:        kv,
		Cache:     cacheMgr,
		TaskStore: taskStore,
		Analyzer:  analyzerClient,
		Runner:    worker.NewRunner(taskStore, cacheMgr, analyzerClient, sources),
	}

	switch cfg.QueueBackend {
	case "sqs":
		sqsClient, err := queue.NewSQSClient(ctx, cfg.SQSQueueURL, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("build sqs queue: %w", err)
		}
		app.Queue = sqsClient
	default:
		memClient := queue.NewMemoryClient(cfg.QueueBuffer)
		app.Queue = memClient
		app.Pool = worker.NewPool(app.Runner, memClient, cfg.WorkerConcurrency)
	}

	app.TaskHandler = tasks.NewHandler(taskStore, app.Queue)
	if cfg.StuckTaskMaxAgeHours > 0 {
		app.TaskHandler.StuckMaxAgeHours = cfg.StuckTaskMaxAgeHours
	}
	app.Router = server.NewRouter(cfg, app.TaskHandler)
	return app, nil
}

func buildKV(ctx context.Context, cfg config.Config) (kvstore.Store, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: REDIS_URL empty; using in-memory store")
			return kvstore.NewMemoryStore(), nil
		}
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	store, err := kvstore.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: redis connect failed; using in-memory store: %v", err)
			return kvstore.NewMemoryStore(), nil
		}
		return nil, err
	}
	return store, nil
}

func buildAnalyzer(cfg config.Config) analyzer.Client {
	if cfg.LLMProvider == "openai" && cfg.OpenAIAPIKey != "" && cfg.LLMModel != "" {
		client, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel)
		if err == nil {
			return client
		}
		log.Printf("bootstrap: openai client unavailable: %v", err)
	}
	log.Printf("bootstrap: LLM not configured; analyses will fail until OPENAI_API_KEY and LLM_MODEL are set")
	return analyzer.PlaceholderClient{}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
