package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/config"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/events"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/grading"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/judge"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/queue"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/repositories/casdoor"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/selector"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/services"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/validator"
	"github.com/SAP-F-2025/quiz-attempt-service/internal/worker"
	"github.com/SAP-F-2025/quiz-attempt-service/pkg"
)

// app holds the wired process dependencies shared by the commands
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	repo     repositories.Repository
	jobs     queue.JobQueue
	services services.ServiceManager
}

func bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, quiz and user caches disabled", "error", err)
			redisClient = nil
		}
	}

	repoManager := postgres.NewRepositoryManager(postgres.RepositoryConfig{
		DB:           db,
		RedisClient:  redisClient,
		QuizCacheTTL: cfg.QuizCacheTTL,
		CasdoorConfig: casdoor.CasdoorConfig{
			Endpoint:         cfg.Casdoor.Endpoint,
			ClientID:         cfg.Casdoor.ClientID,
			ClientSecret:     cfg.Casdoor.ClientSecret,
			Certificate:      cfg.Casdoor.Cert,
			OrganizationName: cfg.Casdoor.Organization,
			ApplicationName:  cfg.Casdoor.Application,
		},
	})
	if err := repoManager.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}
	repo := repoManager.GetRepository()

	jobs, err := newJobQueue(cfg, redisClient, logger)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		_ = jobs.Close()
		_ = repo.Close()
		return nil, err
	}

	var runner *grading.CodingRunner
	if cfg.Judge.BaseURL != "" {
		client := judge.NewClient(judge.Config{
			BaseURL:           cfg.Judge.BaseURL,
			APIKey:            cfg.Judge.APIKey,
			APIHost:           cfg.Judge.APIHost,
			Timeout:           cfg.Judge.Timeout,
			CPUTimeLimit:      cfg.Judge.CPUTimeLimit,
			MemoryLimitKB:     cfg.Judge.MemoryLimitKB,
			RejectedStatusIDs: cfg.Judge.RejectedStatusIDs,
			Languages:         cfg.Judge.Languages,
		}, logger.With("component", "judge"))
		runner = grading.NewCodingRunner(client, cfg.Worker.CaseConcurrency, logger.With("component", "coding_runner"))
	}

	serviceManager := services.NewServiceManager(services.Dependencies{
		Repo:       repo,
		Logger:     logger,
		Validator:  validator.New(),
		Selector:   selector.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
		Dispatcher: jobs,
		Publisher:  publisher,
		Runner:     runner,
	})
	if err := serviceManager.Initialize(ctx); err != nil {
		_ = jobs.Close()
		_ = publisher.Close()
		_ = repo.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		jobs:     jobs,
		services: serviceManager,
	}, nil
}

func newJobQueue(cfg *config.Config, redisClient *redis.Client, logger *slog.Logger) (queue.JobQueue, error) {
	logger = logger.With("component", "judge_queue")
	switch cfg.JudgeQueue {
	case "redis":
		if redisClient == nil {
			return nil, errors.New("JUDGE_QUEUE=redis requires a reachable REDIS_URL")
		}
		return queue.NewRedisQueue(redisClient, logger), nil
	default:
		if !cfg.EmbeddedWorker {
			logger.Warn("Local judge queue without embedded worker, coding answers will stay pending")
		}
		return queue.NewLocalQueue(logger)
	}
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (events.EventPublisher, error) {
	logger = logger.With("component", "events")
	if len(cfg.KafkaBrokers) == 0 {
		return events.NewInMemoryEventPublisher(logger), nil
	}
	publisher, err := events.NewKafkaEventPublisher(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}
	return publisher, nil
}

func (a *app) judgeWorker() *worker.JudgeWorker {
	return worker.NewJudgeWorker(a.jobs, a.services.Grading(), a.cfg.Worker.Concurrency, a.logger.With("component", "judge_worker"))
}

func (a *app) sweeper(interval time.Duration) *worker.Sweeper {
	return worker.NewSweeper(a.services.Attempt(), interval, a.cfg.Worker.SweepBatchSize, a.logger.With("component", "sweeper"))
}

// close is called once the worker and server have stopped
func (a *app) close(ctx context.Context) {
	if err := a.jobs.Close(); err != nil {
		a.logger.Error("Failed to close judge queue", "error", err)
	}
	if err := a.services.Shutdown(ctx); err != nil {
		a.logger.Error("Failed to shutdown services", "error", err)
	}
}
