package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Oerlinker/BackendAISi2/internal/handler"
	"github.com/Oerlinker/BackendAISi2/internal/service"
	"github.com/Oerlinker/BackendAISi2/pkg/cache"
	"github.com/Oerlinker/BackendAISi2/pkg/config"
	"github.com/Oerlinker/BackendAISi2/pkg/database"
	"github.com/Oerlinker/BackendAISi2/pkg/jobs"
	"github.com/Oerlinker/BackendAISi2/pkg/logger"
	"github.com/Oerlinker/BackendAISi2/pkg/storage"
)

// App owns the process-wide resources of one binary.
type App struct {
	Cfg        *config.Config
	Log        *zap.Logger
	DB         *sqlx.DB
	Redis      *redis.Client
	Repos      Repos
	Services   Services
	ModelAdmin *service.ModelAdminService
	Queue      *jobs.Queue

	router *gin.Engine
	cancel context.CancelFunc
}

// New loads configuration and wires every dependency. component tags the
// logger and decides whether the HTTP router is built.
func New(ctx context.Context, component string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg, component)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, running without response cache", zap.Error(err))
		redisClient = nil
	}

	artifacts, err := storage.NewLocalStorage(cfg.Training.ModelsDir)
	if err != nil {
		_ = db.Close()
		_ = log.Sync()
		return nil, fmt.Errorf("init model storage: %w", err)
	}

	repos := wireRepos(db, artifacts)
	svcs := wireServices(cfg, log, repos, redisClient)

	a := &App{
		Cfg:      cfg,
		Log:      log,
		DB:       db,
		Redis:    redisClient,
		Repos:    repos,
		Services: svcs,
	}

	if cfg.Training.QueueEnabled {
		worker := service.NewTrainingWorker(svcs.Training, log.Named("training-worker"))
		a.Queue = jobs.NewQueue("model-training", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Training.QueueConcurrency,
			MaxRetries: cfg.Training.QueueRetries,
			RetryDelay: 5 * time.Second,
			Logger:     log,
		})
	}
	a.ModelAdmin = newModelAdmin(a)

	return a, nil
}

func newModelAdmin(a *App) *service.ModelAdminService {
	if a.Queue == nil {
		return service.NewModelAdminService(nil, a.Services.Training, a.Services.Models, a.Repos.TrainingRuns, a.Repos.Artifacts, a.Log.Named("model-admin"))
	}
	return service.NewModelAdminService(a.Queue, a.Services.Training, a.Services.Models, a.Repos.TrainingRuns, a.Repos.Artifacts, a.Log.Named("model-admin"))
}

// Router lazily builds the HTTP surface.
func (a *App) Router() *gin.Engine {
	if a.router == nil {
		health := handler.NewMetricsHandler(a.Services.Metrics, a.DB)
		a.router = wireRouter(a.Cfg, a.Log, a.Services, a.ModelAdmin, health)
	}
	return a.router
}

// Start launches background workers.
func (a *App) Start(ctx context.Context) {
	if a.cancel != nil {
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)
	if a.Queue != nil {
		a.Queue.Start(ctx)
	}
}

// Close stops workers and releases connections.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Queue != nil {
		a.Queue.Stop()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	_ = a.Log.Sync()
}
