package app

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Oerlinker/BackendAISi2/internal/repository"
	"github.com/Oerlinker/BackendAISi2/internal/service"
	"github.com/Oerlinker/BackendAISi2/pkg/config"
)

// Services groups the domain services built on top of Repos.
type Services struct {
	Metrics         *service.MetricsService
	Cache           *service.CacheService
	Tokens          *service.TokenService
	Features        *service.FeatureExtractor
	Trainer         *service.ModelTrainer
	Models          *service.ModelCache
	Predictions     *service.PredictionService
	Recommendations *service.RecommendationService
	Notifications   *service.NotificationService
	Training        *service.TrainingService
	Dispatcher      *service.AlertDispatchService
	RiskReports     *service.RiskReportService
}

func wireServices(cfg *config.Config, log *zap.Logger, repos Repos, redisClient *redis.Client) Services {
	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, log)
	}
	cache := service.NewCacheService(cacheRepo, metrics, cfg.Recommendations.CacheTTL, log.Named("cache"), cacheRepo != nil)

	tokens := service.NewTokenService(service.TokenConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})

	features := service.NewFeatureExtractor(service.FeatureExtractorParams{
		Grades:        repos.Grades,
		Attendance:    repos.Attendance,
		Participation: repos.Participation,
		RecentWindow:  cfg.Prediction.RecentWindow,
		Metrics:       metrics,
		Logger:        log.Named("features"),
	})

	trainer := service.NewModelTrainer(repos.Grades, service.ModelTrainerConfig{
		SubjectMinRows: cfg.Training.SubjectMinRows,
		GeneralMinRows: cfg.Training.GeneralMinRows,
		RidgeLambda:    cfg.Training.RidgeLambda,
	}, nil)

	modelCache := service.NewModelCache(repos.Artifacts, log.Named("models"))

	predictions := service.NewPredictionService(service.PredictionServiceParams{
		Predictions: repos.Predictions,
		Users:       repos.Users,
		Subjects:    repos.Subjects,
		Features:    features,
		Strategies: []service.PredictionStrategy{
			service.NewSubjectModelStrategy(modelCache),
			service.NewGeneralModelStrategy(modelCache),
			service.NewOnTheFlyStrategy(trainer),
			service.NewHeuristicStrategy(),
		},
		Metrics: metrics,
		Logger:  log.Named("predictions"),
		Config: service.PredictionServiceConfig{
			FreshnessWindow:      cfg.Prediction.FreshnessWindow,
			BatchFreshnessWindow: cfg.Prediction.BatchFreshnessWindow,
			RiskThreshold:        cfg.Prediction.RiskThreshold,
			DefaultScanBudget:    cfg.Prediction.ScanTimeBudget,
			MaxScanBudget:        cfg.Prediction.ScanMaxTimeBudget,
		},
	})

	recommendations := service.NewRecommendationService(service.RecommendationServiceParams{
		Predictions: predictions,
		Features:    features,
		Cache:       cache,
		CacheTTL:    cfg.Recommendations.CacheTTL,
		Logger:      log.Named("recommendations"),
	})

	notifications := service.NewNotificationService(service.NotificationServiceParams{
		Predictions:   repos.Predictions,
		Attendance:    repos.Attendance,
		Subjects:      repos.Subjects,
		Notifications: repos.Notifications,
		Cache:         cache,
		Metrics:       metrics,
		Logger:        log.Named("notifications"),
		Config: service.NotificationServiceConfig{
			Lookback:                cfg.Notifications.Lookback,
			AbsenceThreshold:        cfg.Notifications.AbsenceThreshold,
			TeacherAttendanceWindow: cfg.Notifications.TeacherAttendanceWindow,
			LowAttendanceRate:       cfg.Notifications.LowAttendanceRate,
			CourseRiskRatio:         cfg.Notifications.CourseRiskRatio,
			CacheTTL:                cfg.Notifications.CacheTTL,
		},
	})

	training := service.NewTrainingService(service.TrainingServiceParams{
		Fitter:    trainer,
		Artifacts: repos.Artifacts,
		Runs:      repos.TrainingRuns,
		Counts:    repos.Grades,
		Subjects:  repos.Subjects,
		Cache:     modelCache,
		Metrics:   metrics,
		Logger:    log.Named("training"),
		Workers:   cfg.Training.Workers,
	})

	dispatcher := service.NewAlertDispatchService(service.AlertDispatchParams{
		Forecaster: predictions,
		Users:      repos.Users,
		Subjects:   repos.Subjects,
		Absences:   repos.Attendance,
		Levels:     repos.Predictions,
		Publisher:  notifications,
		Cache:      cache,
		Logger:     log.Named("dispatcher"),
		Config: service.AlertDispatchConfig{
			FreshnessWindow:  cfg.Prediction.FreshnessWindow,
			Lookback:         cfg.Notifications.Lookback,
			AbsenceThreshold: cfg.Notifications.AbsenceThreshold,
			RiskRatio:        cfg.Notifications.DispatchRiskRatio,
			TimeBudget:       cfg.Prediction.ScanMaxTimeBudget,
		},
	})

	var reports *service.RiskReportService
	if cfg.Exports.Enabled {
		reports = service.NewRiskReportService(predictions, log.Named("exports"))
	}

	return Services{
		Metrics:         metrics,
		Cache:           cache,
		Tokens:          tokens,
		Features:        features,
		Trainer:         trainer,
		Models:          modelCache,
		Predictions:     predictions,
		Recommendations: recommendations,
		Notifications:   notifications,
		Training:        training,
		Dispatcher:      dispatcher,
		RiskReports:     reports,
	}
}
