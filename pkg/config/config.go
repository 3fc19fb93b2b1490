package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database        DatabaseConfig
	Redis           RedisConfig
	JWT             JWTConfig
	CORS            CORSConfig
	Log             LogConfig
	Prediction      PredictionConfig
	Training        TrainingConfig
	Notifications   NotificationsConfig
	Recommendations RecommendationsConfig
	Exports         ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PredictionConfig holds the freshness windows and risk cutoff used by the orchestrator.
type PredictionConfig struct {
	FreshnessWindow      time.Duration
	BatchFreshnessWindow time.Duration
	RecentWindow         time.Duration
	RiskThreshold        float64
	ScanTimeBudget       time.Duration
	ScanMaxTimeBudget    time.Duration
}

// TrainingConfig controls where model artifacts live and how they are fitted.
type TrainingConfig struct {
	ModelsDir        string
	SubjectMinRows   int
	GeneralMinRows   int
	RidgeLambda      float64
	Workers          int
	QueueEnabled     bool
	QueueConcurrency int
	QueueRetries     int
}

// NotificationsConfig tunes the alert rules.
type NotificationsConfig struct {
	Lookback                time.Duration
	AbsenceThreshold        int
	TeacherAttendanceWindow time.Duration
	LowAttendanceRate       float64
	CourseRiskRatio         float64
	DispatchRiskRatio       float64
	CacheTTL                time.Duration
}

// RecommendationsConfig governs cache behaviour for recommendation lists.
type RecommendationsConfig struct {
	CacheTTL time.Duration
}

// ExportsConfig controls at-risk report rendering.
type ExportsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *fs.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Prediction = PredictionConfig{
		FreshnessWindow:      parseDuration(v.GetString("PREDICTION_FRESHNESS_WINDOW"), 7*24*time.Hour),
		BatchFreshnessWindow: parseDuration(v.GetString("PREDICTION_BATCH_FRESHNESS_WINDOW"), 14*24*time.Hour),
		RecentWindow:         parseDuration(v.GetString("PREDICTION_RECENT_WINDOW"), 90*24*time.Hour),
		RiskThreshold:        v.GetFloat64("PREDICTION_RISK_THRESHOLD"),
		ScanTimeBudget:       parseDuration(v.GetString("PREDICTION_SCAN_TIME_BUDGET"), 10*time.Second),
		ScanMaxTimeBudget:    parseDuration(v.GetString("PREDICTION_SCAN_MAX_TIME_BUDGET"), time.Minute),
	}

	cfg.Training = TrainingConfig{
		ModelsDir:        v.GetString("TRAINING_MODELS_DIR"),
		SubjectMinRows:   v.GetInt("TRAINING_SUBJECT_MIN_ROWS"),
		GeneralMinRows:   v.GetInt("TRAINING_GENERAL_MIN_ROWS"),
		RidgeLambda:      v.GetFloat64("TRAINING_RIDGE_LAMBDA"),
		Workers:          v.GetInt("TRAINING_WORKERS"),
		QueueEnabled:     v.GetBool("ENABLE_TRAINING_QUEUE"),
		QueueConcurrency: v.GetInt("TRAINING_QUEUE_CONCURRENCY"),
		QueueRetries:     v.GetInt("TRAINING_QUEUE_RETRIES"),
	}

	cfg.Notifications = NotificationsConfig{
		Lookback:                parseDuration(v.GetString("NOTIFICATIONS_LOOKBACK"), 14*24*time.Hour),
		AbsenceThreshold:        v.GetInt("NOTIFICATIONS_ABSENCE_THRESHOLD"),
		TeacherAttendanceWindow: parseDuration(v.GetString("NOTIFICATIONS_TEACHER_ATTENDANCE_WINDOW"), 7*24*time.Hour),
		LowAttendanceRate:       v.GetFloat64("NOTIFICATIONS_LOW_ATTENDANCE_RATE"),
		CourseRiskRatio:         v.GetFloat64("NOTIFICATIONS_COURSE_RISK_RATIO"),
		DispatchRiskRatio:       v.GetFloat64("NOTIFICATIONS_DISPATCH_RISK_RATIO"),
		CacheTTL:                parseDuration(v.GetString("NOTIFICATIONS_CACHE_TTL"), 2*time.Minute),
	}

	cfg.Recommendations = RecommendationsConfig{
		CacheTTL: parseDuration(v.GetString("RECOMMENDATIONS_CACHE_TTL"), 30*time.Minute),
	}

	cfg.Exports = ExportsConfig{
		Enabled: v.GetBool("ENABLE_RISK_EXPORTS"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "academic_risk")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PREDICTION_FRESHNESS_WINDOW", "168h")
	v.SetDefault("PREDICTION_BATCH_FRESHNESS_WINDOW", "336h")
	v.SetDefault("PREDICTION_RECENT_WINDOW", "2160h")
	v.SetDefault("PREDICTION_RISK_THRESHOLD", 60.0)
	v.SetDefault("PREDICTION_SCAN_TIME_BUDGET", "10s")
	v.SetDefault("PREDICTION_SCAN_MAX_TIME_BUDGET", "60s")

	v.SetDefault("TRAINING_MODELS_DIR", "./models")
	v.SetDefault("TRAINING_SUBJECT_MIN_ROWS", 20)
	v.SetDefault("TRAINING_GENERAL_MIN_ROWS", 30)
	v.SetDefault("TRAINING_RIDGE_LAMBDA", 0.01)
	v.SetDefault("TRAINING_WORKERS", 4)
	v.SetDefault("ENABLE_TRAINING_QUEUE", true)
	v.SetDefault("TRAINING_QUEUE_CONCURRENCY", 1)
	v.SetDefault("TRAINING_QUEUE_RETRIES", 2)

	v.SetDefault("NOTIFICATIONS_LOOKBACK", "336h")
	v.SetDefault("NOTIFICATIONS_ABSENCE_THRESHOLD", 2)
	v.SetDefault("NOTIFICATIONS_TEACHER_ATTENDANCE_WINDOW", "168h")
	v.SetDefault("NOTIFICATIONS_LOW_ATTENDANCE_RATE", 70.0)
	v.SetDefault("NOTIFICATIONS_COURSE_RISK_RATIO", 0.30)
	v.SetDefault("NOTIFICATIONS_DISPATCH_RISK_RATIO", 0.20)
	v.SetDefault("NOTIFICATIONS_CACHE_TTL", "2m")

	v.SetDefault("RECOMMENDATIONS_CACHE_TTL", "30m")
	v.SetDefault("ENABLE_RISK_EXPORTS", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
