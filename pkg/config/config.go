package config

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Lock backends understood by BulletinsConfig.LockBackend.
const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// Mail drivers understood by MailConfig.Driver.
const (
	MailDriverLog      = "log"
	MailDriverSendgrid = "sendgrid"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Bulletins BulletinsConfig
	Mail      MailConfig
	Exports   ExportsConfig
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

// BulletinsConfig tunes report card generation and ranking.
type BulletinsConfig struct {
	LockBackend         string
	LockTTL             time.Duration
	LockWait            time.Duration
	RankingCacheEnabled bool
	RankingCacheTTL     time.Duration
	// DefaultCoefficients maps a lower-cased subject name to the weight shown
	// when the subject has no coefficient of its own.
	DefaultCoefficients map[string]float64
	FallbackCoefficient float64
}

// MailConfig selects the outbound mail driver for publication notices.
type MailConfig struct {
	Driver         string
	SendgridAPIKey string
	FromName       string
	FromAddress    string
	FrontendURL    string
}

// ExportsConfig configures asynchronous bulletin PDF rendering.
type ExportsConfig struct {
	SchoolName        string
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

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

	fallback := v.GetFloat64("BULLETIN_FALLBACK_COEFFICIENT")
	if fallback <= 0 {
		fallback = 2
	}
	cfg.Bulletins = BulletinsConfig{
		LockBackend:         strings.ToLower(v.GetString("BULLETIN_LOCK_BACKEND")),
		LockTTL:             parseDuration(v.GetString("BULLETIN_LOCK_TTL"), 30*time.Second),
		LockWait:            parseDuration(v.GetString("BULLETIN_LOCK_WAIT"), 10*time.Second),
		RankingCacheEnabled: v.GetBool("BULLETIN_RANKING_CACHE"),
		RankingCacheTTL:     parseDuration(v.GetString("BULLETIN_RANKING_CACHE_TTL"), 10*time.Minute),
		DefaultCoefficients: parseCoefficients(v.GetString("BULLETIN_DEFAULT_COEFFICIENTS")),
		FallbackCoefficient: fallback,
	}

	cfg.Mail = MailConfig{
		Driver:         strings.ToLower(v.GetString("MAIL_DRIVER")),
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromName:       v.GetString("MAIL_FROM_NAME"),
		FromAddress:    v.GetString("MAIL_FROM_ADDRESS"),
		FrontendURL:    strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
	}

	cfg.Exports = ExportsConfig{
		SchoolName:        v.GetString("SCHOOL_NAME"),
		StorageDir:        v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("EXPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("EXPORTS_WORKER_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_bulletins")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "bulletin-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BULLETIN_LOCK_BACKEND", LockBackendLocal)
	v.SetDefault("BULLETIN_LOCK_TTL", "30s")
	v.SetDefault("BULLETIN_LOCK_WAIT", "10s")
	v.SetDefault("BULLETIN_RANKING_CACHE", true)
	v.SetDefault("BULLETIN_RANKING_CACHE_TTL", "10m")
	v.SetDefault("BULLETIN_DEFAULT_COEFFICIENTS", "mathématiques=4,maths=4,français=4,anglais=3,sciences=3,physique=3,chimie=3,histoire-géographie=2,histoire=2,géographie=2,eps=1,sport=1,arts=1,musique=1,dessin=1")
	v.SetDefault("BULLETIN_FALLBACK_COEFFICIENT", 2)

	v.SetDefault("MAIL_DRIVER", MailDriverLog)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_NAME", "Vie scolaire")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@school.local")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")

	v.SetDefault("SCHOOL_NAME", "")
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("EXPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("EXPORTS_WORKER_RETRIES", 3)
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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

// parseCoefficients reads "name=weight" pairs. Malformed pairs are skipped.
func parseCoefficients(raw string) map[string]float64 {
	result := make(map[string]float64)
	for _, pair := range splitAndTrim(raw) {
		name, weight, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(weight), 64)
		if err != nil || value <= 0 {
			continue
		}
		result[strings.ToLower(strings.TrimSpace(name))] = value
	}
	return result
}
