// Package config は環境変数ベースのアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Queue
	RedisAddr         string
	WorkerConcurrency int
	JobMaxRetry       int
	JobBaseRetryDelay time.Duration
	JobRetention      time.Duration

	// Storage
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool
	S3URLStyle  string
	CDNBaseURL  string

	// Catalog
	CatalogPageSize int
	CatalogTimeout  time.Duration

	// Translation
	TranslationBatchSize     int
	TranslationBatchInterval time.Duration

	// Scheduler
	ScheduleScanInterval time.Duration

	// Trigger
	RegenerateSecret string

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.RegenerateSecret = os.Getenv("REGENERATE_SECRET")
	if cfg.RegenerateSecret == "" {
		missing = append(missing, "REGENERATE_SECRET")
	}

	cfg.S3Endpoint = os.Getenv("S3_ENDPOINT")
	if cfg.S3Endpoint == "" {
		missing = append(missing, "S3_ENDPOINT")
	}

	cfg.S3Bucket = os.Getenv("S3_BUCKET")
	if cfg.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}

	cfg.S3AccessKey = os.Getenv("S3_ACCESS_KEY")
	if cfg.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}

	cfg.S3SecretKey = os.Getenv("S3_SECRET_KEY")
	if cfg.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 4)
	cfg.JobMaxRetry = getEnvInt("JOB_MAX_RETRY", 3)
	cfg.JobBaseRetryDelay = getEnvDuration("JOB_BASE_RETRY_DELAY", 30*time.Second)
	cfg.JobRetention = getEnvDuration("JOB_RETENTION", 24*time.Hour)
	cfg.S3Region = getEnvString("S3_REGION", "us-east-1")
	cfg.S3UseSSL = getEnvBool("S3_USE_SSL", true)
	cfg.S3URLStyle = getEnvString("S3_URL_STYLE", "path")
	cfg.CDNBaseURL = getEnvString("CDN_BASE_URL", "")
	cfg.CatalogPageSize = getEnvInt("CATALOG_PAGE_SIZE", 250)
	cfg.CatalogTimeout = getEnvDuration("CATALOG_TIMEOUT", 30*time.Second)
	cfg.TranslationBatchSize = getEnvInt("TRANSLATION_BATCH_SIZE", 10)
	cfg.TranslationBatchInterval = getEnvDuration("TRANSLATION_BATCH_INTERVAL", 500*time.Millisecond)
	cfg.ScheduleScanInterval = getEnvDuration("SCHEDULE_SCAN_INTERVAL", time.Minute)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
