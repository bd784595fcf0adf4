package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort string
	ServerEnv  string
	ServerHost string

	// Database
	DatabaseURL string

	// Redis (cache store) - 없으면 캐시/트렌딩/히스토리 기능이 비활성화됨
	RedisURL string

	// Elasticsearch (primary index)
	ElasticsearchURL   string
	ElasticsearchIndex string

	// Internal API
	InternalAPIKey string

	// SigNoz
	SigNozEndpoint string

	// Search tuning
	Search SearchConfig
}

// SearchConfig holds the tunable knobs of the search/suggestion engine.
// 전부 환경변수로 재배포 없이 조정 가능
type SearchConfig struct {
	// Cache TTLs per strategy
	TTLConservative time.Duration
	TTLBalanced     time.Duration
	TTLAggressive   time.Duration

	// Fuzzy fallback similarity floor (pg_trgm)
	SimilarityFloor float64

	// Suggestion source weights
	WeightHistory    float64
	WeightTrending   float64
	WeightPopular    float64
	WeightCompletion float64

	// Backend timeouts
	IndexTimeout  time.Duration
	CacheTimeout  time.Duration
	SourceTimeout time.Duration

	// Trending / history retention
	TrendingRetentionDays int
	HistoryMaxEntries     int
	HistoryRetentionDays  int

	// Validation
	MinQueryLength int
	MaxLimit       int
}

func Load() *Config {
	return &Config{
		// Server
		ServerPort: getEnv("SERVER_PORT", "3000"),
		ServerEnv:  getEnv("SERVER_ENV", "development"),
		ServerHost: getEnv("SERVER_HOST", "localhost:3000"),

		// Database - DATABASE_URL 우선, 없으면 개별 환경변수로 구성
		DatabaseURL: getDatabaseURL(),

		// Redis
		RedisURL: getEnv("REDIS_URL", ""),

		// Elasticsearch
		ElasticsearchURL:   getEnv("ELASTICSEARCH_URL", ""),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "places"),

		// Internal API
		InternalAPIKey: getEnv("INTERNAL_API_KEY", ""),

		// SigNoz
		SigNozEndpoint: getEnv("SIGNOZ_ENDPOINT", ""),

		Search: SearchConfig{
			TTLConservative: time.Duration(getEnvAsInt("SEARCH_TTL_CONSERVATIVE_SEC", 300)) * time.Second,
			TTLBalanced:     time.Duration(getEnvAsInt("SEARCH_TTL_BALANCED_SEC", 900)) * time.Second,
			TTLAggressive:   time.Duration(getEnvAsInt("SEARCH_TTL_AGGRESSIVE_SEC", 3600)) * time.Second,

			SimilarityFloor: getEnvAsFloat("SEARCH_SIMILARITY_FLOOR", 0.3),

			WeightHistory:    getEnvAsFloat("SUGGEST_WEIGHT_HISTORY", 2.0),
			WeightTrending:   getEnvAsFloat("SUGGEST_WEIGHT_TRENDING", 1.5),
			WeightPopular:    getEnvAsFloat("SUGGEST_WEIGHT_POPULAR", 1.0),
			WeightCompletion: getEnvAsFloat("SUGGEST_WEIGHT_COMPLETION", 1.2),

			IndexTimeout:  time.Duration(getEnvAsInt("SEARCH_INDEX_TIMEOUT_MS", 2500)) * time.Millisecond,
			CacheTimeout:  time.Duration(getEnvAsInt("SEARCH_CACHE_TIMEOUT_MS", 1000)) * time.Millisecond,
			SourceTimeout: time.Duration(getEnvAsInt("SUGGEST_SOURCE_TIMEOUT_MS", 1500)) * time.Millisecond,

			TrendingRetentionDays: getEnvAsInt("TRENDING_RETENTION_DAYS", 7),
			HistoryMaxEntries:     getEnvAsInt("HISTORY_MAX_ENTRIES", 100),
			HistoryRetentionDays:  getEnvAsInt("HISTORY_RETENTION_DAYS", 30),

			MinQueryLength: getEnvAsInt("SEARCH_MIN_QUERY_LENGTH", 2),
			MaxLimit:       getEnvAsInt("SEARCH_MAX_LIMIT", 100),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getDatabaseURL returns DATABASE_URL or builds it from individual env vars
func getDatabaseURL() string {
	// 1. DATABASE_URL이 있으면 그대로 사용
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	// 2. 개별 환경변수로 구성 (k8s secret 키 이름과 일치)
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "postgres")
	password := getEnv("POSTGRES_PASSWORD", "")
	dbname := getEnv("POSTGRES_DB", "hotly")
	sslmode := getEnv("POSTGRES_SSLMODE", "disable")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, dbname, sslmode)
}
