package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreS3     = "s3"
)

type Config struct {
	ListenAddr     string
	APIBaseURL     string
	ExpireDays     int
	RequestTimeout time.Duration
	Store          string
	KeyPrefix      string
	RedisAddr      string
	RedisDB        int
	RedisPassword  string
	RefreshLock    bool
	LockTTLSeconds int
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	LogLevel       string
	LogPretty      bool
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:     getenv("DOUBANX_LISTEN_ADDR", ":8080"),
		APIBaseURL:     getenv("DOUBANX_API_BASE_URL", "https://doubanx.wange.im"),
		ExpireDays:     getenvInt("DOUBANX_EXPIRE_DAYS", 5),
		RequestTimeout: getenvDuration("DOUBANX_REQUEST_TIMEOUT", 10*time.Second),
		Store:          strings.ToLower(getenv("DOUBANX_STORE", StoreMemory)),
		KeyPrefix:      os.Getenv("DOUBANX_KEY_PREFIX"),
		RedisAddr:      getenv("DOUBANX_REDIS_ADDR", ""),
		RedisDB:        getenvInt("DOUBANX_REDIS_DB", 0),
		RedisPassword:  os.Getenv("DOUBANX_REDIS_PASSWORD"),
		RefreshLock:    getenvBool("DOUBANX_REFRESH_LOCK", false),
		LockTTLSeconds: getenvInt("DOUBANX_LOCK_TTL_SECONDS", 45),
		S3Endpoint:     getenv("DOUBANX_S3_ENDPOINT", ""),
		S3Region:       getenv("DOUBANX_S3_REGION", ""),
		S3Bucket:       getenv("DOUBANX_S3_BUCKET", ""),
		S3AccessKey:    os.Getenv("DOUBANX_S3_ACCESS_KEY"),
		S3SecretKey:    os.Getenv("DOUBANX_S3_SECRET_KEY"),
		LogLevel:       getenv("DOUBANX_LOG_LEVEL", "info"),
		LogPretty:      getenvBool("DOUBANX_LOG_PRETTY", false),
	}

	if cfg.ExpireDays < 0 {
		return cfg, errors.New("DOUBANX_EXPIRE_DAYS must not be negative")
	}
	switch cfg.Store {
	case StoreMemory:
	case StoreRedis:
		if cfg.RedisAddr == "" {
			return cfg, errors.New("DOUBANX_REDIS_ADDR is required for the redis store")
		}
	case StoreS3:
		if cfg.S3Endpoint == "" || cfg.S3Bucket == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
			return cfg, errors.New("S3 endpoint/bucket/access/secret are required for the s3 store")
		}
	default:
		return cfg, fmt.Errorf("unknown DOUBANX_STORE %q", cfg.Store)
	}
	if cfg.RefreshLock && cfg.RedisAddr == "" {
		return cfg, errors.New("DOUBANX_REFRESH_LOCK needs DOUBANX_REDIS_ADDR")
	}
	return cfg, nil
}

// NeedsRedis reports whether a Redis client has to be created.
func (c Config) NeedsRedis() bool {
	return c.Store == StoreRedis || c.RefreshLock
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
