package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/52poke/doubanx/internal/cache"
	"github.com/52poke/doubanx/internal/config"
	"github.com/52poke/doubanx/internal/http"
	"github.com/52poke/doubanx/internal/lock"
	"github.com/52poke/doubanx/internal/lookup"
	"github.com/52poke/doubanx/internal/purge"
	"github.com/52poke/doubanx/internal/retrieve"
)

const methodPurge = "PURGE"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("config")
	}
	logger := newLogger(cfg)

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient = lock.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer redisClient.Close()
	}

	kv, err := newKV(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("cache store")
	}
	records := cache.NewRecords(kv, logger)
	client := lookup.NewClient(cfg.APIBaseURL, cfg.RequestTimeout)

	opts := retrieve.Options{
		Expire: cache.Days(cfg.ExpireDays),
		Logger: logger,
	}
	if cfg.RefreshLock {
		opts.Locker = lock.NewLocker(redisClient, time.Duration(cfg.LockTTLSeconds)*time.Second)
	}
	svc := retrieve.NewService(
		retrieve.NewRatingRetriever(records, client, opts),
		retrieve.NewReviewRetriever(records, client, opts),
	)

	handler := httpx.NewHandler(svc, logger)
	purgeHandler := &purge.Handler{
		Service: svc,
		Log:     logger.With().Str("component", "purge").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/lookup", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == methodPurge {
			purgeHandler.ServeHTTP(w, r)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	mux.HandleFunc("/overlay", handler.Overlay)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info().
		Str("addr", cfg.ListenAddr).
		Str("store", cfg.Store).
		Int("expire_days", cfg.ExpireDays).
		Msg("listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server")
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.LogPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func newKV(cfg config.Config, redisClient *redis.Client) (cache.KV, error) {
	switch cfg.Store {
	case config.StoreRedis:
		return cache.NewRedisKV(redisClient, cfg.KeyPrefix), nil
	case config.StoreS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		)
		if err != nil {
			return nil, err
		}
		s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		})
		return cache.NewS3KV(cfg.S3Bucket, cfg.KeyPrefix, s3Client), nil
	default:
		return cache.NewMemoryKV(), nil
	}
}
