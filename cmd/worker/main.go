package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/flowio-app/backend-demo/internal/config"
	"github.com/flowio-app/backend-demo/internal/leads"
	"github.com/flowio-app/backend-demo/internal/notify"
	"github.com/flowio-app/backend-demo/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics("flowio", nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	worker := notify.LeadWorker{
		Sender: notify.Sender{
			URL:    cfg.LeadWebhookURL,
			Client: notify.HTTPClient(int(cfg.WebhookRequestTimeout/time.Millisecond), cfg.WebhookAllowInsecureTLS),
		},
		Store:  &leads.Store{DB: pool},
		Logger: logger,
	}

	srv := asynq.NewServer(asynqRedisOpt(cfg.RedisURL), asynq.Config{
		Concurrency: cfg.LeadQueueConcurrency,
		Queues:      map[string]int{cfg.LeadQueueName: 1},
		Logger:      asynqLogger{logger},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(notify.TaskTypeLeadWebhook, worker.Handle)

	logger.Info().Str("queue", cfg.LeadQueueName).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}

	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "flowio-demo-worker"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func asynqRedisOpt(redisURL string) asynq.RedisClientOpt {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}
	}
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}
}

// asynqLogger adapts zerolog to the asynq logging interface.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug().Msgf("%v", args) }
func (a asynqLogger) Info(args ...any)  { a.l.Info().Msgf("%v", args) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn().Msgf("%v", args) }
func (a asynqLogger) Error(args ...any) { a.l.Error().Msgf("%v", args) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal().Msgf("%v", args) }
