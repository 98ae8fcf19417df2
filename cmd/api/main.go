package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/flowio-app/backend-demo/internal/attribution"
	"github.com/flowio-app/backend-demo/internal/common"
	"github.com/flowio-app/backend-demo/internal/config"
	"github.com/flowio-app/backend-demo/internal/demo"
	"github.com/flowio-app/backend-demo/internal/health"
	"github.com/flowio-app/backend-demo/internal/leads"
	"github.com/flowio-app/backend-demo/internal/notify"
	"github.com/flowio-app/backend-demo/internal/obs"
	"github.com/flowio-app/backend-demo/internal/pricebook"
	"github.com/flowio-app/backend-demo/internal/ratelimit"
	"github.com/flowio-app/backend-demo/internal/security"
)

const metricsNamespace = "flowio"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "flowio-demo-api",
			Endpoint:      cfg.TracingEndpoint,
			SamplingRatio: cfg.TracingSamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool := mustInitDatabase(initCtx, cfg, logger, "flowio-demo-api")
	defer pool.Close()

	redisClient := mustInitRedis(initCtx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	taskClient := asynq.NewClient(asynqRedisOpt(cfg.RedisURL))
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	attribStore := &attribution.Store{
		R:      redisClient,
		TTL:    cfg.AttributionTTL,
		Logger: logger.With().Str("component", "attribution").Logger(),
	}
	attribHandler := &attribution.Handler{Store: attribStore}
	identity := attribution.LeadIdentity{
		CookieTTL:    attribution.DefaultLeadCookieTTL,
		CookieSecure: cfg.CookieSecure,
	}

	pricebookSvc := &pricebook.Service{
		URL:    cfg.PricebookURL,
		Client: &http.Client{Timeout: 5 * time.Second},
		Cache:  pricebook.NewCache(redisClient, cfg.PricebookCacheTTL),
		Logger: logger.With().Str("component", "pricebook").Logger(),
	}
	pricebookHandler := &pricebook.Handler{Service: pricebookSvc}

	sessions := demo.NewStore()
	sessions.StartJanitor(ctx, cfg.DemoSweepInterval, cfg.DemoSessionTTL)
	flow := &demo.Flow{
		Sessions:  sessions,
		Pricebook: pricebookSvc,
		Attrib:    attribStore,
		Queue: notify.LeadEnqueuer{
			Client:  taskClient,
			Queue:   cfg.LeadQueueName,
			Timeout: cfg.WebhookRequestTimeout,
		},
		TaxBps:        cfg.TaxRateBps,
		GenerateDelay: cfg.DemoGenerateDelay,
		ResendDelay:   cfg.DemoResendDelay,
		Logger:        logger.With().Str("component", "demo").Logger(),
	}
	demoHandler := &demo.Handler{
		Flow:     flow,
		Validate: validator.New(),
		Currency: cfg.CurrencyCode,
	}

	leadStore := &leads.Store{DB: pool}
	leadHandler := &leads.Handler{Store: leadStore}

	limiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:demo:"},
		Config: ratelimit.Config{
			Key:    common.ClientIP,
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter unavailable")
		},
	}

	httpMetrics := obs.NewHTTPMetrics(metricsNamespace, nil, nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger, LeadCookieName: attribution.LeadCookieName}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: true}.Middleware)
	r.Use(security.BodyLimit{Max: 1 << 20}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/debug/pprof", protectBasicAuth(newPprofMux(), cfg.PprofUser, cfg.PprofPassword))

	healthHandler := health.Handler{Checker: health.Probe{DB: pool, Redis: redisClient}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(limiter.Middleware)
		v.Use(identity.Middleware)

		v.Get("/pricebook", pricebookHandler.Items)

		v.Route("/attribution", func(a chi.Router) {
			a.Post("/capture", attribHandler.Capture)
			a.Get("/", attribHandler.Current)
		})

		v.Route("/demo/sessions", func(d chi.Router) {
			d.Post("/", demoHandler.Create)
			d.Route("/{id}", func(s chi.Router) {
				s.Get("/", demoHandler.Get)
				s.Post("/items", demoHandler.AddItem)
				s.Delete("/items/{sku}", demoHandler.RemoveItem)
				s.Post("/generate", demoHandler.Generate)
				s.Post("/back", demoHandler.Back)
				s.Post("/gate", demoHandler.Gate)
				s.Post("/resend", demoHandler.Resend)
				s.Post("/accept", demoHandler.Accept)
				s.Post("/accept/confirm", demoHandler.ConfirmAccept)
			})
		})

		v.With(requireBasicAuth(cfg.PprofUser, cfg.PprofPassword)).
			Get("/admin/leads", leadHandler.List)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown http server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger, appName string) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
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

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func requireBasicAuth(user, pass string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return protectBasicAuth(next, user, pass)
	}
}

func protectBasicAuth(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
