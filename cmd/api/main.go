package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/avalove/avalove-ledger/internal/config"
	"github.com/avalove/avalove-ledger/internal/domain/balance"
	"github.com/avalove/avalove-ledger/internal/domain/burn"
	"github.com/avalove/avalove-ledger/internal/domain/decay"
	"github.com/avalove/avalove-ledger/internal/domain/earning"
	"github.com/avalove/avalove-ledger/internal/domain/payout"
	"github.com/avalove/avalove-ledger/internal/domain/pool"
	"github.com/avalove/avalove-ledger/internal/domain/rank"
	"github.com/avalove/avalove-ledger/internal/domain/realtime"
	"github.com/avalove/avalove-ledger/internal/domain/settings"
	"github.com/avalove/avalove-ledger/internal/middleware"
	"github.com/avalove/avalove-ledger/internal/pkg/database"
	"github.com/avalove/avalove-ledger/internal/pkg/jwt"
	"github.com/avalove/avalove-ledger/internal/pkg/lock"
	"github.com/avalove/avalove-ledger/internal/pkg/logger"
	"github.com/avalove/avalove-ledger/internal/pkg/metrics"
	pkgresponse "github.com/avalove/avalove-ledger/internal/pkg/response"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
		Service:     "ledger-api",
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Avalove ledger API")

	db, err := database.NewPostgres(cfg.DatabaseURL, cfg.DBMaxOpenConn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	if cfg.ApplySchema {
		if err := database.EnsureSchema(context.Background(), db); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply ledger schema")
		}
	}

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	m := metrics.Get()

	// ---------- Repositories ----------
	earningRepo := earning.NewRepository(db)
	burnRepo := burn.NewRepository(db)
	decayRepo := decay.NewRepository(db)
	settingsRepo := settings.NewRepository(db)
	rankRepo := rank.NewRepository(db)
	snapshotRepo := pool.NewSnapshotRepository(db)

	// ---------- Realtime ----------
	hub := realtime.NewHub(redis, m)

	// ---------- Services ----------
	settingsService := settings.NewService(settingsRepo, settings.Defaults{
		EarnRatePerSecond: cfg.EarnRatePerSecond,
		PoolCeiling:       cfg.DefaultPoolCeiling,
		ActiveWindow:      cfg.DecayActiveWindow,
	}, hub)

	var locker decay.Locker
	if redis != nil {
		locker = lock.NewRedisLocker(redis, cfg.DecayLockTTL)
	}
	decayEngine := decay.NewEngine(decayRepo, locker, m)

	balanceService := balance.NewService(earningRepo, burnRepo, decayEngine, settingsService, hub, m)
	accountant := pool.NewAccountant(earningRepo, settingsService, m)
	recorder := pool.NewRecorder(accountant, snapshotRepo)
	rankService := rank.NewService(rankRepo)
	payoutService := payout.NewService(balanceService, payout.NewRepository(db), hub, m)

	hub.Attach(&ledgerFeed{balances: balanceService, pool: accountant})
	go hub.Run()

	// ---------- Handlers ----------
	h := handlers{
		balance:  balance.NewHandler(balanceService, decayEngine),
		pool:     pool.NewHandler(accountant, recorder),
		rank:     rank.NewHandler(rankService),
		payout:   payout.NewHandler(payoutService),
		settings: settings.NewHandler(settingsService),
		realtime: realtime.NewHandler(hub, balanceService, cfg.AllowedOrigins),
		health: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
	}

	r := newRouter(cfg, middleware.Auth(jwtService), h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Shutdown()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

type handlers struct {
	balance  *balance.Handler
	pool     *pool.Handler
	rank     *rank.Handler
	payout   *payout.Handler
	settings *settings.Handler
	realtime *realtime.Handler
	health   func(ctx context.Context) error
}

// apiTimeout bounds every ledger request; store calls past it report 503.
const apiTimeout = 10 * time.Second

func newRouter(cfg *config.Config, authMiddleware func(http.Handler) http.Handler, h handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// Browsers cannot set headers on the upgrade request
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		authMiddleware(http.HandlerFunc(h.realtime.WebSocket)).ServeHTTP(w, r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if h.health != nil {
			if err := h.health(ctx); err != nil {
				log.Warn().Err(err).Msg("health check failed")
				pkgresponse.ServiceUnavailable(w, "Database unavailable")
				return
			}
		}
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(apiTimeout))

		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/credits", h.balance.Routes(authMiddleware))
		r.With(authMiddleware).Post("/activity/heartbeat", h.balance.Heartbeat)
		r.Get("/pool", h.pool.State)
		r.Mount("/ranks", h.rank.Routes(authMiddleware))
	})

	// Written to by the game, music and watch services
	r.Route("/api/internal", func(r chi.Router) {
		r.Use(middleware.Timeout(apiTimeout))
		r.Use(authMiddleware)
		r.Use(middleware.RequireService())

		r.Post("/earnings", h.balance.RecordEarning)
		r.Post("/burns", h.balance.RecordBurn)
		r.Put("/ranks/{tokenId}", h.rank.Submit)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Timeout(apiTimeout))
		r.Use(authMiddleware)
		r.Use(middleware.RequireAdmin())

		r.Mount("/settings", h.settings.Routes())
		r.Get("/users/{id}/credits", h.balance.UserCredits)
		r.Post("/users/{id}/payouts", h.payout.Claim)
		r.Get("/pool", h.pool.State)
		r.Get("/pool/snapshots", h.pool.Snapshots)
	})

	return r
}

// ledgerFeed is what the realtime hub recomputes from.
type ledgerFeed struct {
	balances *balance.Service
	pool     *pool.Accountant
}

func (f *ledgerFeed) ComputePoolState(ctx context.Context) (*pool.State, error) {
	return f.pool.ComputePoolState(ctx)
}

func (f *ledgerFeed) ComputeSpendable(ctx context.Context, userID uuid.UUID) (*balance.Snapshot, error) {
	return f.balances.ComputeSpendable(ctx, userID)
}
