package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yourorg/finbook/internal/auth"
	"github.com/yourorg/finbook/internal/gateway"
	"github.com/yourorg/finbook/internal/marketdata"
	"github.com/yourorg/finbook/internal/pricing"
	memRepo "github.com/yourorg/finbook/internal/repository/memory"
	pgRepo "github.com/yourorg/finbook/internal/repository/postgres"
	redisRepo "github.com/yourorg/finbook/internal/repository/redis"
	"github.com/yourorg/finbook/internal/settlement"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	dbURL := os.Getenv("DATABASE_URL")
	redisURL := os.Getenv("REDIS_URL")
	alphaVantageKey := os.Getenv("ALPHAVANTAGE_API_KEY")
	jwtSecret := os.Getenv("JWT_SECRET")
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	refreshInterval := 30 * time.Second
	if v := os.Getenv("MARK_REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logger.Error("invalid MARK_REFRESH_INTERVAL", "value", v, "err", err)
			os.Exit(1)
		}
		refreshInterval = d
	}

	var (
		store     settlement.Store
		userStore gateway.UserStore
		assets    marketdata.AssetLister
	)
	if dbURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store; all state is lost on restart")
		mem := memRepo.NewStore()
		store, userStore, assets = mem, mem, mem
	} else {
		db, err := pgRepo.Connect(dbURL)
		if err != nil {
			logger.Error("failed to connect to database", "err", err)
			os.Exit(1)
		}
		logger.Info("database connected")

		if err := pgRepo.RunMigrations(dbURL, "migrations"); err != nil {
			logger.Error("failed to run migrations", "err", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")

		userRepo := pgRepo.NewUserRepo(db)
		positionRepo := pgRepo.NewPositionRepo(db)
		ledgerRepo := pgRepo.NewLedgerRepo(db)
		store = pgRepo.NewStore(db, userRepo, positionRepo, ledgerRepo)
		userStore = userRepo
		assets = positionRepo
	}

	var quoteRepo *redisRepo.QuoteRepo
	if redisURL != "" {
		redisClient, err := redisRepo.Connect(redisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		logger.Info("redis connected")
		quoteRepo = redisRepo.NewQuoteRepo(redisClient)
	} else {
		logger.Warn("REDIS_URL not set, quote caching and mark streaming disabled")
	}

	var cache pricing.QuoteCache
	if quoteRepo != nil {
		cache = quoteRepo
	}
	oracle := pricing.NewOracle(
		pricing.NewAlphaVantageQuoter(alphaVantageKey),
		pricing.NewCoinGeckoQuoter(),
		cache,
		logger,
	)

	jwtSvc := auth.NewJWTService(jwtSecret)
	svc := settlement.NewService(store, oracle, logger)
	handlers := gateway.NewHandlers(userStore, svc, jwtSvc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var hub *gateway.Hub
	if quoteRepo != nil {
		hub = gateway.NewHub(quoteRepo, logger)
		go hub.Run(ctx)

		refresher := marketdata.NewRefresher(assets, oracle, quoteRepo, refreshInterval, logger)
		go refresher.Run(ctx)
	}

	router := gateway.NewRouter(handlers, hub, jwtSvc)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	logger.Info("server stopped")
}
