// Command questlog serves the progression dashboard API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aimd54/questlog/internal/api/dashboard"
	"github.com/aimd54/questlog/internal/auth"
	"github.com/aimd54/questlog/internal/cache"
	"github.com/aimd54/questlog/internal/calendar"
	"github.com/aimd54/questlog/internal/catalog"
	"github.com/aimd54/questlog/internal/config"
	prommetrics "github.com/aimd54/questlog/internal/metrics"
	"github.com/aimd54/questlog/internal/repository"
	"github.com/aimd54/questlog/internal/service/achievements"
	"github.com/aimd54/questlog/internal/service/missions"
	"github.com/aimd54/questlog/internal/service/quests"
	"github.com/aimd54/questlog/internal/service/rewards"
	"github.com/aimd54/questlog/internal/service/streaks"
	"github.com/aimd54/questlog/internal/service/users"
	"github.com/aimd54/questlog/internal/service/xp"
	"github.com/aimd54/questlog/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	catalogPath := flag.String("catalog", "", "path to achievement and reward catalog (defaults to the embedded one)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)

	if err := run(cfg, *catalogPath, log); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run(cfg *config.Config, catalogPath string, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewDB(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}()

	if cfg.Database.Driver == config.DriverPostgres {
		err = db.RunMigrations(log)
	} else {
		err = db.AutoMigrate()
	}
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return err
	}

	loc, err := cfg.Progression.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid progression.timezone: %w", err)
	}
	cal := calendar.New(calendar.SystemClock{}, loc)

	var (
		locker      cache.UserLocker
		redisHealth dashboard.HealthChecker
	)
	if cfg.Database.Redis.Enabled {
		redisCache, err := cache.New(ctx, &cfg.Database.Redis, log)
		if err != nil {
			return err
		}
		defer func() { _ = redisCache.Close() }()
		locker = cache.NewRedisLocker(redisCache, cfg.Progression.LockTTL, cfg.Progression.LockWait, log.Component("lock"))
		redisHealth = redisCache
	} else {
		log.Warn().Msg("Redis disabled, per-user locks are process-local")
		locker = cache.NewLocalLocker(cfg.Progression.LockWait)
	}

	store := repository.NewStore(db)
	tokens := auth.NewTokenManager(&cfg.Auth)

	xpService := xp.NewService(store, cal, cfg.Progression.MaxRetries, log.Component("xp"))
	streakService := streaks.NewService(store, cal, cfg.Progression.MaxRetries, log.Component("streaks"))
	achievementService := achievements.NewService(store, cat, cal, log.Component("achievements"))

	handler := dashboard.NewHandler(dashboard.Services{
		Users: users.NewService(store, tokens, cal, log.Component("users")),
		XP:    xpService,
		Missions: missions.NewService(store, xpService, streakService, achievementService,
			locker, cal, cfg.Progression.FanoutMode, log.Component("missions")),
		Quests: quests.NewService(store, xpService, streakService, achievementService,
			locker, cal, cfg.Progression.FanoutMode, log.Component("quests")),
		Rewards:      rewards.NewService(store, cat, cal, log.Component("rewards")),
		Achievements: achievementService,
	}, cal, log.Component("api"))
	handler.AddHealthCheck("database", db)
	if redisHealth != nil {
		handler.AddHealthCheck("redis", redisHealth)
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), dashboard.RequestID(), dashboard.AccessLog(log.Component("http")), dashboard.CORS(cfg.Server.AllowedOrigins))
	if cfg.Metrics.Prometheus.Enabled {
		router.Use(prommetrics.GinMiddleware())
		router.GET(cfg.Metrics.Prometheus.Path, gin.WrapH(promhttp.Handler()))
	}
	dashboard.RegisterRoutes(router, handler, tokens, cfg.Auth.AdminToken)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("environment", cfg.Server.Environment).
			Str("fanout_mode", cfg.Progression.FanoutMode).
			Str("timezone", loc.String()).
			Msg("Starting questlog API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
