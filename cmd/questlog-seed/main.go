// Command questlog-seed creates a demo account with sample quests, missions
// and rewards.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/aimd54/questlog/internal/auth"
	"github.com/aimd54/questlog/internal/cache"
	"github.com/aimd54/questlog/internal/calendar"
	"github.com/aimd54/questlog/internal/catalog"
	"github.com/aimd54/questlog/internal/config"
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
		log.Fatal().Err(err).Msg("Seed failed")
	}
}

func run(cfg *config.Config, catalogPath string, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewDB(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

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

	locker := cache.NewLocalLocker(cfg.Progression.LockWait)
	store := repository.NewStore(db)

	s := newSeeder(store, auth.NewTokenManager(&cfg.Auth), cat, locker, cal, cfg.Progression, log)
	res, err := s.seed(ctx)
	if err != nil {
		return err
	}
	if res.User == nil {
		return nil
	}

	log.Info().
		Uint("user_id", res.User.ID).
		Str("email", demoEmail).
		Str("password", demoPassword).
		Int("xp", res.User.TotalXP).
		Int("quests", res.Quests).
		Int("missions", res.Missions).
		Int("rewards", res.Rewards).
		Int("achievements", res.Achievements).
		Msg("Demo data seeded")
	return nil
}

func newSeeder(
	store *repository.Store,
	tokens *auth.TokenManager,
	cat *catalog.Catalog,
	locker cache.UserLocker,
	cal *calendar.Calendar,
	progression config.ProgressionConfig,
	log *logger.Logger,
) *seeder {
	xpService := xp.NewService(store, cal, progression.MaxRetries, log.Component("xp"))
	streakService := streaks.NewService(store, cal, progression.MaxRetries, log.Component("streaks"))
	achievementService := achievements.NewService(store, cat, cal, log.Component("achievements"))

	return &seeder{
		users: users.NewService(store, tokens, cal, log.Component("users")),
		xp:    xpService,
		quests: quests.NewService(store, xpService, streakService, achievementService,
			locker, cal, progression.FanoutMode, log.Component("quests")),
		missions: missions.NewService(store, xpService, streakService, achievementService,
			locker, cal, progression.FanoutMode, log.Component("missions")),
		rewards:      rewards.NewService(store, cat, cal, log.Component("rewards")),
		achievements: achievementService,
		cal:          cal,
		log:          log.Component("seed"),
	}
}
