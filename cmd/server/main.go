package main // Entry point package

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/stagekit/showcall/internal/config"
	"github.com/stagekit/showcall/internal/database"
	"github.com/stagekit/showcall/internal/gateway"
	"github.com/stagekit/showcall/internal/handler"
	"github.com/stagekit/showcall/internal/middleware"
	"github.com/stagekit/showcall/internal/queue"
	"github.com/stagekit/showcall/internal/repository"
	"github.com/stagekit/showcall/internal/router"
	"github.com/stagekit/showcall/internal/service"
	"github.com/stagekit/showcall/internal/show"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env always wins

	cfg := config.Load()

	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.Env == "dev" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient() // nil when unavailable; presence degrades to local sweeps

	// Repositories implement the core's store interfaces.
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	sessions := repository.NewSessionRepo(db)
	memberships := repository.NewMembershipRepo(db)
	sheets := repository.NewCueSheetRepo(db)
	progress := repository.NewProgressRepo(db)
	operators := repository.NewOperatorStatusRepo(db)
	announcements := repository.NewAnnouncementRepo(db)

	stores := show.Stores{
		Sessions:      sessions,
		Memberships:   memberships,
		Sheets:        sheets,
		Progress:      progress,
		Operators:     operators,
		Announcements: announcements,
		Users:         users,
	}
	showCfg := show.Config{
		HeartbeatTimeout:     cfg.HeartbeatTimeout,
		AnnouncementBackfill: cfg.AnnouncementBackfill,
		CodeAlphabet:         cfg.CodeAlphabet,
		CodeLength:           cfg.CodeLength,
		CodeRetries:          cfg.CodeRetries,
		GoHold:               cfg.GoHold,
		AdvanceOnGo:          cfg.AdvanceOnGo,
	}

	mirror := service.NewShowLogPublisher()
	rooms := show.NewRooms(showCfg, stores, mirror, rdb, logger)
	registry := show.NewRegistry(showCfg, stores, rooms, cfg.BcryptCost, logger)

	// Background show-log consumer; reconnects on broker failures.
	go func() {
		if err := queue.StartShowLogConsumer(); err != nil {
			logger.Error().Err(err).Msg("show log consumer stopped")
		}
	}()

	e := echo.New()
	e.HideBanner = true
	if rl := config.LoadRateLimitConfig(); rl.Enabled {
		e.Use(middleware.NewTokenBucket(rl, rdb))
	}

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterShow(e, handler.NewSessionHandler(registry, rooms), handler.NewCueSheetHandler(sheets, rooms), cfg.JWTSecret)
	router.RegisterGateway(e, gateway.New(cfg.JWTSecret, rooms, logger))

	// Close every live room on shutdown so subscribers get the notice.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		rooms.Shutdown("server shutdown")
		_ = e.Close()
	}()

	addr := ":" + cfg.Port
	logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
	if err := e.Start(addr); err != nil {
		logger.Error().Err(err).Msg("server stopped")
	}
}
