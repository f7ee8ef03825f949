package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	apirest "github.com/questforge/engine/api/rest"
	apiws "github.com/questforge/engine/api/ws"
	"github.com/questforge/engine/audit"
	"github.com/questforge/engine/cache"
	"github.com/questforge/engine/config"
	dbadapter "github.com/questforge/engine/db"
	"github.com/questforge/engine/engine/achievement"
	"github.com/questforge/engine/engine/event"
	"github.com/questforge/engine/engine/hook"
	"github.com/questforge/engine/engine/issuer"
	"github.com/questforge/engine/engine/progress"
	"github.com/questforge/engine/engine/raffle"
	"github.com/questforge/engine/engine/random"
	"github.com/questforge/engine/engine/registry"
	"github.com/questforge/engine/engine/reward"
	mw "github.com/questforge/engine/middleware"
	"github.com/questforge/engine/model"
	"github.com/questforge/engine/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" && cfg.Server.AdminKeyHash == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(nil)

	// ---- Cache / PubSub ----
	cacheConfig := cache.Config{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Engine services ----
	hooks := hook.NewCenter()
	tokenIssuer := issuer.NewLogIssuer(logger)

	reg, err := registry.NewService(db, logger)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}
	calc := reward.NewCalculator(cfg.Rewards)
	ledger := reward.NewLedger(db, tokenIssuer, auditSvc, hooks, logger)
	achievements := achievement.NewManager(db, tokenIssuer, cfg.Achievements, hooks, logger)
	tracker := progress.NewTracker(db, reg, calc, ledger, achievements, cfg.Rewards, hooks, logger)
	subscriber := event.NewSubscriber(db, c, reg, tracker, auditSvc, cfg.Events, logger)
	randClient := random.NewClient(db, auditSvc, logger)
	raffles := raffle.NewManager(db, randClient, ledger, cfg.Raffle, auditSvc, hooks, logger)

	// Republish engine events on pub/sub for the websocket feed.
	apiws.RegisterPublisher(hooks, pubsub, logger)

	// ---- Periodic scheduler tasks ----
	sched.AddTicker("raffle_sweep", cfg.Raffle.SweepInterval, func() {
		raffles.Sweep(context.Background())
	})
	sched.AddTicker("seen_event_prune", cfg.Events.PruneInterval, func() {
		if err := subscriber.PruneSeen(context.Background()); err != nil {
			logger.Warn("seen event prune failed", zap.Error(err))
		}
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	eventH := apirest.NewEventHandler(subscriber)
	oracleH := apirest.NewOracleHandler(randClient)
	adminH := apirest.NewAdminHandler(reg, raffles, sched, logger)
	queryH := apirest.NewQueryHandler(reg, tracker, ledger, raffles, achievements)
	raffleH := apirest.NewRaffleHandler(raffles)

	adminAuth := apirest.AdminAuth(cfg.Server.AdminKey, cfg.Server.AdminKeyHash)

	api := r.Group("/api")
	{
		// Ingest endpoints for the ledger watcher and the randomness oracle.
		api.POST("/events", eventH.Submit)
		api.POST("/oracle/fulfill", adminAuth, oracleH.Fulfill)

		adminG := api.Group("/admin")
		adminG.Use(adminAuth)
		adminG.POST("/quests", adminH.CreateQuest)
		adminG.POST("/raffle/rounds", adminH.StartRaffleRound)
		adminG.POST("/raffle/rounds/:id/close-entries", adminH.CloseRoundEntries)
		adminG.POST("/raffle/rounds/:id/close", adminH.ForceCloseRound)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)

		queryG := api.Group("")
		queryG.Use(mw.Auth(cfg.Security))
		queryG.GET("/players/:id/progress", queryH.GetPlayerProgress)
		queryG.GET("/players/:id/rewards", queryH.GetRewards)
		queryG.GET("/players/:id/achievement", queryH.GetAchievement)
		queryG.GET("/quests/:id", queryH.GetQuest)
		queryG.GET("/raffle/rounds/:id", queryH.GetRaffleRound)
		queryG.POST("/raffle/rounds/:id/enter", raffleH.Enter)
	}

	// ---- WebSocket feed ----
	feedH := apiws.NewHandler(pubsub, cfg.Security, logger)
	r.GET("/ws/feed", feedH.ServeFeed)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
