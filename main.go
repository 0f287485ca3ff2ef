package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/huugi-star/potenote-scanner-sub001/api/rest"
	"github.com/huugi-star/potenote-scanner-sub001/cache"
	"github.com/huugi-star/potenote-scanner-sub001/catalog"
	"github.com/huugi-star/potenote-scanner-sub001/config"
	dbadapter "github.com/huugi-star/potenote-scanner-sub001/db"
	"github.com/huugi-star/potenote-scanner-sub001/game/capture"
	"github.com/huugi-star/potenote-scanner-sub001/game/gacha"
	"github.com/huugi-star/potenote-scanner-sub001/game/history"
	"github.com/huugi-star/potenote-scanner-sub001/game/progress"
	mw "github.com/huugi-star/potenote-scanner-sub001/middleware"
	"github.com/huugi-star/potenote-scanner-sub001/model"
	"github.com/huugi-star/potenote-scanner-sub001/scheduler"
	"github.com/huugi-star/potenote-scanner-sub001/state"
	"github.com/huugi-star/potenote-scanner-sub001/syncer"
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
	if cfg.Server.AdminKey == "" {
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

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
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

	// ---- Gacha catalog ----
	cat, err := catalog.Load(cfg.Game.CatalogPath)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	logger.Info("Gacha catalog loaded",
		zap.Int("items", len(cat.Items)),
		zap.String("version", cat.Version))

	// ---- State container ----
	container := state.NewContainer(state.NewSnapshotStore(db), pubsub, logger)

	// ---- Engines ----
	ledger := progress.NewLedger(container, cfg.Game, logger)
	gachaEng := gacha.NewEngine(container, cat, cfg.Game, logger)
	captureEng := capture.NewEngine(container, cfg.Game, c, logger)
	historyStore := history.NewStore(container, logger)

	// ---- Sync coordinator ----
	remote := syncer.NewGormRemote(db)
	coord, err := syncer.New(container, remote, pubsub, cfg.Sync, logger)
	if err != nil {
		log.Fatalf("syncer: %v", err)
	}
	defer coord.Stop(context.Background())

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	regen := time.Duration(cfg.Game.StaminaRegenS) * time.Second
	sched.AddTicker("stamina_regen", regen, func() {
		if container.UserID() == "" {
			return
		}
		if err := ledger.RestoreStamina(1); err != nil {
			logger.Warn("stamina regen failed", zap.Error(err))
		}
	})
	sched.AddTicker("sync_flush", cfg.Sync.FlushInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		coord.Flush(ctx)
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
	authH := apirest.NewAuthHandler(coord, ledger, c, cfg.Security)
	profileH := apirest.NewProfileHandler(container, ledger)
	gachaH := apirest.NewGachaHandler(gachaEng, cat, container)
	scanH := apirest.NewScanHandler(captureEng, ledger, container)
	battleH := apirest.NewBattleHandler(captureEng, ledger, container)
	historyH := apirest.NewHistoryHandler(historyStore, ledger, container)
	adminH := apirest.NewAdminHandler(container, coord, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/session", authH.CreateSession)
		authG.POST("/signout", mw.Auth(cfg.Security, c), authH.SignOut)

		authed := api.Group("")
		authed.Use(mw.Auth(cfg.Security, c))

		authed.GET("/profile", profileH.Profile)
		authed.GET("/profile/allowance/:feature", profileH.Allowance)
		authed.GET("/dex", profileH.Dex)
		authed.POST("/lecture/start", profileH.StartLecture)

		authed.POST("/gacha/pull", gachaH.Pull)
		authed.POST("/gacha/ten-pull", gachaH.TenPull)
		authed.GET("/gacha/rates", gachaH.Rates)

		authed.POST("/scans", scanH.Create)
		authed.GET("/scans", scanH.List)
		authed.GET("/scans/:id", scanH.Get)
		authed.POST("/scans/:id/refill", scanH.Refill)

		authed.POST("/battle/start", battleH.Start)
		authed.GET("/battle", battleH.Resume)
		authed.POST("/battle/answer", battleH.Answer)
		authed.POST("/battle/end", battleH.End)

		authed.POST("/history/quiz", historyH.AddQuiz)
		authed.POST("/history/translation", historyH.AddTranslation)
		authed.GET("/history/quiz", historyH.ListQuiz)
		authed.GET("/history/translation", historyH.ListTranslation)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs))
		adminG.Use(apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/state", adminH.StateDump)
		adminG.POST("/sync/flush", adminH.SyncFlush)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
