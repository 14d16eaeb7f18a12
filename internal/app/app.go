package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"realtime-notifier/internal/channels"
	"realtime-notifier/internal/config"
	"realtime-notifier/internal/domain"
	"realtime-notifier/internal/fanout/redisfan"
	"realtime-notifier/internal/handler"
	"realtime-notifier/internal/queue/rabbitmq"
	"realtime-notifier/internal/registry/redisreg"
	"realtime-notifier/internal/repository/postgres"
	rediscache "realtime-notifier/internal/repository/redis"
	"realtime-notifier/internal/session"
	"realtime-notifier/internal/usecase"
	"realtime-notifier/internal/worker"

	goredis "github.com/redis/go-redis/v9"
	"github.com/wb-go/wbf/dbpg"
	wbfredis "github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/zlog"
)

const ShutdownTimeout = 5 * time.Second

type App struct {
	cfg    *config.Config
	db     *dbpg.DB
	rd     *wbfredis.Client
	rdb    *goredis.Client
	queue  *rabbitmq.Queue
	uc     *usecase.NotificationUsecase
	hub    *session.Hub
	server *http.Server
	worker *worker.Worker
}

// insecureAuth treats the token as the recipient id. Token verification
// belongs to the surrounding platform; deployments plug their own AuthFunc.
func insecureAuth(_ context.Context, authToken string) (string, error) {
	if authToken == "" {
		return "", domain.ErrUnauthorized
	}
	return authToken, nil
}

func NewApp(cfg *config.Config, auth session.AuthFunc) *App {
	if auth == nil {
		auth = insecureAuth
	}
	retries := cfg.DefaultRetryStrategy()

	dbOpts := &dbpg.Options{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	}
	db, err := dbpg.New(cfg.DBDSN(), cfg.DB.Slaves, dbOpts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	rd := wbfredis.New(cfg.RedisAddr(), cfg.Redis.Pass, cfg.Redis.DB)
	cache := rediscache.NewRedisCache(rd, retries)
	repo := postgres.NewRepository(db, cache, retries, time.Duration(cfg.CacheTTLHours)*time.Hour)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Pass,
		DB:       cfg.Redis.DB,
	})
	reg := redisreg.New(rdb, cfg.Registry.HeartbeatTimeout)
	fan := redisfan.New(rdb)

	q := rabbitmq.New(cfg, retries)
	sender := channels.NewMultiSender(cfg)

	uc := usecase.New(repo, repo, repo, q, reg, fan, sender, retries, usecase.Options{
		MaxAttempts:   cfg.Worker.MaxAttempts,
		AckDeadline:   cfg.Worker.AckDeadline,
		SweepInterval: cfg.Worker.SweepInterval,
	})

	wrk := worker.New(q, uc.ProcessDelivery, uc.Sweep, worker.Options{
		Lanes:         cfg.Worker.Lanes,
		SweepInterval: cfg.Worker.SweepInterval,
		RetryDelay:    time.Duration(cfg.Retries.DelayMs) * time.Millisecond,
	})

	hub := session.NewHub(cfg.InstanceID, fan)
	ws := session.NewHandler(hub, uc, reg, auth, cfg.InstanceID, cfg.Registry.HeartbeatInterval)

	h := handler.NewHandler(uc)
	mux := handler.SetupRouter(h, ws.ServeWS)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return &App{
		cfg:    cfg,
		db:     db,
		rd:     rd,
		rdb:    rdb,
		queue:  q,
		uc:     uc,
		hub:    hub,
		server: srv,
		worker: wrk,
	}
}

func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := a.hub.Run(ctx); err != nil && ctx.Err() == nil {
			zlog.Logger.Fatal().Err(err).Msg("Fanout subscription failed")
		}
	}()
	go a.worker.Start(ctx)
	go func() {
		zlog.Logger.Info().Str("addr", a.cfg.Server.Addr).Str("instance", a.cfg.InstanceID).Msg("Server listening")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Logger.Info().Msg("Shutting down...")

	// stop accepting connections first so sessions unregister before the
	// worker loses its queue
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancelShutdown()
	if err := a.server.Shutdown(ctxShutdown); err != nil {
		zlog.Logger.Error().Err(err).Msg("Shutdown failed")
	}
	cancel()
	a.worker.Stop()
	a.queue.Close()
	a.db.Master.Close()
	a.rd.Close()
	a.rdb.Close()
	zlog.Logger.Info().Msg("Exited")
}
