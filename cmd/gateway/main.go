// Package main implements the gateway server entry point. It assembles the
// registry, auth service, rate limiter, dispatcher and HTTP surface from
// environment configuration and runs until interrupted.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	_ "github.com/joho/godotenv/autoload"

	"github.com/twinmcp/gateway/auth"
	"github.com/twinmcp/gateway/common/config"
	"github.com/twinmcp/gateway/common/logger"
	"github.com/twinmcp/gateway/controller"
	"github.com/twinmcp/gateway/dispatcher"
	"github.com/twinmcp/gateway/model"
	"github.com/twinmcp/gateway/monitor"
	"github.com/twinmcp/gateway/ratelimit"
	"github.com/twinmcp/gateway/registry"
	"github.com/twinmcp/gateway/router"
	"github.com/twinmcp/gateway/transform"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Logger.Error("gateway exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	lg := logger.Logger

	var store *model.Store
	if config.SQLDSN != "" {
		var err error
		store, err = model.InitDB(config.SQLDSN)
		if err != nil {
			return errors.Wrap(err, "initialize database")
		}
		defer store.Close()
	}

	rec := monitor.InitMonitoring(store, lg)

	authSvc := auth.NewService(config.SessionSecret, config.APIKeyPrefix)
	reg := registry.New()
	if err := loadBuiltinPlugin(reg); err != nil {
		return errors.Wrap(err, "load builtin plugin")
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter()
	var cache dispatcher.ResultCache
	if config.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
		})
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb, "gateway:ratelimit")
		cache = dispatcher.NewRedisCache(rdb, "gateway:result")
		lg.Info("using redis rate limiter and result cache",
			zap.String("addr", config.RedisAddr))
	}

	resolve, err := backendResolver(ctx, rec, lg)
	if err != nil {
		return err
	}

	if store != nil {
		if err := store.HydrateAuth(authSvc); err != nil {
			return errors.Wrap(err, "hydrate auth service")
		}
		if resolve != nil {
			if err := store.HydrateRegistry(reg, resolve); err != nil {
				return errors.Wrap(err, "hydrate registry")
			}
		}
	}

	d, err := dispatcher.New(dispatcher.Config{
		Registry: reg,
		Auth:     authSvc,
		Limiter:  limiter,
		Pipeline: transform.NewDefaultPipeline(config.APIVersion, gutils.UUID7),
		Cache:    cache,
		Metrics:  rec,
		Logger:   lg.Named("dispatch"),

		QueueWorkers:  config.QueueWorkers,
		QueueMaxDepth: config.QueueMaxDepth,
		JobRetention:  config.JobRetention,
	})
	if err != nil {
		return errors.Wrap(err, "build dispatcher")
	}
	d.Start(ctx)

	if config.DebugEnabled {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.SetRouter(engine, controller.NewServer(d, reg, authSvc, config.APIVersion), rec, lg)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	lg.Info("gateway listening",
		zap.String("port", config.Port),
		zap.Int("tools", reg.GetStats().TotalTools),
		zap.Bool("durable", store != nil))

	select {
	case err := <-serveErr:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	lg.Info("gateway stopped")
	return nil
}
