package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/redis/go-redis/v9"

	"platform-backend/internal/api"
	"platform-backend/internal/clock"
	"platform-backend/internal/config"
	"platform-backend/internal/ratelimit"
	"platform-backend/internal/spec"
	"platform-backend/internal/store"
	"platform-backend/internal/version"
	"platform-backend/internal/webhook"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	clk := clock.NewSystem()

	// 2. Rate admission controller
	var windows ratelimit.WindowStore
	switch cfg.RateLimit.Store {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		windows = ratelimit.NewRedisStore(rdb, clk, "")
		log.Printf("rate limiting backed by redis at %s", cfg.Redis.Addr)
	default:
		windows = ratelimit.NewMemoryStore(clk)
	}

	limiter := ratelimit.NewLimiter(windows)
	for _, rule := range ratelimit.DefaultRules() {
		if err := limiter.Configure(rule); err != nil {
			log.Fatalf("seed rate limit rule %s: %v", rule.Key(), err)
		}
	}

	// 3. Delivery audit store
	var audit store.DeliveryLog
	switch cfg.Store.Driver {
	case "postgres":
		pg, err := store.NewPostgresLog(ctx, cfg.Store.Postgres.ConnString(), cfg.Store.Postgres.PoolSize)
		if err != nil {
			log.Fatalf("open postgres delivery log: %v", err)
		}
		defer pg.Close()
		audit = pg
		log.Printf("delivery audit backed by postgres at %s", cfg.Store.Postgres.Host)
	default:
		audit = store.NewMemoryLog()
	}

	// 4. Webhook dispatcher
	transport := webhook.NewHTTPTransport(cfg.Webhook.PacePerSecond, cfg.Webhook.PaceBurst)
	dispatcher := webhook.NewDispatcher(transport, clk, audit, webhook.Config{
		MaxAttempts: cfg.Webhook.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Webhook.BaseDelaySeconds) * time.Second,
		MaxDelay:    time.Duration(cfg.Webhook.MaxDelaySeconds) * time.Second,
	})

	// 5. Version catalog and spec publisher
	catalog := version.NewSeededCatalog()
	publisher := spec.NewPublisher(limiter, dispatcher, catalog)

	// 6. Fiber app with error envelope and request logging
	app := api.NewApp()
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 7. Routes: operator mutations behind JWT, the rest open
	authMW := api.AuthMiddleware(cfg.JWTSecret)
	adminMW := api.RequireAdmin()
	handler := api.NewHandler(limiter, dispatcher, catalog, publisher, audit)
	api.RegisterRoutes(app, handler, authMW, adminMW)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}
