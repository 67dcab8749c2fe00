// Command server runs the community messaging HTTP API.
//
//	@title          Community Messaging API
//	@version        1.0
//	@description    Consent-gated direct messaging and notifications for community posts.
//	@contact.name   Platform Team
//	@license.name   MIT
//	@host           localhost:8080
//	@BasePath       /api/v1
//	@schemes        http
//
//	@securityDefinitions.apikey  BearerAuth
//	@in                          header
//	@name                        Authorization
//	@description                 JWT bearer token: "Bearer <token>"
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-community-messaging/docs"
	"github.com/tbourn/go-community-messaging/internal/config"
	"github.com/tbourn/go-community-messaging/internal/domain"
	httpapi "github.com/tbourn/go-community-messaging/internal/http"
	"github.com/tbourn/go-community-messaging/internal/notify"
	"github.com/tbourn/go-community-messaging/internal/observability"
	"github.com/tbourn/go-community-messaging/internal/repo"
	"github.com/tbourn/go-community-messaging/internal/sysutil"
)

const (
	shutdownGrace      = 15 * time.Second
	idempotencySweep   = 10 * time.Minute
	redisConnectBudget = 5 * time.Second
)

func main() {
	cfg := config.MustLoad()
	version := sysutil.Version()

	sysutil.ConfigureLogging(cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, os.Stderr)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openDB(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("database")
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	pub, closePub := publisher(ctx, cfg)
	defer closePub()

	docs.SwaggerInfo.Version = version
	docs.SwaggerInfo.BasePath = cfg.APIBasePath

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{DB: db, Publisher: pub}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go sweepIdempotency(ctx, db)

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", version).
			Str("base_path", cfg.APIBasePath).
			Bool("auth_required", cfg.Auth.Required).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
}

// openDB connects, migrates and seeds the bootstrap administrator.
func openDB(ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DB.Driver, cfg.DB.Target())
	if err != nil {
		return nil, err
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			return nil, err
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}

	if id := cfg.Auth.BootstrapAdminID; id != "" {
		admin := &domain.User{ID: id, Name: id, Role: "admin"}
		if existing, err := repo.GetUser(ctx, db, id); err == nil {
			admin.Name = existing.Name
		}
		if err := repo.UpsertUser(ctx, db, admin); err != nil {
			return nil, err
		}
		log.Info().Str("user_id", id).Msg("bootstrap admin ensured")
	}
	return db, nil
}

// publisher selects Redis fan-out when REDIS_ADDR is set. An unreachable
// Redis is logged and replaced by the no-op publisher; committed
// notifications stay readable from the database either way.
func publisher(ctx context.Context, cfg config.Config) (notify.Publisher, func()) {
	if cfg.Redis.Addr == "" {
		return notify.Noop{}, func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pub := notify.NewRedisPublisher(client, cfg.Redis.ChannelPrefix)

	pctx, cancel := context.WithTimeout(ctx, redisConnectBudget)
	defer cancel()
	if err := pub.Ping(pctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, notifications will not be fanned out")
		_ = pub.Close()
		return notify.Noop{}, func() {}
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("redis publisher ready")
	return pub, func() { _ = pub.Close() }
}

// sweepIdempotency deletes expired idempotency records until ctx ends.
func sweepIdempotency(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(idempotencySweep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency sweep")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("idempotency sweep")
			}
		}
	}
}
