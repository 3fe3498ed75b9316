package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telecom-routing/internal/admin"
	"telecom-routing/internal/audit"
	"telecom-routing/internal/auth"
	"telecom-routing/internal/config"
	"telecom-routing/internal/metrics"
	"telecom-routing/internal/routecache"
	"telecom-routing/internal/routing"
	"telecom-routing/internal/routing/pgstore"
	"telecom-routing/internal/telephony"
	"telecom-routing/pkg/logger"
	"telecom-routing/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(rootCtx, stop, cfg, log); err != nil {
		log.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg config.Config, log *slog.Logger) error {
	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return err
	}

	db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{
		MaxOpenConns:     cfg.DB.MaxOpenConns,
		StatementTimeout: cfg.DB.StatementTimeout,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.DB.MigrateOnStart {
		if err := pgstore.Migrate(ctx, db); err != nil {
			return err
		}
		if v, err := pgstore.SchemaVersion(ctx, db); err == nil {
			log.Info("schema migrated", "version", v)
		}
	}

	m := metrics.New(prometheus.NewRegistry())

	prov, err := newProvisioner(cfg, m, log)
	if err != nil {
		return err
	}

	store := pgstore.New(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	var resolver routing.RouteResolver = m.Resolver(routing.NewResolver(store))
	opts := []admin.Option{
		admin.WithAudit(auditSvc),
		admin.WithMetrics(m),
		admin.WithBcryptCost(cfg.Routing.BcryptCost),
	}
	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = utils.OpenRedis(ctx, utils.RedisConfig{
			URL:      cfg.Redis.URL,
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()

		cache := routecache.New(rdb, resolver, routecache.WithTTL(cfg.Routing.CacheTTL), routecache.WithMetrics(m))
		resolver = cache
		opts = append(opts, admin.WithCache(cache))
	} else {
		log.Warn("redis not configured; route cache disabled")
	}

	d := deps{
		cfg:      cfg,
		log:      log,
		auth:     authManager,
		admin:    admin.New(store, prov, opts...),
		resolver: resolver,
		audit:    auditSvc,
		metrics:  m,
		ready: func(ctx context.Context) error {
			if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
				return err
			}
			if rdb != nil {
				return rdb.Ping(ctx).Err()
			}
			return nil
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	return nil
}

// newProvisioner picks the real provider clients that are configured. The
// others fall back to local id generation.
func newProvisioner(cfg config.Config, m *metrics.Metrics, log *slog.Logger) (*telephony.Mux, error) {
	var tw telephony.TwilioBackend
	if cfg.Twilio.Enabled() {
		p, err := telephony.NewTwilioProvisioner(telephony.TwilioConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			Region:     cfg.Twilio.Region,
			Edge:       cfg.Twilio.Edge,
			Timeout:    cfg.Twilio.Timeout,
		})
		if err != nil {
			return nil, err
		}
		tw = p
	} else {
		log.Warn("twilio not configured; twilio objects are provisioned locally")
	}

	var lk telephony.LiveKitBackend
	if cfg.LiveKit.Enabled() {
		p, err := telephony.NewLiveKitProvisioner(telephony.LiveKitConfig{
			URL:       cfg.LiveKit.URL,
			APIKey:    cfg.LiveKit.APIKey,
			APISecret: cfg.LiveKit.APISecret,
			Timeout:   cfg.LiveKit.Timeout,
		})
		if err != nil {
			return nil, err
		}
		lk = p
	} else {
		log.Warn("livekit not configured; livekit objects are provisioned locally")
	}

	return telephony.NewMux(tw, lk, m), nil
}
