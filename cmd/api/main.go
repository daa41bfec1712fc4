package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"fitapp.dev/internal/auth"
	"fitapp.dev/internal/config"
	"fitapp.dev/internal/httpapi"
	"fitapp.dev/internal/migrate"
	"fitapp.dev/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg := config.Load()

	logger, err := obs.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	if missing := cfg.MissingSecrets(); len(missing) > 0 {
		// The server still starts; login and refresh answer 500 until configured.
		logger.Warn("token secrets not configured", zap.Strings("missing", missing))
	}

	var (
		db    *sql.DB
		store auth.CredentialStore
	)
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			logger.Fatal("open db", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)

		if cfg.AutoMigrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err = migrate.NewManager(db, migrate.WithLogger(logger)).Up(ctx)
			cancel()
			if err != nil {
				logger.Fatal("apply migrations", zap.Error(err))
			}
		}
		store = auth.NewPGStore(db)
	} else {
		logger.Warn("FITAPP_PG_DSN not set, using in-memory credential store")
		store = auth.NewMemoryStore()
	}

	issuer := auth.NewTokenIssuer(cfg.AccessTokenSecret, cfg.RefreshTokenSecret,
		auth.WithAccessTTL(cfg.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.RefreshTokenTTL),
		auth.WithIssuer(cfg.TokenIssuer),
	)
	svc := auth.NewService(store, issuer, auth.WithLogger(logger))
	probe := httpapi.ReadyProbe{DB: db}

	trusted, err := httpapi.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Fatal("parse FITAPP_TRUSTED_PROXIES", zap.Error(err))
	}

	api := httpapi.New(probe, version, svc,
		httpapi.WithCookieSecure(cfg.CookieSecure),
		httpapi.WithAllowedOrigins(cfg.AllowedOrigins),
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSec),
		httpapi.WithTrustedProxies(trusted),
		httpapi.WithMaxBodyBytes(int64(cfg.MaxBodyBytes)),
		httpapi.WithLogger(logger),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("grpc listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
		}
		grpcSrv = grpc.NewServer()
		health := httpapi.NewGRPCHealth(probe, logger)
		health.Register(grpcSrv)
		go health.Run(ctx, 5*time.Second)
		go func() {
			logger.Info("grpc health listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("grpc serve", zap.Error(err))
			}
		}()
	}

	go func() {
		logger.Info("starting fitapp-api",
			zap.String("version", version),
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if db != nil {
		_ = db.Close()
	}
	logger.Info("stopped")
}
