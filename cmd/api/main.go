package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"automationstation.io/internal/audit"
	"automationstation.io/internal/auth"
	"automationstation.io/internal/config"
	"automationstation.io/internal/httpapi"
	"automationstation.io/internal/notify"
	"automationstation.io/internal/obs"
)

var version = "1.2.0"

func main() {
	cfg := config.Load()

	obs.Init()
	obs.InitBuildInfo(version)
	log := obs.InitLogger(cfg.Environment)
	defer func() { _ = log.Sync() }()

	if cfg.JWTSecret == "" {
		log.Fatal("STATION_JWT_SECRET is required")
	}

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatal("open db", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	} else {
		log.Fatal("STATION_PG_DSN is required")
	}

	store := auth.NewPGStore(db)

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		log.Fatal("token service", zap.Error(err))
	}

	recorder := audit.NewRecorder(store.Audit(), log)

	var saml *auth.SAMLProcessor
	if cfg.SSOEnabled {
		saml, err = auth.NewSAMLProcessor(auth.SAMLConfig{
			EntryPoint:   cfg.SAML.EntryPoint,
			Issuer:       cfg.SAML.Issuer,
			Certificate:  cfg.SAML.Certificate,
			CallbackURL:  cfg.SAML.CallbackURL,
			MetadataPath: "/api/auth/saml/metadata",
			Provider:     cfg.SAML.Provider,
			ProviderName: cfg.SAML.Provider,
			DefaultRole:  cfg.DefaultRole,
			CookieSecret: cfg.SessionSecret,
		}, store)
		if err != nil {
			// A misconfigured IdP should not take down local login.
			log.Warn("SSO disabled: SAML configuration invalid", zap.Error(err))
			saml = nil
		}
	}

	slack := notify.NewSlack(cfg.Slack.WebhookURL, cfg.Slack.DefaultChannel)
	if cfg.Slack.Enabled && slack == nil {
		log.Warn("Slack enabled but STATION_SLACK_WEBHOOK_URL is empty; integration disabled")
	}
	if !cfg.Slack.Enabled {
		slack = nil
	}

	api := httpapi.New(httpapi.Options{
		Config:     &cfg,
		Store:      store,
		Tokens:     tokens,
		SAML:       saml,
		Recorder:   recorder,
		Slack:      slack,
		ReadyProbe: httpapi.ReadyProbe{DB: db},
		Version:    version,
		Logger:     log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("starting automation-station-api",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
		zap.Bool("sso_enabled", saml != nil),
		zap.Bool("slack_enabled", slack.Enabled()))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Info("stopped")
}
