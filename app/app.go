package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"volunteerops/config"
	"volunteerops/db"
	"volunteerops/logger"
	"volunteerops/mailer"
	"volunteerops/session"
	"volunteerops/templates"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// SessionStore is the login session backend; Redis in production.
type SessionStore interface {
	Create(ctx context.Context, id, userID string) (*session.AppSession, error)
	Get(ctx context.Context, id string) (*session.AppSession, error)
	Delete(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	PushFlash(ctx context.Context, id string, f session.Flash) error
	PopFlashes(ctx context.Context, id string) ([]session.Flash, error)
	MarkSeen(ctx context.Context, userID string, window time.Duration) bool
	TTL() time.Duration
}

// App 聚合各依赖
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	WA     *webauthn.WebAuthn
	Config config.Config

	Repo       *db.Repo
	Sessions   SessionStore
	Ceremonies *session.Store
	Mail       *mailer.LoggingMailer
}

func New(cfg config.Config) (*App, error) {
	log := logger.GetLogger(context.Background())

	conn, err := db.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	// --- WebAuthn RP ---
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.SMTP.AppName + " Passkeys",
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn: %w", err)
	}

	tmpl, err := templates.Load(TemplateFuncs())
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logger.Middleware())
	useCORS(r, cfg)
	r.SetHTMLTemplate(tmpl)

	repo := db.NewRepo(conn)
	a := &App{
		Router: r, DB: conn, RDB: rdb, WA: wa, Config: cfg,
		Repo:       repo,
		Sessions:   session.NewAppSessionStore(rdb, cfg.SessionTTL),
		Ceremonies: session.NewStore(rdb, 10*time.Minute),
		Mail:       mailer.NewLoggingMailer(mailer.NewSMTPMailer(cfg.SMTP), repo),
	}
	log.Infof("app ready (env=%s, version=%s)", cfg.Environment, cfg.AppVersion)
	return a, nil
}

func (a *App) Close() {
	_ = a.RDB.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
