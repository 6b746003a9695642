// Package app wires the RepTrack server runtime: config, logging, storage,
// the auth API and the calendar integration.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"reptrack/cmd/identity"
	"reptrack/cmd/internal/auth/actiontoken"
	authapi "reptrack/cmd/internal/auth/api"
	"reptrack/cmd/internal/auth/ledger"
	"reptrack/cmd/internal/auth/mail"
	"reptrack/cmd/internal/auth/token"
	"reptrack/cmd/internal/gcal"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// App is the RepTrack server runtime.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool
	rdb       *redis.Client

	metrics *prometheus.Registry

	auth     *authapi.Handler
	calendar *gcal.API
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}
	secret := cfg.SecretKey
	if secret == "" {
		s, err := ephemeralSecret()
		if err != nil {
			return nil, err
		}
		secret = s
		log.Warn("secret.ephemeral", "reason", "REPTRACK_SECRET_KEY not set")
	}

	ctx := context.Background()

	var (
		accounts identity.Store
		revoked  ledger.Store
		dbPool   *pgxpool.Pool
	)
	dbEnabled := cfg.DatabaseURL != ""
	if dbEnabled {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := Migrate(ctx, cfg); err != nil {
			pool.Close()
			return nil, err
		}
		accountStore, err := identity.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		revokedStore, err := ledger.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		accounts = accountStore
		revoked = revokedStore
		dbPool = pool
		log.Info("db.enabled.postgres_store")
	} else {
		accounts = identity.NewMemoryStore()
		revoked = ledger.NewMemoryStore()
		log.Info("db.disabled.inmemory_store")
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		log.Info("redis.enabled", "addr", cfg.RedisAddr)
	}

	tokenCfg := token.DefaultConfig()
	tokenCfg.Secret = []byte(secret)
	tokenCfg.AccessTTL = cfg.AccessTTL
	tokenCfg.RefreshTTL = cfg.RefreshTTL
	tokens, err := token.NewManager(tokenCfg)
	if err != nil {
		return nil, err
	}

	actionCfg := actiontoken.DefaultConfig()
	actionCfg.Secret = []byte(secret)
	actions, err := actiontoken.NewCodec(actionCfg)
	if err != nil {
		return nil, err
	}

	var mailer mail.Mailer = mail.LogMailer{Log: log}
	if cfg.SMTPHost != "" {
		m, err := mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			return nil, err
		}
		mailer = m
		log.Info("mail.enabled.smtp", "host", cfg.SMTPHost)
	} else {
		log.Info("mail.disabled.log_only")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	authCfg := authapi.DefaultConfig()
	authCfg.BackendURL = cfg.BackendURL
	authCfg.FrontendURL = cfg.FrontendURL
	authCfg.CookieSecure = cfg.CookieSecure
	authCfg.TrustProxy = cfg.TrustProxy
	authCfg.LoginMax = cfg.LoginMax
	authCfg.LoginWindow = cfg.LoginWindow

	authOpts := []authapi.HandlerOption{
		authapi.WithMailer(mailer),
		authapi.WithMetrics(reg),
	}
	if rdb != nil {
		authOpts = append(authOpts,
			authapi.WithLoginLimiter(authapi.NewLoginLimiter(log, rdb, cfg.LoginMax, cfg.LoginWindow)))
	}
	auth, err := authapi.NewHandler(log, authCfg, accounts, tokens, revoked, actions, authOpts...)
	if err != nil {
		return nil, err
	}

	gcalCfg := gcal.DefaultConfig()
	gcalCfg.ClientID = cfg.GoogleClientID
	gcalCfg.ClientSecret = cfg.GoogleClientSecret
	gcalCfg.RedirectURL = cfg.GoogleRedirectURL
	if gcalCfg.RedirectURL == "" {
		gcalCfg.RedirectURL = cfg.BackendURL + "/api/v1/workouts/google-calendar/oauth2callback/"
	}
	gcalCfg.FrontendProfileURL = cfg.FrontendProfileURL

	var states gcal.StateStore
	if rdb != nil {
		states = gcal.NewRedisStateStore(rdb)
	} else {
		states = gcal.NewMemoryStateStore()
	}
	gcalMgr, err := gcal.NewManager(log, gcalCfg, accounts, states)
	if err != nil {
		return nil, err
	}
	calendar, err := gcal.NewAPI(log, gcalMgr, auth.RequireAuth)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		rdb:       rdb,
		metrics:   reg,
		auth:      auth,
		calendar:  calendar,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or
// fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.metrics, a.auth, a.calendar)

	var handler http.Handler = mux
	handler = WithSecurityHeaders(handler)
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.close()

	a.log.Info("server.stopped")
	return nil
}

func (a *App) close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
