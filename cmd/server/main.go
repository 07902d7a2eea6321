package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"noindex-seo/internal/admin"
	"noindex-seo/internal/cache"
	"noindex-seo/internal/classifier"
	"noindex-seo/internal/config"
	"noindex-seo/internal/crawler"
	"noindex-seo/internal/metrics"
	"noindex-seo/internal/middleware"
	"noindex-seo/internal/robots"
	"noindex-seo/internal/settings"
	"noindex-seo/internal/store"
	"noindex-seo/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "config file (yaml)")
	flag.Parse()

	cfg, v, err := config.Load(*configPath)
	if err != nil {
		logger.New().WithError(err).Errorf("load config")
		os.Exit(1)
	}
	l := logger.NewWithConfig(logConfig(cfg.Log))

	db, err := store.Open(store.OpenOptions{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		l.WithError(err).Errorf("open database")
		os.Exit(1)
	}
	st := store.NewGorm(db)

	var c cache.Cache = cache.NewMemory()
	if cfg.Cache.Driver == "redis" {
		rc, err := cache.NewRedis(cache.RedisOptions{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			Prefix:   "noindex-seo:",
		})
		if err != nil {
			l.WithError(err).Errorf("connect cache")
			os.Exit(1)
		}
		defer rc.Close()
		c = rc
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	svc := settings.NewService(st, st, c,
		settings.WithTTL(cfg.Cache.TTL),
		settings.WithLogger(l),
		settings.WithMetrics(m),
	)
	if err := svc.Activate(context.Background()); err != nil {
		l.WithError(err).Errorf("activate settings")
		os.Exit(1)
	}

	cl, err := classifier.New(cfg.Routes)
	if err != nil {
		l.WithError(err).Errorf("load routes")
		os.Exit(1)
	}
	rb := middleware.NewRobots(svc, robots.NewEngine(nil), cl,
		middleware.WithLogger(l),
		middleware.WithMetrics(m),
		middleware.WithMaxBody(cfg.Server.MaxBodyBytes),
	)

	auth, err := authenticator(cfg.Security, l)
	if err != nil {
		l.WithError(err).Errorf("configure admin auth")
		os.Exit(1)
	}

	var integrations atomic.Pointer[[]string]
	active := cfg.Integrations.Active
	integrations.Store(&active)

	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	admin.NewHandler(admin.Deps{
		Settings:     svc,
		Auth:         auth,
		Robots:       rb,
		Auditor:      crawler.NewAuditor(crawler.NewHTTPClient(15*time.Second, 5*time.Second, 5*1024*1024), 20*time.Second),
		Integrations: func() []string { return *integrations.Load() },
		Log:          l,
	}).Register(g)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.WithContext(r.Context()).Exec("SELECT 1").Error; err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/admin/", g)

	if cfg.Server.Upstream != "" {
		upstream, err := url.Parse(cfg.Server.Upstream)
		if err != nil {
			l.WithError(err).Errorf("parse upstream %q", cfg.Server.Upstream)
			os.Exit(1)
		}
		mux.Handle("/", rb.Handler(newProxy(upstream, l)))
	} else {
		l.Warnf("no upstream configured, only /admin, /health and /metrics are served")
	}

	config.Watch(v, func(next *config.Config) {
		l.SetLevel(next.Log.Level)
		if cl, err := classifier.New(next.Routes); err != nil {
			l.WithError(err).Warnf("config reload: keeping previous routes")
		} else {
			rb.SetClassifier(cl)
		}
		active := next.Integrations.Active
		integrations.Store(&active)
		l.Infof("config reloaded from %s", v.ConfigFileUsed())
	}, func(err error) {
		l.WithError(err).Warnf("config reload rejected")
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      middleware.LogRequest(l, m, mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		l.Infof("server listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			l.Errorf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	l.Infof("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	l.Infof("bye")
}

func logConfig(c config.LogConfig) logger.Config {
	return logger.Config{
		Level:      c.Level,
		Format:     c.Format,
		FilePath:   c.FilePath,
		MaxSizeMB:  c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAge,
	}
}

func authenticator(c config.SecurityConfig, l *logger.Logger) (*admin.Authenticator, error) {
	secret := c.JWTSecret
	if secret == "" {
		var err error
		if secret, err = admin.RandomSecret(); err != nil {
			return nil, err
		}
		l.Warnf("security.jwt_secret is not set, admin tokens will not survive a restart")
	}
	return admin.NewAuthenticator(secret, c.Issuer, c.TokenTTL, c.NonceTTL)
}

// newProxy forwards to the origin with compression negotiated end to end, so
// HTML arrives gzip or identity encoded.
func newProxy(upstream *url.URL, l *logger.Logger) *httputil.ReverseProxy {
	p := httputil.NewSingleHostReverseProxy(upstream)
	director := p.Director
	p.Director = func(r *http.Request) {
		director(r)
		r.Host = upstream.Host
		if ae := r.Header.Get("Accept-Encoding"); ae != "" {
			r.Header.Set("Accept-Encoding", "gzip")
		}
	}
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		l.WithError(err).Errorf("proxy %s", r.URL.Path)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream unavailable"})
	}
	return p
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
