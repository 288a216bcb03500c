package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/errprop/errprop/pkg/slides"
	"github.com/errprop/errprop/server/internal/api"
	"github.com/errprop/errprop/server/internal/auth"
	"github.com/errprop/errprop/server/internal/config"
	"github.com/errprop/errprop/server/internal/metrics"
	"github.com/errprop/errprop/server/internal/store"
	"github.com/errprop/errprop/server/internal/web"
	"github.com/errprop/errprop/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML, or TOML for *.toml); empty uses built-in defaults")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("errprop-server starting", "config", *configPath)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Log.SlogLevel())

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"session_ttl", cfg.Session.TTL,
		"max_sessions", cfg.Session.MaxSessions,
		"strict_units", cfg.Calculator.StrictUnits,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deck, err := slides.Load()
	if err != nil {
		slog.Error("failed to load slide deck", "err", err)
		os.Exit(1)
	}

	reg := metrics.New()

	// Session store with background TTL eviction.
	st := store.New(store.Options{
		TTL:         cfg.Session.TTL,
		MaxSessions: cfg.Session.MaxSessions,
		Policy:      cfg.Policy(),
		Seed:        cfg.Calculator.InitialTerm.Input(),
	})
	go st.Run(ctx)

	presenter := api.NewPresenter(cfg.Display.Precision())

	// WebSocket hub: pushes session state on change and every interval.
	hub := ws.New(st, presenter, cfg.WS.BroadcastInterval)
	go hub.Run(ctx)

	st.OnEvict(func(id string) {
		reg.SessionsEvicted.Inc()
		hub.Notify(id)
	})
	if err := reg.GaugeFunc("errprop_sessions_active", "Live calculator sessions.", func() float64 {
		return float64(st.LiveCount())
	}); err != nil {
		slog.Error("failed to register metrics", "err", err)
		os.Exit(1)
	}
	if err := reg.GaugeFunc("errprop_ws_clients", "Connected WebSocket clients.", func() float64 {
		return float64(hub.Count())
	}); err != nil {
		slog.Error("failed to register metrics", "err", err)
		os.Exit(1)
	}

	apiHandler := api.New(api.Options{
		Store:     st,
		Presenter: presenter,
		Metrics:   reg,
		Notifier:  hub,
		Deck:      deck,
		Auth: auth.APIKey(
			cfg.Server.Auth.Mode,
			cfg.Server.Auth.EffectiveHeader(),
			cfg.Server.Auth.Key(),
		),
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
	})

	webHandler, err := web.New(web.Options{
		Store:       st,
		Presenter:   presenter,
		Metrics:     reg,
		Notifier:    hub,
		Deck:        deck,
		DefaultUnit: cfg.Calculator.DefaultUnit,
	})
	if err != nil {
		slog.Error("failed to build web UI", "err", err)
		os.Exit(1)
	}

	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(c *config.Config) {
				st.SetPolicy(c.Policy())
				presenter.SetPrecision(c.Display.Precision())
				webHandler.SetDefaultUnit(c.Calculator.DefaultUnit)
				level.Set(c.Log.SlogLevel())
				slog.Info("config applied",
					"strict_units", c.Calculator.StrictUnits,
					"allow_negative_errors", c.Calculator.AllowNegativeErrors,
					"max_terms", c.Session.MaxTerms,
				)
			})
			if err != nil {
				slog.Warn("config watch disabled", "path", *configPath, "err", err)
			}
		}()
	}

	wsRouter := chi.NewRouter()
	wsRouter.Get("/ws/sessions/{id}", hub.ServeHTTP)

	// Combined HTTP server: UI, REST API, WebSocket hub and metrics on HTTPPort.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", apiHandler)
	httpMux.Handle("/ws/", wsRouter)
	httpMux.Handle("/metrics", reg)
	httpMux.Handle("/", webHandler)

	var handler http.Handler = httpMux
	handler = middleware.Recoverer(handler)
	handler = api.AccessLog(handler)
	handler = middleware.RealIP(handler)
	handler = middleware.RequestID(handler)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("errprop-server shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

// loadConfig returns the defaults when path is empty or names a file that
// does not exist yet.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Defaults(), nil
	}
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config file not found, using defaults", "path", path)
		return config.Defaults(), nil
	}
	return cfg, err
}
