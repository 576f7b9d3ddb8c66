package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/25kamalesh/YapOps/internal/delivery"
	"github.com/25kamalesh/YapOps/internal/lifecycle"
	"github.com/25kamalesh/YapOps/internal/metrics"
	"github.com/25kamalesh/YapOps/internal/presence"
	"github.com/25kamalesh/YapOps/internal/router"
	"github.com/25kamalesh/YapOps/internal/server/middleware"
	"github.com/25kamalesh/YapOps/internal/store"
	"github.com/25kamalesh/YapOps/pkg/config"
	"github.com/25kamalesh/YapOps/pkg/state"
	"github.com/25kamalesh/YapOps/pkg/state/registry"
)

type App struct {
	logger    *slog.Logger
	config    *config.Config
	registry  state.Registry
	lifecycle *lifecycle.Manager
	presence  *presence.Broadcaster
	delivery  *delivery.Router
	events    *router.EventRouter
	store     store.Store
	metrics   *metrics.Metrics

	wg         sync.WaitGroup
	http       *http.Server
	metricsSrv *http.Server

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, st store.Store, m *metrics.Metrics) *App {
	reg := registry.NewInMemory(logger)
	broadcaster := presence.NewBroadcaster(reg, m, logger)
	manager := lifecycle.NewManager(reg, broadcaster, m, logger)
	deliveryRouter := delivery.NewRouter(reg, m, logger)
	eventRouter := router.NewEventRouter(st, deliveryRouter, logger)

	app := &App{
		logger:    logger,
		config:    cfg,
		registry:  reg,
		lifecycle: manager,
		presence:  broadcaster,
		delivery:  deliveryRouter,
		events:    eventRouter,
		store:     st,
		metrics:   m,
		ctx:       rootCtx,
	}

	connCounter := func(userID string) int {
		return reg.ConnectionCount(state.UserID(userID))
	}
	// Cycle mode closes the user's oldest connection to make room.
	connCycler := func(userID string) {
		oldest, found := reg.OldestConnection(state.UserID(userID))
		if found {
			logger.Info("Cycling connection: closing oldest",
				slog.String("userID", userID),
				slog.String("connID", oldest.ID.String()))
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	authChain := func(h http.Handler, extra ...middleware.Middleware) http.Handler {
		mws := []middleware.Middleware{
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger, m),
			middleware.NewAuthMiddleware(logger, cfg.Server.Auth.JWTSecret, cfg.Server.Auth.CookieName),
		}
		mws = append(mws, extra...)
		return middleware.Chain(h, mws...)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", authChain(
		http.HandlerFunc(app.upgradeHandler),
		middleware.NewConnectionLimiter(logger, connCounter, connCycler, cfg.Server.ConnectionLimit),
	))
	mux.Handle("GET /api/v1/messages/{peer}", authChain(http.HandlerFunc(app.historyHandler)))
	mux.Handle("POST /api/v1/messages/{peer}", authChain(http.HandlerFunc(app.sendHandler)))
	mux.Handle("GET /api/v1/presence", authChain(http.HandlerFunc(app.presenceHandler)))
	mux.HandleFunc("GET /healthz", app.healthHandler)

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", m.Handler())
	app.metricsSrv = &http.Server{Addr: cfg.Metrics.Address, Handler: metricsMux}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Metrics server starting", slog.String("addr", a.metricsSrv.Addr))
		if err := a.metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

// Shutdown runs the graceful shutdown sequence: stop accepting requests,
// close all live WebSocket connections, then wait for their goroutines.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var finalErr error
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		finalErr = err
	}
	if err := a.metricsSrv.Shutdown(shutdownCtx); err != nil && finalErr == nil {
		finalErr = err
	}

	a.logger.Info("Closing all active connections...")
	a.lifecycle.Shutdown(errors.New("graceful shutdown"))

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()

	if err := a.store.Close(); err != nil && finalErr == nil {
		finalErr = err
	}
	if finalErr != nil {
		return finalErr
	}
	a.logger.Info("Server shut down gracefully.")
	return nil
}
