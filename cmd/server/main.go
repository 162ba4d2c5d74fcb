// roofchat - roofing chat widget and admin server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/roofchat/internal/api"
	"github.com/ashureev/roofchat/internal/auth"
	"github.com/ashureev/roofchat/internal/chatapi"
	"github.com/ashureev/roofchat/internal/clock"
	"github.com/ashureev/roofchat/internal/config"
	"github.com/ashureev/roofchat/internal/identity"
	"github.com/ashureev/roofchat/internal/middleware"
	"github.com/ashureev/roofchat/internal/store"
	"github.com/ashureev/roofchat/internal/widget"
	"github.com/ashureev/roofchat/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "chat_api", cfg.ChatAPI.URL)

	// Initialize dependencies.
	backend, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			slog.Error("Failed to close store", "error", closeErr)
		}
	}()

	if err := backend.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	chat := chatapi.New(cfg.ChatAPI.URL,
		chatapi.WithChatPath(cfg.ChatAPI.ChatPath),
		chatapi.WithTimeout(cfg.ChatAPI.Timeout),
	)
	gate := auth.NewGate(
		auth.Credentials{Email: cfg.Admin.Email, Password: cfg.Admin.Password},
		auth.WithTTL(cfg.Admin.TokenTTL),
	)
	local := middleware.LocalStore(backend)

	scheduler := clock.NewReal()
	defer scheduler.Stop()
	registry := widget.NewRegistry()

	// Initialize handlers.
	baseHandler := api.NewHandler(chat, gate, local)
	adminHandler := api.NewAdminHandler(baseHandler)
	publicHandler := api.NewPublicHandler(baseHandler)
	healthHandler := api.NewHealthHandler(backend, registry, cfg.Timeout.HealthCheck)
	wsHandler := widget.NewHandler(scheduler, backend, chat, registry, widget.Config{
		PopupDelay:  cfg.Widget.PopupDelay,
		TypingDelay: cfg.Widget.TypingDelay,
		ReplyDelay:  cfg.Widget.ReplyDelay,
		Logger:      logger,
	}, cfg.WidgetOrigin(), cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	publicHandler.RegisterRoutes(r)
	adminHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/widget", wsHandler.ServeHTTP)

	// Gated admin pages.
	r.With(middleware.GuestOnly(gate, local, "/chats/history")).Get("/login", web.IndexHandler().ServeHTTP)
	r.With(middleware.RequireAuth(gate, local, "/login")).Get("/chats/*", web.IndexHandler().ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WebSocket sessions are long lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store.StartSweeper(ctx, backend, cfg.SweepInterval, cfg.SessionTTL, nil)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
	defer cancel()

	registry.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
