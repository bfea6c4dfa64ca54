package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/ringboard/ringboard/internal/config"
	"github.com/ringboard/ringboard/internal/handler"
	"github.com/ringboard/ringboard/internal/oura"
	"github.com/ringboard/ringboard/internal/repository"
	"github.com/ringboard/ringboard/internal/service"
	"github.com/ringboard/ringboard/internal/vault"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	slog.Info("database connected")

	tokenVault, err := vault.New(cfg.TokenCipherKey)
	if err != nil {
		return fmt.Errorf("init token vault: %w", err)
	}

	profileRepo := repository.NewProfileRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)
	friendRepo := repository.NewFriendRepository(db)

	ouraClient := oura.NewClient(cfg.OuraAPIBaseURL, cfg.OuraFetchTimeout)

	tokenSvc := service.NewTokenService(profileRepo, credentialRepo, ouraClient, tokenVault, service.TokenConfig{
		ClientID:     cfg.OuraClientID,
		ClientSecret: cfg.OuraClientSecret,
		RedirectURI:  cfg.OuraRedirectURI,
		AuthURL:      cfg.OuraAuthURL,
		TokenURL:     cfg.OuraTokenURL,
		HTTPTimeout:  cfg.OuraFetchTimeout,
	})
	sessionSvc := service.NewSessionService(cfg.JWTSecret)
	leaderboardSvc := service.NewLeaderboardService(profileRepo, tokenSvc, ouraClient, cfg.LeaderboardWorkers)
	friendSvc := service.NewFriendService(friendRepo, profileRepo)

	authHandler := handler.NewAuthHandler(tokenSvc, sessionSvc, profileRepo)
	dashboardHandler := handler.NewDashboardHandler(leaderboardSvc, friendSvc, profileRepo)
	friendHandler := handler.NewFriendHandler(friendSvc)

	r := chi.NewRouter()

	r.Use(handler.RequestID)
	r.Use(handler.Logger)
	r.Use(handler.Recover)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		handler.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public)
		r.Route("/auth", func(r chi.Router) {
			r.Get("/oura", authHandler.OuraRedirect)
			r.Get("/oura/callback", authHandler.OuraCallback)
			r.Post("/refresh", authHandler.Refresh)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(handler.SessionAuth(sessionSvc))

			r.Get("/auth/me", authHandler.Me)
			r.Delete("/auth/oura", authHandler.Disconnect)

			r.Get("/leaderboard", dashboardHandler.Leaderboard)
			r.Get("/dashboard", dashboardHandler.Dashboard)

			r.Route("/friends", func(r chi.Router) {
				r.Get("/", friendHandler.List)
				r.Post("/", friendHandler.Create)
				r.Delete("/{targetID}", friendHandler.Delete)
			})
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
