package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"realm-rivals/config"
	"realm-rivals/database"
	"realm-rivals/handlers"
	"realm-rivals/realtime"
	"realm-rivals/services"
	"realm-rivals/utils"
	"realm-rivals/workers"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("⚠️  failed to load .env: %v", err)
	}
	cfg := config.Load()

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("failed to load catalog %s: %v", cfg.CatalogPath, err)
		}
		log.Printf("⚠️  catalog %s not found, using built-in defaults", cfg.CatalogPath)
		catalog = config.DefaultCatalog()
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			log.Fatal(err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Avatars go to R2 when configured, else to ./uploads.
	var store utils.ObjectWriter
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Store(ctx, cfg.R2)
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		store = r2
	} else {
		local := utils.NewLocalStore("uploads", "/uploads")
		if err := local.EnsureDir(); err != nil {
			log.Fatal("failed to ensure upload dir:", err)
		}
		store = local
	}

	hub := realtime.NewHub(64)
	sessionService := services.NewSessionService(db, catalog, hub, sessionArchiver(cfg, store))
	matchmakingService := services.NewMatchmakingService(sessionService)
	playerService := services.NewPlayerStateService(sessionService, cfg.MaxMoveSpeed)
	invitationService := services.NewInvitationService(sessionService, cfg.InvitationTTL)
	profileService := services.NewProfileService(db, catalog)
	coinService := services.NewCoinService(db)
	storeService := services.NewStoreService(db, catalog)

	if err := storeService.SyncCatalog(ctx); err != nil {
		log.Fatal(err)
	}

	janitor := workers.NewJanitor(playerService, sessionService, invitationService, workers.JanitorConfig{
		PlayerStaleAfter: cfg.PlayerStaleAfter,
		SessionIdleAfter: cfg.SessionIdleAfter,
	})
	if err := janitor.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer janitor.Stop()

	if cfg.ProfileSyncURL != "" {
		workers.NewProfileSyncWorker(profileService, cfg.ProfileSyncURL, cfg.ServiceToken).Start(ctx)
	}
	if cfg.PaymentSyncURL != "" {
		workers.NewPaymentSyncWorker(coinService, cfg.PaymentSyncURL, cfg.ServiceToken).Start(ctx)
	}

	app := handlers.NewApp(cfg, handlers.Handlers{
		Game: &handlers.GameHandler{
			Catalog:     catalog,
			Matchmaking: matchmakingService,
			Sessions:    sessionService,
			Players:     playerService,
			Hub:         hub,
		},
		Invitations: &handlers.InvitationHandler{Invitations: invitationService},
		Profiles:    &handlers.ProfileHandler{Profiles: profileService, Store: store},
		Store:       &handlers.StoreHandler{Store: storeService, Coins: coinService},
	}, false)
	if !cfg.R2.Enabled() {
		app.Static("/uploads", "./uploads")
	}

	rt := &http.Server{
		Addr:              ":" + cfg.RealtimePort,
		Handler:           realtime.NewServer(hub, playerService, cfg.ServiceToken).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()
	go func() {
		if err := rt.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Realtime server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ Realtime channel on ws://localhost:%s/realtime/sessions/{id}", cfg.RealtimePort)
	log.Printf("✅ CORS configured for origins: %v", cfg.AllowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		log.Printf("Realtime shutdown error: %v", err)
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
}

// sessionArchiver returns the archiver for completed sessions. Archives are only kept
// in R2; without it they are skipped.
func sessionArchiver(cfg config.Config, store utils.ObjectWriter) services.SessionArchiver {
	if !cfg.R2.Enabled() {
		return nil
	}
	return services.NewZstdArchiver(store)
}
