package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xelth-com/stocktakego/internal/app"
	"github.com/xelth-com/stocktakego/internal/buildinfo"
	"github.com/xelth-com/stocktakego/internal/config"
	"github.com/xelth-com/stocktakego/internal/handlers"
	"github.com/xelth-com/stocktakego/internal/models"
	"github.com/xelth-com/stocktakego/internal/odoo"
	"github.com/xelth-com/stocktakego/internal/storage"
	"github.com/xelth-com/stocktakego/internal/websocket"
)

func main() {
	log.Printf("📦 stocktake %s (commit %s)", buildinfo.Version, buildinfo.CommitHash)

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Open the session store
	store, err := storage.Open(cfg.StorePath)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}

	// Prefill the connection config for kiosk setups, without clobbering
	// whatever the user last entered.
	if cfg.Odoo.URL != "" {
		if _, ok := store.Config(); !ok {
			store.SetConfig(&models.ConnectionConfig{
				URL:      cfg.Odoo.URL,
				Database: cfg.Odoo.Database,
				Username: cfg.Odoo.Username,
				Password: cfg.Odoo.Password,
			})
		}
	}

	// 3. Wire the Odoo client and the application state layer
	client := odoo.NewClient(store)

	hub := websocket.NewHub()
	go hub.Run()

	application := app.New(client, store, hub)

	// 4. Cold-start session restore. A dead or absent session is
	// expected here; the app just starts logged out.
	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 15*time.Second)
	if application.RestoreSession(restoreCtx) {
		log.Println("🔑 Previous session restored")
	} else {
		log.Println("👤 Starting logged out")
	}
	cancelRestore()

	// 5. Set up HTTP router
	router := handlers.NewRouter(application, hub)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Stock-take client starting on port %s\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sig := <-shutdown
	log.Printf("\n⚠️  Received signal: %v. Shutting down gracefully...\n", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
