package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vivero-tech/viverogo/internal/config"
	"github.com/vivero-tech/viverogo/internal/database"
	"github.com/vivero-tech/viverogo/internal/handlers"
	"github.com/vivero-tech/viverogo/internal/hierarchy"
	"github.com/vivero-tech/viverogo/internal/ingest"
	"github.com/vivero-tech/viverogo/internal/services/printer"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Auto-Migrate Schema (Critical for Zero-Config)
	log.Println("🚀 Synchronizing database schema...")
	if err := db.Migrate(); err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	// 4. Wire the hierarchy store and ingestion pipeline
	store := hierarchy.NewStore(db.DB)
	store.LineBufferM = cfg.Ingest.LineBufferM
	store.PointBufferM = cfg.Ingest.PointBufferM

	loader := ingest.NewLoader(store, ingest.DefaultRules())
	loader.SetQRPrefix(cfg.Ingest.QRPrefix)

	labels := printer.DefaultSheetConfig(cfg.Labels.FacilityName, cfg.Labels.Columns, cfg.Labels.Rows)

	// 5. Set up HTTP router
	router := handlers.NewRouter(store, loader, labels)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on port %s\n", cfg.Port)
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

	// Close database (this also stops embedded PostgreSQL)
	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
