package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abhayjain-py/deepshield/internal/config"
	"github.com/Abhayjain-py/deepshield/internal/shieldapi"
)

func main() {
	cfg := config.LoadServer()

	log.Printf("Starting DeepShield API...")
	log.Printf("Listen address: %s", cfg.ListenAddr)
	log.Printf("Database: %s", cfg.DatabasePath)

	store, err := shieldapi.NewStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()

	h := shieldapi.NewHandler(store, cfg)
	e := shieldapi.NewServer(h)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down DeepShield API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shut down gracefully: %v", err)
	}
}
