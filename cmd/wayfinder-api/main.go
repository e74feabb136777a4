package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/matthewjhunter/wayfinder"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "config file path, .yaml or .toml")
	addr := flag.String("addr", "", "listen address (default: server.addr from config)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("wayfinder-api: .env: %v", err)
	}
	cfg, err := wayfinder.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wayfinder-api: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	engine, err := wayfinder.NewEngine(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wayfinder-api: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newHandler(engine, cfg.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("wayfinder-api: listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("wayfinder-api: %v", err)
		}
	}()

	<-done
	log.Println("wayfinder-api: shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("wayfinder-api: shutdown error: %v", err)
	}
	log.Println("wayfinder-api: stopped")
}

// newHandler wraps the router in CORS, request logging and panic recovery.
func newHandler(engine *wayfinder.Engine, origins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	})
	return c.Handler(logging(recovery(newRouter(engine))))
}
