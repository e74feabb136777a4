// wayfinder-mcp is a standalone MCP server over the wayfinder store. It
// serves theme and article lookup tools over stdio, and can rebuild themes
// in the background while it runs.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/matthewjhunter/wayfinder"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "config file path, .yaml or .toml")
	buildEvery := flag.Duration("build-every", 0, "rebuild themes in the background at this interval (0 disables)")
	flag.Parse()

	log.SetOutput(os.Stderr)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("wayfinder-mcp: .env: %v", err)
	}
	cfg, err := wayfinder.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	engine, err := wayfinder.NewEngine(cfg)
	if err != nil {
		log.Fatalf("create wayfinder engine: %v", err)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := newServer(engine)
	srv.rebuilder = newRebuilder(engine, time.Hour)
	if *buildEvery > 0 {
		srv.rebuilder.interval = *buildEvery
		srv.rebuilder.start(ctx)
		defer srv.rebuilder.stop()
	}

	if err := srv.run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
