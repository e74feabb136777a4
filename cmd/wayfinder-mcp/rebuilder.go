package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/matthewjhunter/wayfinder"
)

// rebuilder runs a background theme-build loop over recently updated
// articles.
type rebuilder struct {
	engine   *wayfinder.Engine
	interval time.Duration

	mu    sync.Mutex
	since time.Time
	done  chan struct{}
}

func newRebuilder(engine *wayfinder.Engine, interval time.Duration) *rebuilder {
	return &rebuilder{
		engine:   engine,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// start launches the background loop. It builds immediately, then on each
// tick of the configured interval.
func (b *rebuilder) start(ctx context.Context) {
	go b.loop(ctx)
	log.Printf("rebuilder: started (interval=%s)", b.interval)
}

func (b *rebuilder) stop() {
	close(b.done)
	log.Printf("rebuilder: stopped")
}

// build clusters articles updated since the last successful build, or
// within the last interval on the first run. Shared with the themes_build
// tool, so runs are serialized.
func (b *rebuilder) build(ctx context.Context) (*wayfinder.ThemeBuildResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	since := b.since
	if since.IsZero() {
		since = start.Add(-b.interval)
	}

	result, err := b.engine.BuildThemes(ctx, wayfinder.ThemeBuildRequest{Since: since})
	if err != nil {
		return result, err
	}
	b.since = start

	log.Printf("rebuilder: %d articles -> %d themes", result.Articles, len(result.Themes))
	return result, nil
}

func (b *rebuilder) loop(ctx context.Context) {
	if _, err := b.build(ctx); err != nil {
		log.Printf("rebuilder: initial build error: %v", err)
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.build(ctx); err != nil {
				log.Printf("rebuilder: build error: %v", err)
			}
		}
	}
}
