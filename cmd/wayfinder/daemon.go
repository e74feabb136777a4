package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	var interval time.Duration
	var inbox string
	var mergeEvery int

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Ingest, cluster and sync in a loop with configurable interval",
		Long: `Continuously ingest navlog files dropped into an inbox directory, rebuild
themes from newly summarized articles and sync them into the graph.
Handles SIGINT/SIGTERM for graceful shutdown (finishes the current cycle).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			log.Printf("wayfinder daemon: starting with interval %s", interval)

			since := time.Now().Add(-interval)
			cycle := 1
			for {
				start := time.Now()
				log.Printf("wayfinder daemon: cycle %d starting", cycle)

				merge := mergeEvery > 0 && cycle%mergeEvery == 0
				if err := runCycle(ctx, engine, inbox, since, merge); err != nil {
					log.Printf("wayfinder daemon: cycle %d error: %v", cycle, err)
				} else {
					log.Printf("wayfinder daemon: cycle %d completed in %s", cycle, time.Since(start).Round(time.Millisecond))
					since = start
				}

				cycle++

				// Wait for the next tick or a shutdown signal.
				timer := time.NewTimer(interval)
				select {
				case <-sig:
					timer.Stop()
					log.Println("wayfinder daemon: received shutdown signal, exiting")
					return nil
				case <-timer.C:
				}
			}
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 5*time.Minute, "duration between cycles (e.g. 5m, 30s, 1h)")
	cmd.Flags().StringVar(&inbox, "inbox", "", "directory polled for *.json/*.jsonl navlog files")
	cmd.Flags().IntVar(&mergeEvery, "merge-every", 12, "merge duplicate graph nodes every N cycles (0 disables)")
	return cmd
}
