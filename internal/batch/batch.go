// Package batch drives a per-item operation over a sequence, collecting
// successes and failures instead of stopping at the first error.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrSkip may be returned by an item function to mark the item skipped
// rather than failed.
var ErrSkip = errors.New("skip item")

type Status int

const (
	StatusOK Status = iota
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result is the outcome for one item.
type Result[T any] struct {
	Item   T
	Status Status
	Err    error
}

// Report summarizes a run.
type Report struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Errors    int      `json:"errors"`
	Failures  []string `json:"failures,omitempty"`
}

type Options struct {
	// Margin stops admitting items once the context deadline is closer
	// than this.
	Margin time.Duration
	// Label prefixes log lines and failure messages.
	Label string
}

// Run calls fn for each item in order. Items that are never started
// because the context ended or its deadline is near count as skipped.
func Run[T any](ctx context.Context, items []T, opts Options, fn func(context.Context, T) error) (Report, []Result[T]) {
	var rep Report
	results := make([]Result[T], len(items))
	label := opts.Label
	if label == "" {
		label = "batch"
	}

	stopped := false
	for i, item := range items {
		results[i].Item = item
		if !stopped && !admit(ctx, opts.Margin) {
			stopped = true
			log.Printf("%s: stopping early, %d of %d items left", label, len(items)-i, len(items))
		}
		if stopped {
			results[i].Status = StatusSkipped
			rep.Skipped++
			continue
		}

		err := fn(ctx, item)
		switch {
		case err == nil:
			results[i].Status = StatusOK
			rep.Processed++
		case errors.Is(err, ErrSkip):
			results[i].Status = StatusSkipped
			rep.Skipped++
		default:
			results[i].Status = StatusFailed
			results[i].Err = err
			rep.Errors++
			rep.Failures = append(rep.Failures, fmt.Sprintf("item %d: %v", i, err))
			log.Printf("%s: item %d: %v", label, i, err)
		}
	}
	return rep, results
}

func admit(ctx context.Context, margin time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < margin {
		return false
	}
	return true
}
