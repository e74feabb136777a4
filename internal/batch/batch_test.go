package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRun_CountsOutcomes(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	var order []int
	rep, results := Run(context.Background(), items, Options{}, func(_ context.Context, n int) error {
		order = append(order, n)
		switch n {
		case 2:
			return errors.New("boom")
		case 4:
			return fmt.Errorf("nothing to do: %w", ErrSkip)
		}
		return nil
	})

	if rep.Processed != 3 || rep.Errors != 1 || rep.Skipped != 1 {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Failures) != 1 || rep.Failures[0] != "item 1: boom" {
		t.Errorf("failures = %v", rep.Failures)
	}
	for i, want := range items {
		if order[i] != want {
			t.Fatalf("items processed out of order: %v", order)
		}
	}
	if results[1].Status != StatusFailed || results[1].Err == nil {
		t.Errorf("result[1] = %+v", results[1])
	}
	if results[3].Status != StatusSkipped || results[4].Status != StatusOK {
		t.Errorf("results = %+v", results)
	}
}

func TestRun_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	rep, results := Run(ctx, []string{"a", "b", "c"}, Options{}, func(context.Context, string) error {
		calls++
		cancel()
		return nil
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if rep.Processed != 1 || rep.Skipped != 2 {
		t.Errorf("report = %+v", rep)
	}
	if results[2].Item != "c" || results[2].Status != StatusSkipped {
		t.Errorf("result[2] = %+v", results[2])
	}
}

func TestRun_RespectsDeadlineMargin(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	calls := 0
	rep, _ := Run(ctx, []int{1, 2}, Options{Margin: 2 * time.Minute}, func(context.Context, int) error {
		calls++
		return nil
	})
	if calls != 0 || rep.Skipped != 2 {
		t.Errorf("nothing should run inside the margin: calls=%d report=%+v", calls, rep)
	}
}

func TestStatusString(t *testing.T) {
	if StatusOK.String() != "ok" || StatusFailed.String() != "failed" || StatusSkipped.String() != "skipped" {
		t.Error("unexpected status names")
	}
	if Status(9).String() != "Status(9)" {
		t.Errorf("unknown status = %s", Status(9))
	}
}
