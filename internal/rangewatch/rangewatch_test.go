package rangewatch

import (
	"context"
	"testing"
	"time"

	"rangestream/internal/rangeset"
)

func TestWatch_LatestReflectsPublish(t *testing.T) {
	w := New()
	w.Publish(rangeset.Range{Start: 0, End: 10})
	if got := w.Latest(); got != (rangeset.Range{Start: 0, End: 10}) {
		t.Fatalf("got %v", got)
	}
}

func TestReceiver_BlockingWaitForUnblocksOnPublish(t *testing.T) {
	w := New()
	r := w.Subscribe()

	done := make(chan error, 1)
	go func() {
		done <- r.BlockingWaitFor(context.Background(), 50)
	}()

	select {
	case <-done:
		t.Fatal("should block until needed position is covered")
	case <-time.After(20 * time.Millisecond):
	}

	w.Publish(rangeset.Range{Start: 0, End: 100})
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("BlockingWaitFor did not unblock")
	}
}

func TestReceiver_BlockingWaitForAlreadySatisfied(t *testing.T) {
	w := New()
	w.Publish(rangeset.Range{Start: 0, End: 100})
	r := w.Subscribe()
	if err := r.BlockingWaitFor(context.Background(), 50); err != nil {
		t.Fatal(err)
	}
}

func TestReceiver_BlockingWaitForContextCancelled(t *testing.T) {
	w := New()
	r := w.Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.BlockingWaitFor(ctx, 50); err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestReceiver_IndependentSubscribers(t *testing.T) {
	w := New()
	r1 := w.Subscribe()
	r2 := w.Subscribe()

	w.Publish(rangeset.Range{Start: 0, End: 10})

	if err := r1.BlockingWaitFor(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	if err := r2.BlockingWaitFor(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
}
