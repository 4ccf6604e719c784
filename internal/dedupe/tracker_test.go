package dedupe

import (
	"context"
	"testing"
)

func TestLRUTrackerSeen(t *testing.T) {
	ctx := context.Background()
	tracker, err := NewLRUTracker(16)
	if err != nil {
		t.Fatalf("NewLRUTracker() error = %v", err)
	}

	seen, err := tracker.Seen(ctx, "Person", "p:1")
	if err != nil {
		t.Fatalf("Seen() error = %v", err)
	}
	if seen {
		t.Error("Expected first sighting to report unseen")
	}

	seen, err = tracker.Seen(ctx, "Person", "p:1")
	if err != nil {
		t.Fatalf("Seen() error = %v", err)
	}
	if !seen {
		t.Error("Expected second sighting to report seen")
	}

	// The same URI under another label is a different entity.
	seen, err = tracker.Seen(ctx, "Paper", "p:1")
	if err != nil {
		t.Fatalf("Seen() error = %v", err)
	}
	if seen {
		t.Error("Expected a different label to report unseen")
	}
}

func TestLRUTrackerReset(t *testing.T) {
	ctx := context.Background()
	tracker, err := NewLRUTracker(16)
	if err != nil {
		t.Fatalf("NewLRUTracker() error = %v", err)
	}

	if _, err := tracker.Seen(ctx, "Person", "p:1"); err != nil {
		t.Fatalf("Seen() error = %v", err)
	}
	if err := tracker.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	seen, err := tracker.Seen(ctx, "Person", "p:1")
	if err != nil {
		t.Fatalf("Seen() error = %v", err)
	}
	if seen {
		t.Error("Expected a reset tracker to forget the URI")
	}
}

func TestLRUTrackerEvictionForgetsOldEntries(t *testing.T) {
	ctx := context.Background()
	tracker, err := NewLRUTracker(2)
	if err != nil {
		t.Fatalf("NewLRUTracker() error = %v", err)
	}

	tracker.Seen(ctx, "Person", "p:1")
	tracker.Seen(ctx, "Person", "p:2")
	tracker.Seen(ctx, "Person", "p:3") // evicts p:1

	seen, _ := tracker.Seen(ctx, "Person", "p:1")
	if seen {
		t.Error("Expected evicted URI to report unseen again")
	}
}
