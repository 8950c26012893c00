package hub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cryptichunt/go-services/hunt/leaderboard"
)

type fakeSource struct {
	entries []leaderboard.Entry
	err     error
}

func (f *fakeSource) Snapshot(ctx context.Context) ([]leaderboard.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func sampleEntries() []leaderboard.Entry {
	return []leaderboard.Entry{
		{TeamID: "a", TeamName: "Alpha", TotalScore: 200, Rank: 1},
		{TeamID: "b", TeamName: "Bravo", TotalScore: 100, Rank: 2},
	}
}

func receiveEnvelope(t *testing.T, sub *Subscriber) Envelope {
	t.Helper()
	select {
	case raw, ok := <-sub.Send:
		if !ok {
			t.Fatal("send channel closed while waiting for a message")
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("malformed envelope: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a message")
	}
	return Envelope{}
}

func expectNoMessage(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case raw, ok := <-sub.Send:
		if ok {
			t.Fatalf("unexpected message: %s", raw)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	h := NewHub(&fakeSource{entries: sampleEntries()}, 16, 4)

	sub, err := h.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer h.Unsubscribe(sub.ID)

	env := receiveEnvelope(t, sub)
	if env.Type != MessageTypeLeaderboardUpdate {
		t.Fatalf("expected %s, got %s", MessageTypeLeaderboardUpdate, env.Type)
	}
	if len(env.Data) != 2 || env.Data[0].TeamID != "a" {
		t.Fatalf("unexpected snapshot: %+v", env.Data)
	}
	if env.Timestamp == "" {
		t.Fatal("expected a timestamp on the envelope")
	}
}

func TestSubscribeFailsWhenSnapshotFails(t *testing.T) {
	h := NewHub(&fakeSource{err: errors.New("store down")}, 16, 4)

	if _, err := h.Subscribe(context.Background()); err == nil {
		t.Fatal("expected subscribe to surface the snapshot failure")
	}
}

func TestNotifyBroadcastsToAllSubscribers(t *testing.T) {
	h := NewHub(&fakeSource{entries: sampleEntries()}, 16, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)
	defer h.Stop()

	sub1, err := h.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sub2, err := h.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Drain the initial snapshots.
	receiveEnvelope(t, sub1)
	receiveEnvelope(t, sub2)

	h.NotifyProgressChanged("a")

	for _, sub := range []*Subscriber{sub1, sub2} {
		env := receiveEnvelope(t, sub)
		if env.Type != MessageTypeLeaderboardUpdate {
			t.Fatalf("expected %s, got %s", MessageTypeLeaderboardUpdate, env.Type)
		}
		if len(env.Data) != 2 {
			t.Fatalf("unexpected snapshot: %+v", env.Data)
		}
	}
}

func TestUnsubscribeIsIdempotentAndStopsDelivery(t *testing.T) {
	h := NewHub(&fakeSource{entries: sampleEntries()}, 16, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)
	defer h.Stop()

	sub, err := h.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	receiveEnvelope(t, sub)

	h.Unsubscribe(sub.ID)
	h.Unsubscribe(sub.ID)
	h.Unsubscribe("never-existed")

	h.NotifyProgressChanged("a")
	expectNoMessage(t, sub)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	h := NewHub(&fakeSource{entries: sampleEntries()}, 16, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)
	defer h.Stop()

	slow, err := h.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	healthy, err := h.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	receiveEnvelope(t, healthy)

	// The slow subscriber never drains its initial snapshot, so its buffer
	// of one is already full. The next broadcast must drop it and still
	// reach the healthy one.
	h.NotifyProgressChanged("a")
	receiveEnvelope(t, healthy)

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-slow.Send:
			if !ok {
				return // dropped, channel closed
			}
		case <-deadline:
			t.Fatal("slow subscriber was never dropped")
		}
	}
}

func TestRequestSnapshotTargetsOneSubscriber(t *testing.T) {
	h := NewHub(&fakeSource{entries: sampleEntries()}, 16, 4)

	sub1, err := h.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sub2, err := h.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	receiveEnvelope(t, sub1)
	receiveEnvelope(t, sub2)

	if err := h.RequestSnapshot(context.Background(), sub1.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env := receiveEnvelope(t, sub1)
	if env.Type != MessageTypeLeaderboardUpdate {
		t.Fatalf("expected %s, got %s", MessageTypeLeaderboardUpdate, env.Type)
	}
	expectNoMessage(t, sub2)
}

func TestRequestSnapshotUnknownSubscriber(t *testing.T) {
	h := NewHub(&fakeSource{entries: sampleEntries()}, 16, 4)

	if err := h.RequestSnapshot(context.Background(), "ghost"); err == nil {
		t.Fatal("expected an error for an unknown subscriber")
	}
}

func TestNotifyNeverBlocksWhenQueueIsFull(t *testing.T) {
	// No Run goroutine draining, tiny queue: every call past the first must
	// drop rather than block.
	h := NewHub(&fakeSource{entries: sampleEntries()}, 1, 4)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.NotifyProgressChanged("a")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NotifyProgressChanged blocked on a full queue")
	}
}
