// hunt/hub/hub.go
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cryptichunt/go-services/hunt/leaderboard"
	"github.com/google/uuid"
)

// MessageTypeLeaderboardUpdate is the envelope type for every leaderboard
// push, both the initial snapshot on subscribe and subsequent broadcasts.
const MessageTypeLeaderboardUpdate = "LEADERBOARD_UPDATE"

// SnapshotSource computes a fresh ranked leaderboard snapshot.
type SnapshotSource interface {
	Snapshot(ctx context.Context) ([]leaderboard.Entry, error)
}

// Envelope is the wire shape of a leaderboard push.
type Envelope struct {
	Type      string              `json:"type"`
	Data      []leaderboard.Entry `json:"data"`
	Timestamp string              `json:"timestamp"`
}

// Subscriber is one registered consumer of leaderboard updates. Its Send
// channel is buffered; a subscriber that stops draining it is dropped.
type Subscriber struct {
	ID   string
	Send chan []byte
}

// Hub fans leaderboard updates out to subscribers. Progress-change events are
// queued on a buffered channel and drained by a single goroutine, which
// recomputes the full snapshot once per event and broadcasts it to everyone.
// The subscriber registry lock is never held across snapshot computation.
type Hub struct {
	source SnapshotSource

	mu          sync.Mutex
	subscribers map[string]*Subscriber

	events     chan string
	done       chan struct{}
	sendBuffer int
}

// NewHub creates a new Hub instance. eventBuffer bounds the pending
// progress-change queue; sendBuffer sizes each subscriber's send channel.
func NewHub(source SnapshotSource, eventBuffer, sendBuffer int) *Hub {
	return &Hub{
		source:      source,
		subscribers: make(map[string]*Subscriber),
		events:      make(chan string, eventBuffer),
		done:        make(chan struct{}),
		sendBuffer:  sendBuffer,
	}
}

// Run drains the event queue until Stop is called. Call it on its own
// goroutine.
func (h *Hub) Run(ctx context.Context) {
	log.Println("Hub: Broadcast loop started.")
	for {
		select {
		case teamID := <-h.events:
			if err := h.broadcast(ctx); err != nil {
				log.Printf("ERROR: Hub: Failed to broadcast update for team %s: %v", teamID, err)
			}
		case <-h.done:
			log.Println("Hub: Broadcast loop stopped.")
			return
		case <-ctx.Done():
			log.Println("Hub: Broadcast loop stopped (context cancelled).")
			return
		}
	}
}

// Stop terminates the broadcast loop.
func (h *Hub) Stop() {
	close(h.done)
}

// Subscribe registers a new subscriber and queues the current snapshot as its
// first message, so a freshly connected client is never blank. The snapshot
// is computed before the registry lock is taken.
func (h *Hub) Subscribe(ctx context.Context) (*Subscriber, error) {
	initial, err := h.snapshotMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute initial snapshot: %w", err)
	}

	sub := &Subscriber{
		ID:   uuid.New().String(),
		Send: make(chan []byte, h.sendBuffer),
	}
	sub.Send <- initial

	h.mu.Lock()
	h.subscribers[sub.ID] = sub
	count := len(h.subscribers)
	h.mu.Unlock()

	log.Printf("Hub: Subscriber %s registered (%d active).", sub.ID, count)
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its send channel. Unsubscribing
// an unknown or already removed id is a no-op.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
		close(sub.Send)
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		log.Printf("Hub: Subscriber %s removed (%d active).", id, count)
	}
}

// NotifyProgressChanged queues a broadcast for a progress change. It never
// blocks the caller: if the event queue is full the event is dropped and
// logged, and the next drained event re-broadcasts the full state anyway.
func (h *Hub) NotifyProgressChanged(teamID string) {
	select {
	case h.events <- teamID:
	default:
		log.Printf("WARNING: Hub: Event queue full, dropping update for team %s.", teamID)
	}
}

// RequestSnapshot sends a fresh snapshot to a single subscriber, on demand.
func (h *Hub) RequestSnapshot(ctx context.Context, subscriberID string) error {
	message, err := h.snapshotMessage(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	sub, ok := h.subscribers[subscriberID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("subscriber %s not found", subscriberID)
	}
	dropped := !h.trySendLocked(sub, message)
	h.mu.Unlock()

	if dropped {
		log.Printf("WARNING: Hub: Subscriber %s is not draining, dropped it.", subscriberID)
	}
	return nil
}

// broadcast recomputes the snapshot once, marshals it once, and delivers it
// to every subscriber.
func (h *Hub) broadcast(ctx context.Context) error {
	message, err := h.snapshotMessage(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	var dropped []string
	for _, sub := range h.subscribers {
		if !h.trySendLocked(sub, message) {
			dropped = append(dropped, sub.ID)
		}
	}
	h.mu.Unlock()

	for _, id := range dropped {
		log.Printf("WARNING: Hub: Subscriber %s is not draining, dropped it.", id)
	}
	return nil
}

// trySendLocked makes a non-blocking best-effort send. A subscriber whose
// buffer is full is removed and its channel closed: a consumer that cannot
// keep up must not stall the rest. The caller holds h.mu, which also
// serializes closes against concurrent sends.
func (h *Hub) trySendLocked(sub *Subscriber, message []byte) bool {
	select {
	case sub.Send <- message:
		return true
	default:
		delete(h.subscribers, sub.ID)
		close(sub.Send)
		return false
	}
}

func (h *Hub) snapshotMessage(ctx context.Context) ([]byte, error) {
	entries, err := h.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute snapshot: %w", err)
	}
	message, err := json.Marshal(Envelope{
		Type:      MessageTypeLeaderboardUpdate,
		Data:      entries,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return message, nil
}
