// hunt/leaderboard/provider.go
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/cryptichunt/go-services/shared/models"
)

// RowLister supplies the raw progress rows the ranker orders.
type RowLister interface {
	ListLeaderboardRows(ctx context.Context) ([]models.LeaderboardRow, error)
}

// Cache holds the latest serialized snapshot between recomputations.
type Cache interface {
	Put(ctx context.Context, snapshot []byte) error
	Get(ctx context.Context) ([]byte, error)
}

// Disqualifier reports whether a team is currently disqualified.
type Disqualifier interface {
	IsTeamDisqualified(ctx context.Context, teamID string) (bool, error)
}

// Provider computes ranked leaderboard snapshots: list rows, drop
// disqualified teams, rank, and refresh the cache. The broadcast hub, the
// plain pull endpoint, and the background warmer all go through it.
type Provider struct {
	rows  RowLister
	cache Cache
	dq    Disqualifier
}

// NewProvider creates a new Provider instance.
func NewProvider(rows RowLister, cache Cache, dq Disqualifier) *Provider {
	return &Provider{
		rows:  rows,
		cache: cache,
		dq:    dq,
	}
}

// Snapshot computes a fresh ranked snapshot and refreshes the cache.
// A cache write failure is logged, never surfaced: the snapshot itself is
// still good.
func (p *Provider) Snapshot(ctx context.Context) ([]Entry, error) {
	rows, err := p.rows.ListLeaderboardRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboard rows: %w", err)
	}

	kept := rows[:0]
	for _, row := range rows {
		disqualified, err := p.dq.IsTeamDisqualified(ctx, row.TeamID)
		if err != nil {
			// Fail open: a flag-store hiccup should not hide a team.
			log.Printf("WARNING: Provider: Could not check disqualification for team %s: %v. Including team.", row.TeamID, err)
			disqualified = false
		}
		if !disqualified {
			kept = append(kept, row)
		}
	}

	entries := Rank(kept)

	if data, err := json.Marshal(entries); err != nil {
		log.Printf("WARNING: Provider: Failed to marshal snapshot for caching: %v", err)
	} else if err := p.cache.Put(ctx, data); err != nil {
		log.Printf("WARNING: Provider: Failed to cache snapshot: %v", err)
	}

	return entries, nil
}

// CachedSnapshot serves the latest cached snapshot, falling back to a fresh
// compute when the cache is cold, expired, or unreadable.
func (p *Provider) CachedSnapshot(ctx context.Context) ([]Entry, error) {
	data, err := p.cache.Get(ctx)
	if err == nil {
		var entries []Entry
		if jsonErr := json.Unmarshal(data, &entries); jsonErr == nil {
			return entries, nil
		}
		log.Printf("WARNING: Provider: Cached snapshot is unreadable, recomputing.")
	}
	return p.Snapshot(ctx)
}
