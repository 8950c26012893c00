// hunt/warmer/leaderboard_warmer.go
package warmer

import (
	"context"
	"log"
	"time"

	"github.com/cryptichunt/go-services/hunt/leaderboard"
	"github.com/cryptichunt/go-services/shared/cluster"
	"github.com/cryptichunt/go-services/shared/config"
	"github.com/cryptichunt/go-services/shared/registry"
)

// LeaderboardWarmer periodically recomputes the leaderboard snapshot so the
// Redis cache stays fresh even through quiet stretches with no submissions.
// It uses ServiceAssignmentManager to ensure only one instance in the cluster
// performs the refresh.
type LeaderboardWarmer struct {
	config            *config.HuntServiceConfig
	provider          *leaderboard.Provider
	assignmentManager *cluster.ServiceAssignmentManager
	ctx               context.Context
	cancel            context.CancelFunc
}

// NewLeaderboardWarmer creates a new LeaderboardWarmer instance.
// It relies on ServiceAssignmentManager to determine leadership for the
// cluster-wide refresh task.
func NewLeaderboardWarmer(
	cfg *config.HuntServiceConfig,
	provider *leaderboard.Provider,
	registryClient *registry.RegistryClient,
	serviceRegistrar *registry.ServiceRegistrar,
) *LeaderboardWarmer {
	log.Println("LeaderboardWarmer: Initializing.")
	ctx, cancel := context.WithCancel(context.Background())

	assignmentManager := cluster.NewServiceAssignmentManager(
		registryClient,
		serviceRegistrar,
		cfg.HeartbeatInterval,
	)

	return &LeaderboardWarmer{
		config:            cfg,
		provider:          provider,
		assignmentManager: assignmentManager,
		ctx:               ctx,
		cancel:            cancel,
	}
}

// Start initiates the refresh loop. This should be run in a goroutine.
func (lw *LeaderboardWarmer) Start() {
	log.Printf("Leaderboard Warmer starting with refresh interval: %v", lw.config.WarmInterval)
	ticker := time.NewTicker(lw.config.WarmInterval)
	defer ticker.Stop()

	go lw.assignmentManager.Start()

	for {
		select {
		case <-lw.ctx.Done():
			log.Println("Leaderboard Warmer shutting down.")
			lw.assignmentManager.Stop()
			return
		case <-ticker.C:
			lw.refresh()
		}
	}
}

// Stop gracefully stops the refresh loop.
func (lw *LeaderboardWarmer) Stop() {
	lw.cancel()
}

// refresh recomputes and caches the snapshot. Only the cluster leader
// (determined by assignmentManager for a fixed key) performs the work.
func (lw *LeaderboardWarmer) refresh() {
	const warmTaskKey = "global_leaderboard_warm_task"

	isLeader, err := lw.assignmentManager.IsResponsible(warmTaskKey)
	if err != nil {
		log.Printf("ERROR: LeaderboardWarmer: Failed to check leadership for task '%s': %v", warmTaskKey, err)
		return
	}
	if !isLeader {
		return
	}

	ctx, cancel := context.WithTimeout(lw.ctx, lw.config.WarmTimeout)
	defer cancel()

	entries, err := lw.provider.Snapshot(ctx)
	if err != nil {
		log.Printf("ERROR: LeaderboardWarmer: Failed to refresh snapshot: %v", err)
		return
	}
	log.Printf("INFO: LeaderboardWarmer: Refreshed leaderboard snapshot (%d teams).", len(entries))
}
