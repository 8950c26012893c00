// shared/cluster/assignment_manager.go
package cluster

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/cryptichunt/go-services/shared/registry"
	"github.com/stathat/consistent"
)

// ServiceAssignmentManager helps a service instance determine if it's
// responsible for a given entity or global task, based on consistent hashing
// across the active instances of its service type. The leaderboard warmer
// uses it so exactly one instance performs the periodic cache refresh.
type ServiceAssignmentManager struct {
	registryClient   *registry.RegistryClient
	serviceRegistrar *registry.ServiceRegistrar
	updateInterval   time.Duration
	consistentHash   *consistent.Consistent
	chMux            sync.RWMutex // Protects access to consistentHash
	ctx              context.Context
	cancel           context.CancelFunc
}

// NewServiceAssignmentManager creates and initializes a new ServiceAssignmentManager.
func NewServiceAssignmentManager(
	registryClient *registry.RegistryClient,
	serviceRegistrar *registry.ServiceRegistrar,
	updateInterval time.Duration,
) *ServiceAssignmentManager {
	ctx, cancel := context.WithCancel(context.Background())

	sam := &ServiceAssignmentManager{
		registryClient:   registryClient,
		serviceRegistrar: serviceRegistrar,
		updateInterval:   updateInterval,
		consistentHash:   consistent.New(),
		ctx:              ctx,
		cancel:           cancel,
	}

	// Add this instance to the ring initially
	sam.chMux.Lock()
	sam.consistentHash.Add(sam.serviceRegistrar.GetServiceID())
	sam.chMux.Unlock()

	log.Printf("ServiceAssignmentManager initialized for service '%s' (ID: %s) with update interval: %v",
		serviceRegistrar.GetServiceType(), serviceRegistrar.GetServiceID(), updateInterval)
	return sam
}

// Start begins the periodic update of the consistent hash ring.
// This method should be run in a goroutine.
func (sam *ServiceAssignmentManager) Start() {
	ticker := time.NewTicker(sam.updateInterval)
	defer ticker.Stop()

	log.Printf("ServiceAssignmentManager: hash ring updater started for service type '%s'.", sam.serviceRegistrar.GetServiceType())

	for {
		select {
		case <-sam.ctx.Done():
			log.Println("ServiceAssignmentManager: hash ring updater shutting down.")
			return
		case <-ticker.C:
			sam.updateConsistentHashRing()
		}
	}
}

// Stop gracefully shuts down the ServiceAssignmentManager.
func (sam *ServiceAssignmentManager) Stop() {
	sam.cancel()
}

// updateConsistentHashRing fetches current active services of its type
// and rebuilds the consistent hash ring if the set of active members has changed.
func (sam *ServiceAssignmentManager) updateConsistentHashRing() {
	activeServices, err := sam.registryClient.GetActiveServices(sam.ctx, sam.serviceRegistrar.GetServiceType())
	if err != nil {
		log.Printf("ERROR: ServiceAssignmentManager: Failed to get active services for type '%s': %v", sam.serviceRegistrar.GetServiceType(), err)
		return
	}

	members := make([]string, 0, len(activeServices))
	for id := range activeServices {
		members = append(members, id)
	}
	slices.Sort(members) // Sort to ensure consistent comparison

	sam.chMux.Lock()
	defer sam.chMux.Unlock()

	currentMembers := sam.consistentHash.Members()
	slices.Sort(currentMembers)

	// Compare sorted slices to check if the set of members has truly changed
	if !slices.Equal(members, currentMembers) {
		newHashRing := consistent.New()
		for _, member := range members {
			newHashRing.Add(member)
		}
		sam.consistentHash = newHashRing

		log.Printf("ServiceAssignmentManager: hash ring updated for '%s'. Active members: %v", sam.serviceRegistrar.GetServiceType(), newHashRing.Members())
	}
}

// IsResponsible checks if the current service instance is responsible for the
// given entity or task key.
func (sam *ServiceAssignmentManager) IsResponsible(entityID string) (bool, error) {
	sam.chMux.RLock()
	defer sam.chMux.RUnlock()

	if len(sam.consistentHash.Members()) == 0 {
		// Can happen briefly during startup or if no services are registered.
		return false, fmt.Errorf("consistent hash ring is empty for service type %s", sam.serviceRegistrar.GetServiceType())
	}

	responsibleService, err := sam.consistentHash.Get(entityID)
	if err != nil {
		return false, fmt.Errorf("failed to get responsible service for entity '%s' (type %s): %w", entityID, sam.serviceRegistrar.GetServiceType(), err)
	}

	return responsibleService == sam.serviceRegistrar.GetServiceID(), nil
}
