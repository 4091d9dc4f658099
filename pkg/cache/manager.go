// Package cache implements the tiered response cache.
//
// Two named tiers exist at any time: an immutable static tier written once
// at install, and a mutable dynamic tier the router writes through on
// successful fetches. Tier names embed a generation tag
// ("static-<gen>", "dynamic-<gen>"); superseded generations are removed by
// CollectGarbage during activation.
//
// The tiers live in the durable store under "tier/<name>/<identity>" keys,
// so cached responses survive process restarts.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmoretti/lifeline/internal/logger"
	"github.com/dmoretti/lifeline/pkg/store"
)

const tierKeyPrefix = "tier/"

// StaticTierName returns the static tier name for a generation.
func StaticTierName(generation string) string {
	return "static-" + generation
}

// DynamicTierName returns the dynamic tier name for a generation.
func DynamicTierName(generation string) string {
	return "dynamic-" + generation
}

// FetchFunc retrieves an asset from the upstream origin. The returned
// entry must have its Status and Body populated; the Key is assigned by
// the manager.
type FetchFunc func(ctx context.Context, url string) (*Entry, error)

// ErrAssetFetch wraps a failed asset fetch during static population.
// Install attempts fail as a unit: one unreachable asset aborts the whole
// population and nothing is committed.
var ErrAssetFetch = errors.New("cache: asset fetch failed")

// Manager owns the two current cache tiers.
//
// Generations are mutable only through Promote, which the lifecycle
// controller calls during activation. Reads and writes always address the
// current generations.
type Manager struct {
	store   store.Store
	fetch   FetchFunc
	metrics Metrics

	mu         sync.RWMutex
	staticGen  string
	dynamicGen string
}

// NewManager creates a tier manager over the given store.
//
// staticGen and dynamicGen name the currently active generations; on a
// fresh device the lifecycle controller installs and promotes before any
// traffic is routed.
func NewManager(s store.Store, fetch FetchFunc, staticGen, dynamicGen string, m Metrics) *Manager {
	return &Manager{
		store:      s,
		fetch:      fetch,
		metrics:    m,
		staticGen:  staticGen,
		dynamicGen: dynamicGen,
	}
}

// Generations returns the current static and dynamic generation tags.
func (m *Manager) Generations() (staticGen, dynamicGen string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.staticGen, m.dynamicGen
}

// Promote switches the current generations. Called by the lifecycle
// controller once a new install has fully populated its static tier.
func (m *Manager) Promote(staticGen, dynamicGen string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staticGen = staticGen
	m.dynamicGen = dynamicGen
	logger.Info("Cache generations promoted",
		logger.KeyGeneration, staticGen,
		"dynamic_generation", dynamicGen)
}

// PopulateStatic fetches every asset and commits them into the static tier
// of the given generation as one atomic batch.
//
// Population is all-or-nothing: if any asset cannot be fetched, no partial
// tier is committed and the previous generation keeps serving. The caller
// retries the whole install on the next attempt.
func (m *Manager) PopulateStatic(ctx context.Context, generation string, assets []string) error {
	tier := StaticTierName(generation)
	staged := make(map[string][]byte, len(assets))

	start := time.Now()
	for _, asset := range assets {
		entry, err := m.fetch(ctx, asset)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrAssetFetch, asset, err)
		}
		if entry.Status != 200 {
			return fmt.Errorf("%w: %s: unexpected status %d", ErrAssetFetch, asset, entry.Status)
		}

		entry.Key = Identity("GET", asset)
		entry.StoredAt = time.Now()

		data, err := encodeEntry(entry)
		if err != nil {
			return err
		}
		staged[entryKey(tier, entry.Key)] = data

		logger.Debug("Static asset staged",
			logger.KeyAsset, asset,
			logger.KeyTier, tier,
			"bytes", len(entry.Body))
	}

	if err := m.store.PutBatch(ctx, staged); err != nil {
		return fmt.Errorf("failed to commit static tier %s: %w", tier, err)
	}

	logger.Info("Static tier populated",
		logger.KeyTier, tier,
		"assets", len(assets),
		logger.KeyDuration, time.Since(start).Milliseconds())
	return nil
}

// Get looks up an identity across the current tiers, static first.
// Returns store.ErrNotFound when neither tier holds the key.
func (m *Manager) Get(ctx context.Context, identity string) (*Entry, error) {
	m.mu.RLock()
	tiers := []string{StaticTierName(m.staticGen), DynamicTierName(m.dynamicGen)}
	m.mu.RUnlock()

	for _, tier := range tiers {
		data, err := m.store.Get(ctx, entryKey(tier, identity))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entry, err := decodeEntry(data)
		if err != nil {
			return nil, err
		}
		if m.metrics != nil {
			m.metrics.RecordHit(tier)
		}
		return entry, nil
	}

	if m.metrics != nil {
		m.metrics.RecordMiss()
	}
	return nil, store.ErrNotFound
}

// Put stores an entry into the current dynamic tier. The static tier is
// write-once at install time and never written here.
func (m *Manager) Put(ctx context.Context, identity string, entry *Entry) error {
	m.mu.RLock()
	tier := DynamicTierName(m.dynamicGen)
	m.mu.RUnlock()

	entry.Key = identity
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}

	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if err := m.store.Put(ctx, entryKey(tier, identity), data); err != nil {
		return fmt.Errorf("failed to store entry in %s: %w", tier, err)
	}

	if m.metrics != nil {
		m.metrics.RecordStore(tier, len(entry.Body))
	}
	return nil
}

// CollectGarbage deletes every tier whose name is not in currentTiers.
// Invoked once per activation. Deletes race ongoing reads best-effort: a
// read against a dying tier may transiently miss, which the router
// tolerates by falling through to the network.
func (m *Manager) CollectGarbage(ctx context.Context, currentTiers []string) error {
	current := make(map[string]struct{}, len(currentTiers))
	for _, tier := range currentTiers {
		current[tier] = struct{}{}
	}

	keys, err := m.store.List(ctx, tierKeyPrefix)
	if err != nil {
		return fmt.Errorf("failed to enumerate tiers: %w", err)
	}

	stale := make(map[string]struct{})
	for _, key := range keys {
		rest := strings.TrimPrefix(key, tierKeyPrefix)
		tier, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		if _, keep := current[tier]; !keep {
			stale[tier] = struct{}{}
		}
	}

	for tier := range stale {
		if err := m.store.DeletePrefix(ctx, tierKeyPrefix+tier+"/"); err != nil {
			return fmt.Errorf("failed to delete stale tier %s: %w", tier, err)
		}
		if m.metrics != nil {
			m.metrics.RecordTierDeleted(tier)
		}
		logger.Info("Stale cache tier deleted", logger.KeyTier, tier)
	}

	return nil
}

func entryKey(tier, identity string) string {
	return tierKeyPrefix + tier + "/" + identity
}
