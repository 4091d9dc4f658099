// Package lifecycle implements the install/activate controller for cache
// generations.
//
// A new generation is installed by populating a fresh static tier while
// the currently active generation keeps serving. The installed generation
// waits until Activate promotes it and garbage-collects superseded tiers.
// SkipWaiting collapses the waiting phase: an installed generation is
// activated immediately.
//
// Controller state is persisted in the durable store so a restart resumes
// with the generation that was active, including a still-waiting install.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmoretti/lifeline/internal/logger"
	"github.com/dmoretti/lifeline/pkg/cache"
	"github.com/dmoretti/lifeline/pkg/store"
)

const (
	// StateKey is the store key holding the persisted controller state.
	StateKey = "lifecycle/state"

	// IdentityKey is the store key holding the device identity record.
	IdentityKey = "lifecycle/device"
)

// ErrNoInstall is returned by Activate when no generation is waiting.
var ErrNoInstall = errors.New("lifecycle: no installed generation waiting")

// State is the persisted controller state.
type State struct {
	// ActiveGeneration currently serves traffic. Empty on a fresh device.
	ActiveGeneration string `json:"active_generation"`

	// WaitingGeneration has a fully populated static tier but has not
	// been promoted yet.
	WaitingGeneration string `json:"waiting_generation,omitempty"`

	InstalledAt time.Time `json:"installed_at,omitzero"`
	ActivatedAt time.Time `json:"activated_at,omitzero"`
}

// DeviceIdentity identifies this installation toward the remote endpoint.
// Created once and kept for the lifetime of the data directory.
type DeviceIdentity struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Controller drives cache generation transitions.
type Controller struct {
	store  store.Store
	cache  *cache.Manager
	assets []string

	mu    sync.Mutex
	state State
}

// NewController creates a controller over the given store and cache
// manager. assets is the static asset manifest fetched at install.
func NewController(s store.Store, cacheMgr *cache.Manager, assets []string) *Controller {
	return &Controller{store: s, cache: cacheMgr, assets: assets}
}

// Load restores persisted state and points the cache manager at the
// active generation. Must be called before traffic is routed.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.store.Get(ctx, StateKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil // fresh device, EnsureActive installs the first generation
	}
	if err != nil {
		return fmt.Errorf("failed to load lifecycle state: %w", err)
	}
	if err := json.Unmarshal(data, &c.state); err != nil {
		return fmt.Errorf("failed to decode lifecycle state: %w", err)
	}

	if c.state.ActiveGeneration != "" {
		c.cache.Promote(c.state.ActiveGeneration, c.state.ActiveGeneration)
	}
	logger.Info("Lifecycle state restored",
		logger.KeyGeneration, c.state.ActiveGeneration,
		"waiting_generation", c.state.WaitingGeneration)
	return nil
}

// State returns a copy of the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the device identity, creating and persisting it on
// first use.
func (c *Controller) Identity(ctx context.Context) (DeviceIdentity, error) {
	data, err := c.store.Get(ctx, IdentityKey)
	if err == nil {
		var identity DeviceIdentity
		if err := json.Unmarshal(data, &identity); err != nil {
			return DeviceIdentity{}, fmt.Errorf("failed to decode device identity: %w", err)
		}
		return identity, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return DeviceIdentity{}, fmt.Errorf("failed to load device identity: %w", err)
	}

	identity := DeviceIdentity{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	data, err = json.Marshal(identity)
	if err != nil {
		return DeviceIdentity{}, err
	}
	if err := c.store.Put(ctx, IdentityKey, data); err != nil {
		return DeviceIdentity{}, fmt.Errorf("failed to persist device identity: %w", err)
	}
	logger.Info("Device identity created", "device_id", identity.ID)
	return identity, nil
}

// Install populates a fresh static tier for a new generation and records
// it as waiting. The active generation keeps serving throughout; a failed
// population leaves no partial tier and no state change.
//
// Returns the new generation tag.
func (c *Controller) Install(ctx context.Context) (string, error) {
	generation := newGeneration()

	logger.Info("Install started",
		logger.KeyGeneration, generation,
		"assets", len(c.assets))

	if err := c.cache.PopulateStatic(ctx, generation, c.assets); err != nil {
		return "", fmt.Errorf("install of generation %s failed: %w", generation, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.WaitingGeneration = generation
	c.state.InstalledAt = time.Now().UTC()
	if err := c.persistLocked(ctx); err != nil {
		return "", err
	}

	logger.Info("Install complete, generation waiting", logger.KeyGeneration, generation)
	return generation, nil
}

// Activate promotes the waiting generation and garbage-collects all other
// tiers. Returns ErrNoInstall when nothing is waiting.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activateLocked(ctx)
}

// SkipWaiting activates the waiting generation if there is one, and is a
// no-op otherwise. Mirrors the control-channel "take over now" request.
func (c *Controller) SkipWaiting(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.WaitingGeneration == "" {
		logger.Debug("Skip-waiting requested with no waiting generation")
		return nil
	}
	return c.activateLocked(ctx)
}

// EnsureActive makes sure some generation is active: on a fresh device it
// installs and immediately activates the first generation. An existing
// active generation is left untouched.
func (c *Controller) EnsureActive(ctx context.Context) error {
	c.mu.Lock()
	active := c.state.ActiveGeneration
	c.mu.Unlock()
	if active != "" {
		return nil
	}

	if _, err := c.Install(ctx); err != nil {
		return err
	}
	return c.Activate(ctx)
}

func (c *Controller) activateLocked(ctx context.Context) error {
	generation := c.state.WaitingGeneration
	if generation == "" {
		return ErrNoInstall
	}

	c.cache.Promote(generation, generation)

	previous := c.state.ActiveGeneration
	c.state.ActiveGeneration = generation
	c.state.WaitingGeneration = ""
	c.state.ActivatedAt = time.Now().UTC()
	if err := c.persistLocked(ctx); err != nil {
		// Roll the promotion back so the persisted and served generations
		// cannot diverge across a restart.
		if previous != "" {
			c.cache.Promote(previous, previous)
		}
		c.state.ActiveGeneration = previous
		c.state.WaitingGeneration = generation
		return err
	}

	keep := []string{
		cache.StaticTierName(generation),
		cache.DynamicTierName(generation),
	}
	if err := c.cache.CollectGarbage(ctx, keep); err != nil {
		// Stale tiers only waste space; the next activation retries.
		logger.Warn("Tier garbage collection failed", "error", err)
	}

	logger.Info("Generation activated",
		logger.KeyGeneration, generation,
		"previous_generation", previous)
	return nil
}

func (c *Controller) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(c.state)
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, StateKey, data); err != nil {
		return fmt.Errorf("failed to persist lifecycle state: %w", err)
	}
	return nil
}

// newGeneration returns a fresh generation tag. Short uuid prefixes are
// unique enough for tier names and keep log lines readable.
func newGeneration() string {
	return uuid.NewString()[:8]
}
