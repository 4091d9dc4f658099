// Package queue implements the durable offline queue for undelivered
// critical events.
//
// The queue is a single JSON record in the durable store, read-modify-
// written as a whole on every mutation: the backing store offers only
// whole-value put/get, so there is no structured append. Every Enqueue
// persists before returning - the hosting process may be killed
// immediately after, and the entry must survive.
//
// An in-process mutex serializes the read-modify-write cycle, so
// concurrent enqueues within one process cannot lose writes. Two separate
// processes sharing a store can still interleave and lose a write
// (last-write-wins). That window is accepted: the relay runs as a single
// process per device and alert volume is low, but the limitation is
// deliberate and documented rather than hidden.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmoretti/lifeline/internal/logger"
	"github.com/dmoretti/lifeline/pkg/store"
)

// PendingKey is the well-known store key holding the queue record.
const PendingKey = "queue/pending"

// ErrPersistence wraps backing-store failures. Callers must treat the
// operation as not having happened.
var ErrPersistence = errors.New("queue: persistence failure")

// Entry is one queued critical event.
type Entry struct {
	// ID is unique within the queue and monotonically non-decreasing in
	// enqueue order.
	ID int64 `json:"id"`

	// Payload is the original request body, delivered verbatim on drain.
	Payload json.RawMessage `json:"payload"`

	// EnqueuedAt is when the entry was captured.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Metrics receives queue events. May be nil.
type Metrics interface {
	RecordEnqueue()
	RecordDepth(n int)
}

// Queue is the durable FIFO of pending critical events.
type Queue struct {
	store   store.Store
	key     string
	metrics Metrics

	mu     sync.Mutex
	lastID int64
}

// New creates a queue over the given store under PendingKey.
func New(s store.Store, m Metrics) *Queue {
	return &Queue{store: s, key: PendingKey, metrics: m}
}

// Enqueue appends payload to the queue and persists the whole record
// before returning the generated id.
//
// Ids derive from the current time in microseconds with a tie-breaking
// bump, reseeded from the persisted tail, so they stay unique and
// monotonic across restarts.
func (q *Queue) Enqueue(ctx context.Context, payload json.RawMessage) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return 0, err
	}

	id := time.Now().UnixMicro()
	if tail := q.tailID(entries); id <= tail {
		id = tail + 1
	}
	if id <= q.lastID {
		id = q.lastID + 1
	}

	entries = append(entries, Entry{
		ID:         id,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	})

	if err := q.persist(ctx, entries); err != nil {
		return 0, err
	}
	q.lastID = id

	if q.metrics != nil {
		q.metrics.RecordEnqueue()
		q.metrics.RecordDepth(len(entries))
	}
	logger.Info("Critical event queued",
		logger.KeyEntryID, id,
		logger.KeyQueueLen, len(entries))
	return id, nil
}

// List returns the queued entries in enqueue order. An absent record
// yields an empty slice. List has no side effects.
func (q *Queue) List(ctx context.Context) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// RemoveByIDs filters out every entry whose id is in ids and persists the
// result. Entries not matching keep their relative order. Removing an
// absent id has no effect, so the call is idempotent.
func (q *Queue) RemoveByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, entry := range entries {
		if _, gone := drop[entry.ID]; !gone {
			kept = append(kept, entry)
		}
	}
	if len(kept) == len(entries) {
		return nil // nothing matched
	}

	if err := q.persist(ctx, kept); err != nil {
		return err
	}

	if q.metrics != nil {
		q.metrics.RecordDepth(len(kept))
	}
	logger.Debug("Queue entries removed",
		"removed", len(entries)-len(kept),
		logger.KeyQueueLen, len(kept))
	return nil
}

// Len returns the current number of queued entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	entries, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (q *Queue) load(ctx context.Context) ([]Entry, error) {
	data, err := q.store.Get(ctx, q.key)
	if errors.Is(err, store.ErrNotFound) {
		return []Entry{}, nil // record is created lazily on first enqueue
	}
	if err != nil {
		logger.Error("Failed to load queue record", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Error("Failed to decode queue record", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return entries, nil
}

func (q *Queue) persist(ctx context.Context, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := q.store.Put(ctx, q.key, data); err != nil {
		logger.Error("Failed to persist queue record", "error", err)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (q *Queue) tailID(entries []Entry) int64 {
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].ID
}
