package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmoretti/lifeline/pkg/store/memory"
)

func payload(s string) json.RawMessage {
	return json.RawMessage(s)
}

func TestEnqueueListOrder(t *testing.T) {
	q := New(memory.New(), nil)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := q.Enqueue(ctx, payload(fmt.Sprintf(`{"n":%d}`, i)))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	for i, entry := range entries {
		assert.Equal(t, ids[i], entry.ID)
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(entry.Payload))
	}
}

func TestIDsUniqueAndMonotonic(t *testing.T) {
	q := New(memory.New(), nil)
	ctx := context.Background()

	seen := make(map[int64]bool)
	var prev int64
	for i := 0; i < 100; i++ {
		id, err := q.Enqueue(ctx, payload(`{}`))
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %d", id)
		assert.Greater(t, id, prev, "ids must be strictly increasing within a run")
		seen[id] = true
		prev = id
	}
}

func TestIDsMonotonicAcrossRestart(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	q1 := New(s, nil)
	id1, err := q1.Enqueue(ctx, payload(`{"a":1}`))
	require.NoError(t, err)

	// Fresh Queue over the same store models a process restart.
	q2 := New(s, nil)
	id2, err := q2.Enqueue(ctx, payload(`{"b":2}`))
	require.NoError(t, err)

	assert.Greater(t, id2, id1)
}

func TestListEmptyWhenRecordAbsent(t *testing.T) {
	q := New(memory.New(), nil)

	entries, err := q.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPayloadRoundTrip(t *testing.T) {
	q := New(memory.New(), nil)
	ctx := context.Background()

	original := `{"type":"sos","location":{"lat":45.07,"lon":7.68},"note":"help"}`
	_, err := q.Enqueue(ctx, payload(original))
	require.NoError(t, err)

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, original, string(entries[0].Payload))
}

func TestRemoveByIDs(t *testing.T) {
	q := New(memory.New(), nil)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := q.Enqueue(ctx, payload(fmt.Sprintf(`{"n":%d}`, i)))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// Remove entries 1..3, keep 4 and 5.
	require.NoError(t, q.RemoveByIDs(ctx, ids[:3]))

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ids[3], entries[0].ID)
	assert.Equal(t, ids[4], entries[1].ID)
}

func TestRemoveByIDsIdempotent(t *testing.T) {
	q := New(memory.New(), nil)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, payload(`{}`))
	require.NoError(t, err)
	id2, err := q.Enqueue(ctx, payload(`{}`))
	require.NoError(t, err)

	require.NoError(t, q.RemoveByIDs(ctx, []int64{id}))
	require.NoError(t, q.RemoveByIDs(ctx, []int64{id})) // second removal: no effect

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id2, entries[0].ID)
}

func TestRemoveByIDsEmptySet(t *testing.T) {
	q := New(memory.New(), nil)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, payload(`{}`))
	require.NoError(t, err)

	require.NoError(t, q.RemoveByIDs(ctx, nil))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEnqueuePersistenceFailure(t *testing.T) {
	s := memory.New()
	q := New(s, nil)
	ctx := context.Background()

	s.FailWith(errors.New("disk full"))

	_, err := q.Enqueue(ctx, payload(`{}`))
	require.ErrorIs(t, err, ErrPersistence)

	// No queue change occurred.
	s.FailWith(nil)
	entries, err := q.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConcurrentEnqueueLosesNothing(t *testing.T) {
	q := New(memory.New(), nil)
	ctx := context.Background()

	const n = 20
	done := make(chan int64, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			id, err := q.Enqueue(ctx, payload(fmt.Sprintf(`{"n":%d}`, i)))
			if err != nil {
				t.Error(err)
			}
			done <- id
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}

	entries, err := q.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, n)
}
