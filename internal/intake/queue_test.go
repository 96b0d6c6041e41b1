package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/outreach/internal/reliability"
)

func TestSubmitThenDrainOnce(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	wf, err := q.Submit(ctx, "wf-1", json.RawMessage(`{"tasks":[]}`))
	require.NoError(t, err)
	assert.NotZero(t, wf.Timestamp)

	got, err := q.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "wf-1", got[0].ID)
	assert.JSONEq(t, `{"tasks":[]}`, string(got[0].Data))

	again, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.NotNil(t, again)
	assert.Empty(t, again)
}

func TestDrainPreservesSubmitOrder(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	for i := 0; i < 20; i++ {
		_, err := q.Submit(ctx, fmt.Sprintf("wf-%02d", i), json.RawMessage(`{}`))
		require.NoError(t, err)
	}
	assert.Equal(t, 20, q.Len())

	got, err := q.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, got, 20)
	for i, wf := range got {
		assert.Equal(t, fmt.Sprintf("wf-%02d", i), wf.ID)
	}
	assert.Zero(t, q.Len())
}

func TestConcurrentDrainsAreDisjoint(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	const producers, perProducer = 8, 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen []string
	)
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_, _ = q.Submit(ctx, fmt.Sprintf("p%d-%d", p, i), json.RawMessage(`{}`))
			}
		}(p)
	}
	done := make(chan struct{})
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				got, _ := q.Drain(ctx)
				mu.Lock()
				for _, wf := range got {
					seen = append(seen, wf.ID)
				}
				mu.Unlock()
				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}
	// Let producers finish, then stop consumers and collect the rest.
	for q.Len() > 0 || countSeen(&mu, &seen) < producers*perProducer {
		rest, _ := q.Drain(ctx)
		mu.Lock()
		for _, wf := range rest {
			seen = append(seen, wf.ID)
		}
		mu.Unlock()
	}
	close(done)
	wg.Wait()

	sort.Strings(seen)
	require.Len(t, seen, producers*perProducer)
	for i := 1; i < len(seen); i++ {
		require.NotEqual(t, seen[i-1], seen[i], "workflow delivered twice")
	}
}

func countSeen(mu *sync.Mutex, seen *[]string) int {
	mu.Lock()
	defer mu.Unlock()
	return len(*seen)
}

func TestFirstEntry(t *testing.T) {
	id, body, err := FirstEntry(json.RawMessage(`{"wf-b":{"n":1},"wf-a":{"n":2}}`))
	require.NoError(t, err)
	assert.Equal(t, "wf-b", id, "first key in document order wins")
	assert.JSONEq(t, `{"n":1}`, string(body))

	for _, raw := range []string{``, `null`, `{}`, `[]`, `"x"`, `{"":{}}`, `{"a":`} {
		_, _, err := FirstEntry(json.RawMessage(raw))
		require.Error(t, err, raw)
		assert.Equal(t, reliability.KindBadRequest, reliability.KindOf(err), raw)
	}
}
