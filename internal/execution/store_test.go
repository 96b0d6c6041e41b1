package execution

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreListsNewestWindow(t *testing.T) {
	s := NewMemoryStore()
	s.max = 3
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(ctx, Record{ID: fmt.Sprint(i), TaskID: "t"}))
	}
	all, err := s.ListByTask(ctx, "t", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2", all[0].ID)

	last, err := s.ListByTask(ctx, "t", 1)
	require.NoError(t, err)
	assert.Equal(t, "4", last[0].ID)

	none, err := s.ListByTask(ctx, "missing", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNewStoreDefaultsToMemory(t *testing.T) {
	s, err := NewStore(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, "in-memory", s.Mode())
}
