package syncq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushLoadSave(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	empty, err := Load()
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, Push(Command{Method: "POST", Path: "/v1/catch", Body: map[string]any{"species": "pikachu"}, IdempotencyKey: "k1"}))
	require.NoError(t, Push(Command{Method: "POST", Path: "/v1/items/potion/buy", IdempotencyKey: "k2"}))
	require.NoError(t, Push(Command{Method: "POST", Path: "/v1/catch", IdempotencyKey: "k1"}))

	queued, err := Load()
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, "pikachu", queued[0].Body["species"])
	assert.False(t, queued[0].QueuedAt.IsZero())

	require.NoError(t, Save(queued[1:]))
	queued, err = Load()
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "k2", queued[0].IdempotencyKey)
}
