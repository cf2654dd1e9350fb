package idgen

import (
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSonyflake_Increasing(t *testing.T) {
	gen, err := NewSonyflake(7)
	require.NoError(t, err)

	var prev uint64
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		id, err := gen.NextID()
		require.NoError(t, err)
		n, err := strconv.ParseUint(id, 10, 64)
		require.NoError(t, err)
		assert.Greater(t, n, prev)
		prev = n
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 200)
}

func TestUUID(t *testing.T) {
	id, err := UUID{}.NextID()
	require.NoError(t, err)
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
}

func TestSetDefault(t *testing.T) {
	SetDefault(UUID{})
	t.Cleanup(func() { SetDefault(nil) })

	id, err := NextID()
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)
}
