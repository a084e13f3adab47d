package size

import (
	"testing"

	"github.com/chirdeeptomar/carbon-cache/internal/policy"
	"github.com/stretchr/testify/require"
)

func TestSize_VictimIsLargestEntry(t *testing.T) {
	t.Parallel()

	p := New()()
	p.OnInsert("small", policy.Meta{SizeBytes: 10, LastAccessedAt: 1})
	p.OnInsert("large", policy.Meta{SizeBytes: 1000, LastAccessedAt: 2})
	p.OnInsert("medium", policy.Meta{SizeBytes: 100, LastAccessedAt: 3})

	key, ok := p.Victim(0)
	require.True(t, ok)
	require.Equal(t, "large", key)
}

func TestSize_TiesBrokenByOldestAccess(t *testing.T) {
	t.Parallel()

	p := New()()
	p.OnInsert("newer", policy.Meta{SizeBytes: 50, LastAccessedAt: 100})
	p.OnInsert("older", policy.Meta{SizeBytes: 50, LastAccessedAt: 10})

	key, ok := p.Victim(0)
	require.True(t, ok)
	require.Equal(t, "older", key)
}

func TestSize_OnAccessUpdatesRecency(t *testing.T) {
	t.Parallel()

	p := New()()
	p.OnInsert("a", policy.Meta{SizeBytes: 50, LastAccessedAt: 1})
	p.OnInsert("b", policy.Meta{SizeBytes: 50, LastAccessedAt: 2})

	p.OnAccess("a", policy.Meta{SizeBytes: 50, LastAccessedAt: 99})

	key, ok := p.Victim(0)
	require.True(t, ok)
	require.Equal(t, "b", key, "b is now the older-accessed same-size entry")
}

func TestSize_OnRemove(t *testing.T) {
	t.Parallel()

	p := New()()
	p.OnInsert("a", policy.Meta{SizeBytes: 10})
	p.OnRemove("a")

	_, ok := p.Victim(0)
	require.False(t, ok)
}

func TestSize_Name(t *testing.T) {
	t.Parallel()
	require.Equal(t, "size", New()().Name())
}
