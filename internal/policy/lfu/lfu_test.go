package lfu

import (
	"testing"

	"github.com/chirdeeptomar/carbon-cache/internal/policy"
	"github.com/stretchr/testify/require"
)

func TestLFU_VictimIsFewestHits(t *testing.T) {
	t.Parallel()

	p := New()()
	p.OnInsert("a", policy.Meta{Hits: 5, LastAccessedAt: 1})
	p.OnInsert("b", policy.Meta{Hits: 1, LastAccessedAt: 2})
	p.OnInsert("c", policy.Meta{Hits: 10, LastAccessedAt: 3})

	key, ok := p.Victim(0)
	require.True(t, ok)
	require.Equal(t, "b", key)
}

func TestLFU_TiesBrokenByOldestAccess(t *testing.T) {
	t.Parallel()

	p := New()()
	p.OnInsert("newer", policy.Meta{Hits: 1, LastAccessedAt: 100})
	p.OnInsert("older", policy.Meta{Hits: 1, LastAccessedAt: 10})

	key, ok := p.Victim(0)
	require.True(t, ok)
	require.Equal(t, "older", key)
}

func TestLFU_OnAccessUpdatesHitsAndReordersHeap(t *testing.T) {
	t.Parallel()

	p := New()()
	p.OnInsert("a", policy.Meta{Hits: 0, LastAccessedAt: 1})
	p.OnInsert("b", policy.Meta{Hits: 0, LastAccessedAt: 2})

	// Bump a's hit count above b's so b becomes the victim.
	p.OnAccess("a", policy.Meta{Hits: 5, LastAccessedAt: 3})

	key, ok := p.Victim(0)
	require.True(t, ok)
	require.Equal(t, "b", key)
}

func TestLFU_OnRemove(t *testing.T) {
	t.Parallel()

	p := New()()
	p.OnInsert("a", policy.Meta{Hits: 1})
	p.OnRemove("a")

	_, ok := p.Victim(0)
	require.False(t, ok)
}

func TestLFU_Name(t *testing.T) {
	t.Parallel()
	require.Equal(t, "lfu", New()().Name())
}
