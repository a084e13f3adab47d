package ttl

import (
	"testing"

	"github.com/chirdeeptomar/carbon-cache/internal/policy"
	"github.com/stretchr/testify/require"
)

func TestTTL_VictimIsSoonestDeadline(t *testing.T) {
	t.Parallel()

	p := New()()
	p.OnInsert("long", policy.Meta{CreatedAt: 0, TTLMillis: 1000})
	p.OnInsert("short", policy.Meta{CreatedAt: 0, TTLMillis: 10})
	p.OnInsert("medium", policy.Meta{CreatedAt: 0, TTLMillis: 100})

	key, ok := p.Victim(0)
	require.True(t, ok)
	require.Equal(t, "short", key)
}

func TestTTL_KeysWithNoTTLAreNeverVictims(t *testing.T) {
	t.Parallel()

	p := New()()
	p.OnInsert("eternal", policy.Meta{CreatedAt: 0, TTLMillis: 0})

	_, ok := p.Victim(0)
	require.False(t, ok)
}

func TestTTL_OnRemoveClearsCandidate(t *testing.T) {
	t.Parallel()

	p := New()()
	p.OnInsert("a", policy.Meta{TTLMillis: 10})
	p.OnRemove("a")

	_, ok := p.Victim(0)
	require.False(t, ok)
}

func TestTTL_ReinsertClearsPriorTTL(t *testing.T) {
	t.Parallel()

	p := New()()
	p.OnInsert("a", policy.Meta{TTLMillis: 10})
	p.OnInsert("a", policy.Meta{TTLMillis: 0}) // replace with no-TTL

	_, ok := p.Victim(0)
	require.False(t, ok)
}

func TestTTL_Name(t *testing.T) {
	t.Parallel()
	require.Equal(t, "ttl", New()().Name())
}
