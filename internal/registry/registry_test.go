package registry

import (
	"context"
	"testing"

	"github.com/chirdeeptomar/carbon-cache/internal/cachecore"
	"github.com/chirdeeptomar/carbon-cache/internal/carbonerr"
	"github.com/stretchr/testify/require"
)

func validSpec(name string) Spec {
	return Spec{Name: name, Policy: cachecore.PolicyLRU, MemBudgetBytes: 1 << 20}
}

func TestRegistry_CreateGetDescribeList(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Create(validSpec("sessions")))

	ch, err := r.Get("sessions")
	require.NoError(t, err)
	require.NotNil(t, ch)

	require.NoError(t, ch.Put(context.Background(), "k", []byte("v"), 0))

	desc, err := r.Describe("sessions")
	require.NoError(t, err)
	require.Equal(t, "sessions", desc.Name)
	require.EqualValues(t, 1, desc.Stats.Entries)

	list := r.List()
	require.Len(t, list, 1)
	require.Equal(t, "sessions", list[0].Name)

	require.ElementsMatch(t, []string{"sessions"}, r.Names())
}

func TestRegistry_CreateDuplicateIsAlreadyExists(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Create(validSpec("a")))
	err := r.Create(validSpec("a"))
	require.True(t, carbonerr.Is(err, carbonerr.KindAlreadyExists))
}

func TestRegistry_CreateRejectsInvalidSpecs(t *testing.T) {
	t.Parallel()

	r := New()

	err := r.Create(Spec{Name: "bad name!", Policy: cachecore.PolicyLRU, MemBudgetBytes: 1})
	require.True(t, carbonerr.Is(err, carbonerr.KindInvalidArgument))

	err = r.Create(Spec{Name: "ok", Policy: "bogus", MemBudgetBytes: 1})
	require.True(t, carbonerr.Is(err, carbonerr.KindInvalidArgument))

	err = r.Create(Spec{Name: "ok", Policy: cachecore.PolicyLRU, MemBudgetBytes: 0})
	require.True(t, carbonerr.Is(err, carbonerr.KindInvalidArgument))
}

func TestRegistry_GetUnknownIsNotFound(t *testing.T) {
	t.Parallel()

	r := New()
	_, err := r.Get("missing")
	require.True(t, carbonerr.Is(err, carbonerr.KindNotFound))
}

func TestRegistry_DeleteDrainsAndRemoves(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Create(validSpec("temp")))

	require.NoError(t, r.Delete("temp"))

	_, err := r.Get("temp")
	require.True(t, carbonerr.Is(err, carbonerr.KindNotFound))

	err = r.Delete("temp")
	require.True(t, carbonerr.Is(err, carbonerr.KindNotFound))

	require.Empty(t, r.List())
}
