package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/peersync/internal/status"
	"github.com/roach88/peersync/internal/testutil"
)

func TestRegistry_AddListRemove(t *testing.T) {
	g := NewRegistry()
	for _, id := range []string{"c", "a", "b"} {
		g.add(&Replicator{id: id})
	}

	assert.Equal(t, 3, g.Len())
	var ids []string
	for _, r := range g.List() {
		ids = append(ids, r.ID())
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	_, ok := g.Get("b")
	assert.True(t, ok)

	g.remove("b")
	g.remove("b") // no-op
	_, ok = g.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, g.Len())
}

func TestRegistry_WaitUntilEmpty(t *testing.T) {
	g := NewRegistry()
	g.add(&Replicator{id: "a"})
	g.add(&Replicator{id: "b"})

	go func() {
		time.Sleep(10 * time.Millisecond)
		g.remove("a")
		time.Sleep(10 * time.Millisecond)
		g.remove("b")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.Wait(ctx))
	assert.Zero(t, g.Len())
}

func TestRegistry_WaitHonorsContext(t *testing.T) {
	g := NewRegistry()
	g.add(&Replicator{id: "stuck"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)
}

func TestRegistry_StopAll(t *testing.T) {
	g := NewRegistry()
	ids := NewFixedGenerator("repl-1", "repl-2")

	var started []*Replicator
	for i := 0; i < 2; i++ {
		db := testutil.TempStore(t, "a.db", map[string]string{"x": "1"})
		other := testutil.TempStore(t, "b.db", nil)
		r, err := New(Params{DB: db, OtherDB: other, Push: status.Continuous},
			testOptions(g, WithIDGenerator(ids))...)
		require.NoError(t, err)
		started = append(started, r)
	}
	assert.Equal(t, "repl-1", started[0].ID())
	assert.Equal(t, 2, g.Len())

	g.StopAll()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, g.Wait(ctx))

	for _, r := range started {
		assert.True(t, r.Released())
		r.Free()
		waitDone(t, r)
	}
}

func TestFixedGenerator_Exhausted(t *testing.T) {
	g := NewFixedGenerator("only")
	assert.Equal(t, "only", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator_Sortable(t *testing.T) {
	g := UUIDv7Generator{}
	a := g.Generate()
	time.Sleep(2 * time.Millisecond)
	b := g.Generate()
	assert.Len(t, a, 36)
	assert.Less(t, a, b)
}
