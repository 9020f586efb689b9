package crdt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delta(node string, d int64) json.RawMessage {
	b, _ := json.Marshal(CounterDelta{NodeID: node, Delta: d})
	return b
}

func elem(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func TestGCounterMonotonicity(t *testing.T) {
	x := NewGCounter()
	added, err := x.Add(delta("n1", 3))
	require.NoError(t, err)

	// merge(x, add(x, e)) == add(x, e)
	merged := x.Merge(added)
	assert.Equal(t, added.Read(), merged.Read())
	assert.Equal(t, added.ToSerialisable(), merged.ToSerialisable())

	// merge is idempotent
	assert.Equal(t, added.ToSerialisable(), added.Merge(added).ToSerialisable())
}

func TestGCounterCommutativeAssociative(t *testing.T) {
	a, _ := NewGCounter().Add(delta("n1", 2))
	b, _ := NewGCounter().Add(delta("n2", 5))
	c, _ := NewGCounter().Add(delta("n3", 1))

	ab := a.Merge(b)
	ba := b.Merge(a)
	assert.Equal(t, ab.ToSerialisable(), ba.ToSerialisable())

	abc1 := ab.Merge(c)
	abc2 := a.Merge(b.Merge(c))
	assert.Equal(t, abc1.ToSerialisable(), abc2.ToSerialisable())
}

func TestGCounterReadSumsAllDeltas(t *testing.T) {
	var c CRDT = NewGCounter()
	deltas := []struct {
		node string
		d    int64
	}{{"n1", 3}, {"n1", 2}, {"n2", 5}, {"n3", 1}}

	var want uint64
	for _, dl := range deltas {
		c, _ = c.Add(delta(dl.node, dl.d))
		want += uint64(dl.d)
	}
	assert.Equal(t, want, c.Read())
}

func TestGSetUnionAndIdempotence(t *testing.T) {
	a, _ := NewGSet().Add(elem("x"))
	a, _ = a.Add(elem("y"))
	b, _ := NewGSet().Add(elem("y"))
	b, _ = b.Add(elem("z"))

	merged := a.Merge(b)
	got := merged.Read().([]json.RawMessage)
	assert.Len(t, got, 3)

	// re-adding an existing element is a no-op on read contents.
	again, _ := merged.Add(elem("x"))
	assert.Len(t, again.Read().([]json.RawMessage), 3)
}

func TestGSetSerialisationRoundTrips(t *testing.T) {
	a, _ := NewGSet().Add(elem("x"))
	a, _ = a.Add(elem(42))

	raw, err := json.Marshal(a.ToSerialisable())
	require.NoError(t, err)

	back, err := GSetFromSerialisable(raw)
	require.NoError(t, err)
	assert.ElementsMatch(t, a.Read(), back.Read())
}

func TestPNCounterSignedSum(t *testing.T) {
	var c CRDT = NewPNCounter()
	var err error
	c, err = c.Add(delta("n1", 5))
	require.NoError(t, err)
	c, err = c.Add(delta("n1", -2))
	require.NoError(t, err)

	assert.Equal(t, int64(3), c.Read())
}

func TestPNCounterConvergesAcrossReplicas(t *testing.T) {
	replicaA, _ := NewPNCounter().Add(delta("a", 5))
	replicaB, _ := NewPNCounter().Add(delta("b", -2))

	converged := replicaA.Merge(replicaB)
	assert.Equal(t, int64(3), converged.Read())

	// order of merge does not matter.
	reverse := replicaB.Merge(replicaA)
	assert.Equal(t, converged.Read(), reverse.Read())
}

func TestPNCounterSerialisationRoundTrips(t *testing.T) {
	c, _ := NewPNCounter().Add(delta("n1", 4))
	c, _ = c.Add(delta("n1", -1))

	raw, err := json.Marshal(c.ToSerialisable())
	require.NoError(t, err)

	back, err := PNCounterFromSerialisable(raw)
	require.NoError(t, err)
	assert.Equal(t, c.Read(), back.Read())
}
