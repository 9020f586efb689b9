package crdt

import (
	"encoding/json"
	"fmt"
	"maps"
)

// GCounter is a grow-only counter: one non-negative slot per node id,
// merged by taking the pointwise max. The merge rule is the same one a
// vector clock uses for causality tracking; here it's used to accumulate
// a total instead of comparing happened-before relationships.
type GCounter struct {
	counts map[string]uint64
}

func NewGCounter() GCounter {
	return GCounter{counts: map[string]uint64{}}
}

// GCounterFromSerialisable decodes a node_id -> count map produced by
// ToSerialisable.
func GCounterFromSerialisable(raw json.RawMessage) (CRDT, error) {
	var m map[string]uint64
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]uint64{}
	}
	return GCounter{counts: m}, nil
}

func (g GCounter) ToSerialisable() any {
	return maps.Clone(g.counts)
}

func (g GCounter) Read() any {
	var sum uint64
	for _, v := range g.counts {
		sum += v
	}
	return sum
}

func (g GCounter) Merge(other CRDT) CRDT {
	o, ok := other.(GCounter)
	if !ok {
		return g
	}
	result := maps.Clone(g.counts)
	for node, v := range o.counts {
		if v > result[node] {
			result[node] = v
		}
	}
	return GCounter{counts: result}
}

// CounterDelta is the wire shape of an "add" element for both counters:
// {node_id, delta}.
type CounterDelta struct {
	NodeID string `json:"node_id"`
	Delta  int64  `json:"delta"`
}

// Add increments node_id's slot by delta. delta must be non-negative for a
// G-Counter; callers that need signed deltas use PNCounter instead.
func (g GCounter) Add(element json.RawMessage) (CRDT, error) {
	var d CounterDelta
	if err := json.Unmarshal(element, &d); err != nil {
		return nil, err
	}
	if d.Delta < 0 {
		return nil, fmt.Errorf("g-counter delta must be non-negative, got %d", d.Delta)
	}
	result := maps.Clone(g.counts)
	result[d.NodeID] += uint64(d.Delta)
	return GCounter{counts: result}, nil
}

// addDelta is an internal helper shared with PNCounter, which must route
// negative deltas into the dec counter as a positive magnitude rather than
// reject them.
func (g GCounter) addDelta(nodeID string, delta uint64) GCounter {
	result := maps.Clone(g.counts)
	result[nodeID] += delta
	return GCounter{counts: result}
}
