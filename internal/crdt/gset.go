package crdt

import (
	"encoding/json"
	"maps"
)

// GSet is a grow-only set of arbitrary JSON-representable elements, keyed
// by their canonical JSON encoding so structurally-equal values dedupe
// regardless of map key ordering.
type GSet struct {
	elements map[string]json.RawMessage
}

func NewGSet() GSet {
	return GSet{elements: map[string]json.RawMessage{}}
}

// GSetFromSerialisable decodes the element list produced by ToSerialisable.
func GSetFromSerialisable(raw json.RawMessage) (CRDT, error) {
	var values []json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	elements := make(map[string]json.RawMessage, len(values))
	for _, v := range values {
		elements[elementKey(v)] = v
	}
	return GSet{elements: elements}, nil
}

func (s GSet) ToSerialisable() any {
	return s.Read()
}

func (s GSet) Read() any {
	out := make([]json.RawMessage, 0, len(s.elements))
	for _, v := range s.elements {
		out = append(out, v)
	}
	return out
}

func (s GSet) Merge(other CRDT) CRDT {
	o, ok := other.(GSet)
	if !ok {
		return s
	}
	result := maps.Clone(s.elements)
	for k, v := range o.elements {
		result[k] = v
	}
	return GSet{elements: result}
}

// Add unions the set with a single raw JSON element.
func (s GSet) Add(element json.RawMessage) (CRDT, error) {
	result := maps.Clone(s.elements)
	result[elementKey(element)] = element
	return GSet{elements: result}, nil
}

// elementKey produces a stable dedup key for an arbitrary JSON value by
// round-tripping it through decode/encode of a generic interface, which
// normalizes whitespace and (for objects) key order.
func elementKey(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	normalized, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(normalized)
}
