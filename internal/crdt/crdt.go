// Package crdt implements the three state-based CRDTs used by this
// system's replication workloads. Every implementation is a join
// semilattice: Merge is idempotent, commutative, and associative, and Add
// always returns a state dominated by the join of the receiver and the
// added element — so duplicate or reordered replicate messages never
// diverge a replica's state.
package crdt

import "encoding/json"

// CRDT is the uniform capability every variant implements. Add and Merge
// are pure: they return a new value and never mutate the receiver, which
// keeps a holder's lock scope to swapping a field rather than mutating
// state that a concurrent reader might be serializing.
type CRDT interface {
	// ToSerialisable returns a JSON-marshalable representation of the
	// current state, used for gossip payloads. Read replies use Read.
	ToSerialisable() any

	// Read returns the workload-visible value (an element list for a
	// G-Set, a sum for a counter).
	Read() any

	// Merge returns the join of the receiver and other.
	Merge(other CRDT) CRDT

	// Add applies a local update and returns the resulting state. element's
	// shape depends on the variant: a G-Set takes a raw JSON element, the
	// counters take a {node_id, delta} update.
	Add(element json.RawMessage) (CRDT, error)
}

// FromSerialisable reconstructs a CRDT of one specific variant from a
// gossip payload. It is a free function rather than a method so that a
// fresh CRDT value (needed only for its type) doesn't have to exist before
// decoding — each variant exposes its own typed constructor.
type FromSerialisable func(raw json.RawMessage) (CRDT, error)
