// Package crdtserver hosts a single state-based CRDT (G-Set, G-Counter, or
// PN-Counter) behind the add/read/replicate protocol shared by all three
// variants, plus periodic gossip to every peer.
package crdtserver

import (
	"encoding/json"
	"sync"
	"time"

	"maelstrom-nodes/internal/crdt"
	"maelstrom-nodes/internal/node"
	"maelstrom-nodes/internal/protocol"

	"go.uber.org/zap"
)

// gossipInterval is the period between unilateral replicate broadcasts
// to every peer. A var, not a const, so tests can shorten it rather
// than waiting out the real interval.
var gossipInterval = 5 * time.Second

type addBody struct {
	Element json.RawMessage `json:"element,omitempty"`
}

type replicateBody struct {
	Value json.RawMessage `json:"value"`
}

// Server hosts a single CRDT value. Mutation always replaces state with
// the immutable result of Add/Merge; mu only protects the field swap.
type Server struct {
	n    *node.Node
	from crdt.FromSerialisable

	mu    sync.Mutex
	state crdt.CRDT
}

// Register wires init/add/replicate/read handlers for a CRDT server seeded
// with initial (typically the variant's empty value) and decoded via from.
func Register(n *node.Node, initial crdt.CRDT, from crdt.FromSerialisable) *Server {
	s := &Server{n: n, from: from, state: initial}

	n.Handle("init", func(env protocol.Envelope) error {
		s.startGossip()
		return nil
	})

	n.Handle("add", func(env protocol.Envelope) error {
		return s.handleAdd(env)
	})

	n.Handle("replicate", func(env protocol.Envelope) error {
		return s.handleReplicate(env)
	})

	n.Handle("read", func(env protocol.Envelope) error {
		return s.handleRead(env)
	})

	return s
}

func (s *Server) startGossip() {
	s.n.Repeat(gossipInterval, func() {
		// Snapshot the state reference under lock before sending, so a
		// concurrent mutation can't be serialized mid-update.
		snapshot := s.snapshot()
		payload := snapshot.ToSerialisable()

		self := s.n.ID()
		for _, peer := range s.n.NodeIDs() {
			if peer == self {
				continue
			}
			if err := s.n.Send(peer, map[string]any{"type": "replicate", "value": payload}); err != nil {
				s.n.Logger().Warn("gossip send failed", zap.String("peer", peer), zap.Error(err))
			}
		}
	})
}

func (s *Server) handleAdd(env protocol.Envelope) error {
	body, err := env.ParseBody()
	if err != nil {
		return err
	}

	var element json.RawMessage
	if body.Type == "add" {
		// G-Set addresses a raw element; counters address their own signed
		// delta, attributed to the requester's node id.
		var raw addBody
		if err := json.Unmarshal(env.Body, &raw); err == nil && raw.Element != nil {
			element = raw.Element
		} else {
			marshaled, err := json.Marshal(crdt.CounterDelta{NodeID: env.Src, Delta: extractDelta(env.Body)})
			if err != nil {
				return err
			}
			element = marshaled
		}
	}

	s.mutate(func(cur crdt.CRDT) (crdt.CRDT, error) {
		return cur.Add(element)
	})

	return s.n.Reply(env, map[string]any{"type": "add_ok"})
}

func (s *Server) handleReplicate(env protocol.Envelope) error {
	var body replicateBody
	if err := json.Unmarshal(env.Body, &body); err != nil {
		return err
	}

	incoming, err := s.from(body.Value)
	if err != nil {
		return err
	}

	s.mutate(func(cur crdt.CRDT) (crdt.CRDT, error) {
		return cur.Merge(incoming), nil
	})
	return nil
}

func (s *Server) handleRead(env protocol.Envelope) error {
	return s.n.Reply(env, map[string]any{"type": "read_ok", "value": s.snapshot().Read()})
}

func (s *Server) mutate(fn func(crdt.CRDT) (crdt.CRDT, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.state)
	if err != nil {
		s.n.Logger().Error("crdt mutation failed", zap.Error(err))
		return
	}
	s.state = next
}

func (s *Server) snapshot() crdt.CRDT {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

type deltaBody struct {
	Delta int64 `json:"delta"`
}

func extractDelta(raw json.RawMessage) int64 {
	var d deltaBody
	_ = json.Unmarshal(raw, &d)
	return d.Delta
}
