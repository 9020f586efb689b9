// Package broadcast implements reliable broadcast: every value that
// reaches one node eventually reaches every node, by deduplicated
// flooding over a fixed neighbour topology with retry-until-acked
// fan-out.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"maelstrom-nodes/internal/node"
	"maelstrom-nodes/internal/protocol"

	"go.uber.org/zap"
)

// fanoutRetryInterval paces retries of an un-acked broadcast to a single
// neighbor. There is no retry ceiling: a partitioned neighbor is retried
// until it acks or the process exits. A var, not a const, so tests can
// shorten it rather than waiting out the real interval.
var fanoutRetryInterval = 1 * time.Second

type broadcastBody struct {
	Message json.RawMessage `json:"message"`
}

type topologyBody struct {
	Topology map[string][]string `json:"topology"`
}

// Broadcast holds the deduplicated message set and neighbour topology for
// one node.
type Broadcast struct {
	n   *node.Node
	top *topology

	mu       sync.Mutex
	messages map[string]json.RawMessage
}

// Register wires init/topology/broadcast/read handlers onto n.
func Register(n *node.Node) *Broadcast {
	b := &Broadcast{
		n:        n,
		top:      newTopology(),
		messages: map[string]json.RawMessage{},
	}

	n.Handle("topology", func(env protocol.Envelope) error {
		return b.handleTopology(env)
	})
	n.Handle("broadcast", func(env protocol.Envelope) error {
		return b.handleBroadcast(env)
	})
	n.Handle("read", func(env protocol.Envelope) error {
		return b.handleRead(env)
	})

	return b
}

func (b *Broadcast) handleTopology(env protocol.Envelope) error {
	var body topologyBody
	if err := json.Unmarshal(env.Body, &body); err != nil {
		return err
	}
	b.top.set(body.Topology[b.n.ID()])
	return b.n.Reply(env, map[string]any{"type": "topology_ok"})
}

func (b *Broadcast) handleRead(env protocol.Envelope) error {
	return b.n.Reply(env, map[string]any{"type": "read_ok", "messages": b.values()})
}

func (b *Broadcast) handleBroadcast(env protocol.Envelope) error {
	bodyRaw, err := env.ParseBody()
	if err != nil {
		return err
	}

	var body broadcastBody
	if err := json.Unmarshal(env.Body, &body); err != nil {
		return err
	}

	isNew := b.add(body.Message)

	if bodyRaw.MsgID != 0 {
		if err := b.n.Reply(env, map[string]any{"type": "broadcast_ok"}); err != nil {
			return err
		}
	}

	if isNew {
		b.fanout(body.Message, env.Src)
	}
	return nil
}

// add stores message, keyed by its canonical JSON form, and reports
// whether it was new.
func (b *Broadcast) add(message json.RawMessage) bool {
	key := canonicalKey(message)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, seen := b.messages[key]; seen {
		return false
	}
	b.messages[key] = message
	return true
}

func (b *Broadcast) values() []json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]json.RawMessage, 0, len(b.messages))
	for _, v := range b.messages {
		out = append(out, v)
	}
	return out
}

// fanout re-sends message to every neighbor except from, retrying each
// one independently until it acks.
func (b *Broadcast) fanout(message json.RawMessage, from string) {
	for _, peer := range peersExcept(b.top.get(), from) {
		peer := peer
		go b.retryUntilAcked(peer, message)
	}
}

// retryUntilAcked fires a broadcast RPC to peer every fanoutRetryInterval
// until one of them is acked, without ever waiting on a single attempt's
// reply before issuing the next one — a dropped ack must not silently
// stretch the retry period out past one second.
func (b *Broadcast) retryUntilAcked(peer string, message json.RawMessage) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := func() {
		err := b.n.RPC(peer, map[string]any{"type": "broadcast", "message": message}, func(env protocol.Envelope) error {
			cancel()
			return nil
		})
		if err != nil {
			b.n.Logger().Warn("broadcast send failed", zap.String("peer", peer), zap.Error(err))
		}
	}

	send()
	ticker := time.NewTicker(fanoutRetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() == nil {
				send()
			}
		}
	}
}

// peersExcept returns neighbors with from removed, so a re-broadcast
// never echoes a message straight back to whoever just sent it.
func peersExcept(neighbors []string, from string) []string {
	out := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		if n != from {
			out = append(out, n)
		}
	}
	return out
}

func canonicalKey(raw json.RawMessage) string {
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
