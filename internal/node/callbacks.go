package node

import (
	"time"

	"go.uber.org/zap"
)

// callbackGracePeriod bounds how long an RPC callback is kept waiting for a
// reply that a dropped or partitioned peer may never send. Without a sweep,
// an abandoned callback leaks for the life of the process; this keeps that
// bound tight instead.
const callbackGracePeriod = 30 * time.Second

const sweepInterval = 5 * time.Second

// registerCallback inserts a one-shot handler for msgID. The caller must
// hold n.mu.
func (n *Node) registerCallback(msgID int, h HandlerFunc) {
	n.callbacks[msgID] = pendingCallback{handler: h, createdAt: time.Now()}
}

// popCallback removes and returns the callback for msgID, if any. The first
// reply wins; later duplicate replies find nothing registered and are
// dropped by the dispatcher.
func (n *Node) popCallback(msgID int) (HandlerFunc, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	cb, ok := n.callbacks[msgID]
	if !ok {
		return nil, false
	}
	delete(n.callbacks, msgID)
	return cb.handler, true
}

// sweepCallbacks periodically discards callbacks whose grace period has
// elapsed. Runs for the lifetime of the node; stopped via Close.
func (n *Node) sweepCallbacks() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.sweepStop:
			return
		case <-ticker.C:
			n.mu.Lock()
			now := time.Now()
			var stale []int
			for id, cb := range n.callbacks {
				if now.Sub(cb.createdAt) > callbackGracePeriod {
					delete(n.callbacks, id)
					stale = append(stale, id)
				}
			}
			n.mu.Unlock()

			for _, id := range stale {
				n.logger.Warn("discarding stale rpc callback", zap.Int("msg_id", id))
			}
		}
	}
}
