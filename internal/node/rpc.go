package node

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"maelstrom-nodes/internal/protocol"
)

// syncRPCTimeout is the fixed wait SyncRPC allows for a reply.
const syncRPCTimeout = 5 * time.Second

// Send emits one envelope to dest with no reply expected.
func (n *Node) Send(dest string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	return n.out.Write(protocol.Envelope{Src: n.id, Dest: dest, Body: raw})
}

// Reply answers req with body, allocating a fresh msg_id and attaching
// in_reply_to = req's msg_id.
func (n *Node) Reply(req protocol.Envelope, body any) error {
	reqBody, err := req.ParseBody()
	if err != nil {
		return fmt.Errorf("parse request body: %w", err)
	}

	n.mu.Lock()
	n.nextMsgID++
	msgID := n.nextMsgID
	raw, err := protocol.MergeFields(body, map[string]any{
		"msg_id":      msgID,
		"in_reply_to": reqBody.MsgID,
	})
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("build reply body: %w", err)
	}
	err = n.out.Write(protocol.Envelope{Src: n.id, Dest: req.Src, Body: raw})
	n.mu.Unlock()
	return err
}

// RPC sends an async request to dest; handler fires exactly once, when the
// first matching reply arrives (or never, if dropped — see callbacks.go's
// sweep for the leak bound).
func (n *Node) RPC(dest string, body any, handler HandlerFunc) error {
	n.mu.Lock()
	n.nextMsgID++
	msgID := n.nextMsgID
	n.registerCallback(msgID, handler)

	raw, err := protocol.MergeFields(body, map[string]any{"msg_id": msgID})
	if err != nil {
		delete(n.callbacks, msgID)
		n.mu.Unlock()
		return fmt.Errorf("build rpc body: %w", err)
	}
	err = n.out.Write(protocol.Envelope{Src: n.id, Dest: dest, Body: raw})
	n.mu.Unlock()
	return err
}

// SyncRPC blocks the calling goroutine until either a reply arrives or the
// fixed 5-second timeout elapses, whichever is first.
func (n *Node) SyncRPC(ctx context.Context, dest string, body any) (protocol.Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, syncRPCTimeout)
	defer cancel()

	replyCh := make(chan protocol.Envelope, 1)
	if err := n.RPC(dest, body, func(env protocol.Envelope) error {
		replyCh <- env
		return nil
	}); err != nil {
		return protocol.Envelope{}, err
	}

	select {
	case env := <-replyCh:
		return env, nil
	case <-ctx.Done():
		return protocol.Envelope{}, ErrTimeout
	}
}
