package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"maelstrom-nodes/internal/protocol"

	"go.uber.org/zap"
)

// Run reads envelopes from stdin until EOF, dispatching each to either its
// reply callback or the registered workload handler. It blocks until the
// input stream closes and all in-flight handlers have returned.
func (n *Node) Run() error {
	for {
		env, err := n.in.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read envelope: %w", err)
		}

		body, err := env.ParseBody()
		if err != nil {
			n.logger.Error("malformed envelope body", zap.Error(err))
			continue
		}

		if body.InReplyTo != 0 {
			cb, ok := n.popCallback(body.InReplyTo)
			if !ok {
				n.logger.Debug("ignoring reply with no matching callback",
					zap.Int("in_reply_to", body.InReplyTo))
				continue
			}
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				n.runCallback(cb, env)
			}()
			continue
		}

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.dispatch(env, body)
		}()
	}

	n.wg.Wait()
	return nil
}

func (n *Node) runCallback(h HandlerFunc, env protocol.Envelope) {
	if err := h(env); err != nil {
		n.logger.Error("rpc callback error", zap.Error(err))
	}
}

func (n *Node) dispatch(env protocol.Envelope, body protocol.MessageBody) {
	if body.Type == "init" {
		n.handleInit(env)
		return
	}

	if !n.initialized() {
		n.replyWithError(env, ErrNotInitialized)
		return
	}

	n.mu.Lock()
	h, ok := n.handlers[body.Type]
	n.mu.Unlock()
	if !ok {
		n.logger.Error("no handler registered for message type", zap.String("type", body.Type))
		n.replyWithError(env, NewRPCError(NotSupported, fmt.Sprintf("unknown message type %q", body.Type)))
		return
	}

	if err := h(env); err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			n.replyWithError(env, rpcErr)
			return
		}
		n.logger.Error("handler error", zap.String("type", body.Type), zap.Error(err))
		n.replyWithError(env, NewRPCError(Crash, err.Error()))
	}
}

func (n *Node) handleInit(env protocol.Envelope) {
	var body protocol.InitBody
	if err := json.Unmarshal(env.Body, &body); err != nil {
		n.logger.Error("malformed init body", zap.Error(err))
		return
	}
	n.Init(body.NodeID, body.NodeIDs)

	n.mu.Lock()
	initHandler, ok := n.handlers["init"]
	n.mu.Unlock()
	if ok {
		if err := initHandler(env); err != nil {
			n.logger.Error("init handler error", zap.Error(err))
		}
	}

	n.logger.Info("node initialized", zap.String("node_id", body.NodeID))
	if err := n.Reply(env, map[string]any{"type": "init_ok"}); err != nil {
		n.logger.Error("reply to init failed", zap.Error(err))
	}
}

func (n *Node) replyWithError(env protocol.Envelope, rerr *RPCError) {
	if err := n.Reply(env, rerr.Body()); err != nil {
		n.logger.Error("failed to send error reply", zap.Error(err))
	}
}
