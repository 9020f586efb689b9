// Package echo implements the trivial echo workload: it reflects whatever
// payload the client sends back unchanged. Useful as a smoke test for the
// node runtime itself.
package echo

import (
	"encoding/json"

	"maelstrom-nodes/internal/node"
	"maelstrom-nodes/internal/protocol"
)

type echoBody struct {
	Echo json.RawMessage `json:"echo"`
}

// Register wires the echo handler onto n. init_ok is handled by the node
// runtime itself; there is nothing workload-specific to do on init.
func Register(n *node.Node) {
	n.Handle("echo", func(env protocol.Envelope) error {
		var body echoBody
		if err := json.Unmarshal(env.Body, &body); err != nil {
			return err
		}
		return n.Reply(env, map[string]any{"type": "echo_ok", "echo": body.Echo})
	})
}
