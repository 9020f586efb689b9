// Package protocol implements the Maelstrom wire format: newline-delimited
// JSON envelopes on stdin/stdout.
package protocol

import "encoding/json"

// Envelope is a single message on the wire. Body is kept as raw JSON so
// that each workload can decode its own payload fields independently of
// the reserved envelope/body bookkeeping fields below.
type Envelope struct {
	Src  string          `json:"src,omitempty"`
	Dest string          `json:"dest,omitempty"`
	Body json.RawMessage `json:"body"`
}

// MessageBody holds the fields every Maelstrom message body may carry,
// regardless of workload: the message type, the sender's own msg_id, and
// (for replies) the msg_id being replied to.
type MessageBody struct {
	Type      string `json:"type,omitempty"`
	MsgID     int    `json:"msg_id,omitempty"`
	InReplyTo int    `json:"in_reply_to,omitempty"`

	// Present on error replies.
	Code int    `json:"code,omitempty"`
	Text string `json:"text,omitempty"`
}

// InitBody is the payload of an "init" message.
type InitBody struct {
	MessageBody
	NodeID  string   `json:"node_id"`
	NodeIDs []string `json:"node_ids"`
}

// Type extracts the body's "type" field, or "" if the body is malformed.
func (e *Envelope) Type() string {
	var b MessageBody
	if err := json.Unmarshal(e.Body, &b); err != nil {
		return ""
	}
	return b.Type
}

// ParseBody decodes the reserved fields out of an envelope's body.
func (e *Envelope) ParseBody() (MessageBody, error) {
	var b MessageBody
	err := json.Unmarshal(e.Body, &b)
	return b, err
}

// MergeFields marshals body, overlays extra key/value pairs on top of the
// resulting object, and returns the combined raw JSON. It is how Send/Reply/RPC
// inject msg_id and in_reply_to into an arbitrary caller-supplied body without
// requiring every workload body type to embed MessageBody itself.
func MergeFields(body any, extra map[string]any) (json.RawMessage, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	m := make(map[string]any)
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, err
	}
	for k, v := range extra {
		m[k] = v
	}
	return json.Marshal(m)
}
