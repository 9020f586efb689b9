package transactor

import (
	"bufio"
	"encoding/json"
	"io"
	"testing"
	"time"

	"maelstrom-nodes/internal/node"
	"maelstrom-nodes/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseTransactFoldsReadsAndAppends(t *testing.T) {
	db := newDatabase()

	db, result := db.Transact([]rawOp{
		{Func: opAppend, Key: 1, Value: []int{10}},
		{Func: opRead, Key: 1},
		{Func: opAppend, Key: 1, Value: []int{20}},
	})

	require.Len(t, result, 3)
	assert.Equal(t, []int{10}, result[1].Value)
	assert.Equal(t, []int{10, 20}, db.values[1])
}

func TestDatabaseTransactLeavesOriginalUnchanged(t *testing.T) {
	db := newDatabase()
	db, _ = db.Transact([]rawOp{{Func: opAppend, Key: 1, Value: []int{1}}})

	next, _ := db.Transact([]rawOp{{Func: opAppend, Key: 1, Value: []int{2}}})

	assert.Equal(t, []int{1}, db.values[1])
	assert.Equal(t, []int{1, 2}, next.values[1])
}

func TestRawOpRoundTripsThroughTupleEncoding(t *testing.T) {
	readOp := rawOp{Func: opRead, Key: 5}
	raw, err := json.Marshal(readOp)
	require.NoError(t, err)
	assert.JSONEq(t, `["r",5,null]`, string(raw))

	appendOp := rawOp{Func: opAppend, Key: 5, Value: []int{9}}
	raw, err = json.Marshal(appendOp)
	require.NoError(t, err)
	assert.JSONEq(t, `["append",5,9]`, string(raw))

	var decoded rawOp
	require.NoError(t, json.Unmarshal([]byte(`["append",7,3]`), &decoded))
	assert.Equal(t, rawOp{Func: opAppend, Key: 7, Value: []int{3}}, decoded)
}

func TestDatabaseSerialisesAsPairsNotObjects(t *testing.T) {
	db := newDatabase()
	db, _ = db.Transact([]rawOp{{Func: opAppend, Key: 1, Value: []int{10}}})

	raw, err := json.Marshal(db.Serialise())
	require.NoError(t, err)
	assert.JSONEq(t, `[[1,[10]]]`, string(raw))

	var entries []entry
	require.NoError(t, json.Unmarshal(raw, &entries))
	assert.Equal(t, deserialise(entries).values, db.values)
}

// linKVHarness wires a node's stdout back into its own stdin through a
// relay goroutine that answers every envelope addressed to "lin-kv" with
// an in-memory read/cas service, and forwards every other outbound
// envelope onto replies for the test to inspect.
type linKVHarness struct {
	stdinW  *io.PipeWriter
	replies chan protocol.Envelope

	root json.RawMessage
	next int
}

func newLinKVHarness(t *testing.T) (*node.Node, *linKVHarness) {
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()

	n := node.NewWithIO(stdinR, stdoutW, io.Discard)
	h := &linKVHarness{stdinW: stdinW, replies: make(chan protocol.Envelope, 16)}

	go h.relay(t, stdoutR)
	return n, h
}

func (h *linKVHarness) relay(t *testing.T, stdoutR *io.PipeReader) {
	scanner := bufio.NewScanner(stdoutR)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var env protocol.Envelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			continue
		}
		if env.Dest == "lin-kv" {
			h.serve(t, env)
			continue
		}
		h.replies <- env
	}
}

func (h *linKVHarness) serve(t *testing.T, env protocol.Envelope) {
	body, err := env.ParseBody()
	require.NoError(t, err)

	h.next++
	reply := map[string]any{"in_reply_to": body.MsgID, "msg_id": h.next}

	switch body.Type {
	case "read":
		if h.root == nil {
			reply["type"] = "error"
			reply["code"] = node.KeyDoesNotExist
		} else {
			reply["type"] = "read_ok"
			reply["value"] = json.RawMessage(h.root)
		}
	case "cas":
		var casReq struct {
			From json.RawMessage `json:"from"`
			To   json.RawMessage `json:"to"`
		}
		require.NoError(t, json.Unmarshal(env.Body, &casReq))

		matches := (h.root == nil && string(casReq.From) == "null") ||
			(h.root != nil && string(h.root) == string(casReq.From))
		if !matches {
			reply["type"] = "error"
			reply["code"] = node.PreconditionFailed
		} else {
			h.root = casReq.To
			reply["type"] = "cas_ok"
		}
	}

	raw, err := json.Marshal(reply)
	require.NoError(t, err)
	replyEnv := protocol.Envelope{Src: "lin-kv", Dest: env.Src, Body: raw}
	line, err := json.Marshal(replyEnv)
	require.NoError(t, err)
	_, _ = h.stdinW.Write(append(line, '\n'))
}

func (h *linKVHarness) send(t *testing.T, env protocol.Envelope) {
	line, err := json.Marshal(env)
	require.NoError(t, err)
	_, err = h.stdinW.Write(append(line, '\n'))
	require.NoError(t, err)
}

func (h *linKVHarness) awaitReply(t *testing.T) protocol.Envelope {
	t.Helper()
	select {
	case env := <-h.replies:
		return env
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a reply")
		return protocol.Envelope{}
	}
}

func TestTxnAppendThenReadReflectsPriorAppends(t *testing.T) {
	n, h := newLinKVHarness(t)
	defer n.Close()
	Register(n)
	go func() { _ = n.Run() }()

	h.send(t, protocol.Envelope{Src: "c1", Dest: "n1", Body: mustJSON(t, map[string]any{
		"type": "init", "msg_id": 1, "node_id": "n1", "node_ids": []string{"n1"},
	})})
	initOk := h.awaitReply(t)
	body, err := initOk.ParseBody()
	require.NoError(t, err)
	require.Equal(t, "init_ok", body.Type)

	h.send(t, protocol.Envelope{Src: "c1", Dest: "n1", Body: mustJSON(t, map[string]any{
		"type": "txn", "msg_id": 2, "txn": []any{[]any{"append", 1, 10}},
	})})
	appendReply := h.awaitReply(t)
	var txnOk struct {
		Type string  `json:"type"`
		Txn  []rawOp `json:"txn"`
	}
	require.NoError(t, json.Unmarshal(appendReply.Body, &txnOk))
	assert.Equal(t, "txn_ok", txnOk.Type)
	require.Len(t, txnOk.Txn, 1)
	assert.Equal(t, opAppend, txnOk.Txn[0].Func)

	h.send(t, protocol.Envelope{Src: "c1", Dest: "n1", Body: mustJSON(t, map[string]any{
		"type": "txn", "msg_id": 3, "txn": []any{[]any{"r", 1, nil}},
	})})
	readReply := h.awaitReply(t)
	require.NoError(t, json.Unmarshal(readReply.Body, &txnOk))
	require.Len(t, txnOk.Txn, 1)
	assert.Equal(t, []int{10}, txnOk.Txn[0].Value)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
