// Package transactor implements a linearizable key-append transaction
// workload on top of an external lin-kv service, using an optimistic
// compare-and-swap loop against a single root document.
package transactor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"maelstrom-nodes/internal/node"
	"maelstrom-nodes/internal/protocol"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// linKVNode is the reserved destination name for the external lin-kv
// service the harness provides.
const linKVNode = "lin-kv"

// rootKey is the single document this transactor's database lives under.
const rootKey = "root"

// maxCASAttempts bounds how many times a transaction restarts its
// read-fold-cas cycle after losing a race on root.
const maxCASAttempts = 5

type txnBody struct {
	Txn []rawOp `json:"txn"`
}

type readOkBody struct {
	Value json.RawMessage `json:"value"`
}

type casBody struct {
	Type              string `json:"type"`
	Key               string `json:"key"`
	From              any    `json:"from"`
	To                any    `json:"to"`
	CreateIfNotExists bool   `json:"create_if_not_exists"`
}

// Transactor serializes execution of inbound txn requests so the local
// CAS loop never races itself.
type Transactor struct {
	n  *node.Node
	mu sync.Mutex
}

// Register wires the txn handler onto n.
func Register(n *node.Node) *Transactor {
	t := &Transactor{n: n}
	n.Handle("txn", func(env protocol.Envelope) error {
		return t.handleTxn(env)
	})
	return t
}

func (t *Transactor) handleTxn(env protocol.Envelope) error {
	var body txnBody
	if err := json.Unmarshal(env.Body, &body); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var result []rawOp
	attempt := 0
	op := func() error {
		attempt++
		db, fromRaw, err := t.readRoot()
		if err != nil {
			return err
		}

		next, res := db.Transact(body.Txn)

		toRaw, err := json.Marshal(next.Serialise())
		if err != nil {
			return backoff.Permanent(err)
		}

		if err := t.cas(fromRaw, toRaw); err != nil {
			t.n.Logger().Debug("txn cas conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}

		result = res
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxCASAttempts)
	if err := backoff.Retry(op, policy); err != nil {
		return node.NewRPCError(node.TxnConflict, "transaction lost too many cas races on root")
	}

	t.n.Logger().Debug("txn committed", zap.Any("txn", result))
	return t.n.Reply(env, map[string]any{"type": "txn_ok", "txn": result})
}

// readRoot fetches the current root document from lin-kv, returning the
// deserialized database and the raw value used as the CAS "from" field.
// A missing key reads as an empty database and a nil "from".
func (t *Transactor) readRoot() (Database, any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env, err := t.n.SyncRPC(ctx, linKVNode, map[string]any{"type": "read", "key": rootKey})
	if err != nil {
		return Database{}, nil, err
	}

	body, err := env.ParseBody()
	if err != nil {
		return Database{}, nil, err
	}
	if body.Type != "read_ok" {
		return newDatabase(), nil, nil
	}

	var ok readOkBody
	if err := json.Unmarshal(env.Body, &ok); err != nil {
		return Database{}, nil, err
	}

	var entries []entry
	if err := json.Unmarshal(ok.Value, &entries); err != nil {
		return Database{}, nil, err
	}

	var fromRaw any
	_ = json.Unmarshal(ok.Value, &fromRaw)
	return deserialise(entries), fromRaw, nil
}

// cas attempts to swap root from fromRaw to the decoded contents of
// toRaw, creating the key if it doesn't exist yet. Returns a non-nil
// error for any reply other than cas_ok.
func (t *Transactor) cas(fromRaw any, toRaw []byte) error {
	var to any
	if err := json.Unmarshal(toRaw, &to); err != nil {
		return backoff.Permanent(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env, err := t.n.SyncRPC(ctx, linKVNode, casBody{
		Type:              "cas",
		Key:               rootKey,
		From:              fromRaw,
		To:                to,
		CreateIfNotExists: true,
	})
	if err != nil {
		return err
	}

	body, err := env.ParseBody()
	if err != nil {
		return err
	}
	if body.Type != "cas_ok" {
		return node.NewRPCError(node.PreconditionFailed, "cas lost the race on root")
	}
	return nil
}
