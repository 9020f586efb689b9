// Package node implements the Maelstrom node runtime shared by every
// workload: identity, message-id allocation, correlated request/response
// messaging, periodic background tasks, and mutex-serialized stdout/stderr.
package node

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"maelstrom-nodes/internal/protocol"

	"go.uber.org/zap"
)

// HandlerFunc processes one inbound envelope. A non-nil error that is an
// *RPCError produces a matching wire error reply; any other error produces
// a Crash-coded error reply and is logged.
type HandlerFunc func(env protocol.Envelope) error

// Node is a single Maelstrom node: it owns node identity, outstanding RPC
// bookkeeping, and serialized access to stdout/stderr. Next msg id, the
// callback registry, and every stdout/stderr write all happen under mu, a
// single lock covering the whole of a node's mutable state.
type Node struct {
	mu sync.Mutex

	id      string
	nodeIDs []string
	inited  bool

	nextMsgID int
	callbacks map[int]pendingCallback

	handlers map[string]HandlerFunc

	in  *protocol.Reader
	out *protocol.Writer

	logger *zap.Logger

	wg sync.WaitGroup

	sweepStop chan struct{}
}

type pendingCallback struct {
	handler   HandlerFunc
	createdAt time.Time
}

// New builds a Node reading from stdin and writing to stdout, logging to
// stderr.
func New() *Node {
	return NewWithIO(os.Stdin, os.Stdout, os.Stderr)
}

// NewWithIO builds a Node over explicit streams, used by tests to drive a
// node without touching the process's real stdio.
func NewWithIO(stdin io.Reader, stdout, stderr io.Writer) *Node {
	n := &Node{
		callbacks: make(map[int]pendingCallback),
		handlers:  make(map[string]HandlerFunc),
		in:        protocol.NewReader(stdin),
		out:       protocol.NewWriter(stdout),
		sweepStop: make(chan struct{}),
	}
	n.logger = newLogger(stderr, &n.mu)
	go n.sweepCallbacks()
	return n
}

// ID returns the node's own id. Only meaningful after init.
func (n *Node) ID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.id
}

// NodeIDs returns the full, fixed cluster membership as of init.
func (n *Node) NodeIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.nodeIDs))
	copy(out, n.nodeIDs)
	return out
}

// Init assigns node identity. Callable exactly once; later calls are
// no-ops, since identity is immutable once set.
func (n *Node) Init(id string, nodeIDs []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.inited {
		return
	}
	n.id = id
	n.nodeIDs = nodeIDs
	n.inited = true
}

func (n *Node) initialized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.inited
}

// Handle registers a handler for a given body type. Panics on duplicate
// registration for the same type.
func (n *Node) Handle(msgType string, fn HandlerFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.handlers[msgType]; ok {
		panic(fmt.Sprintf("duplicate handler registered for message type %q", msgType))
	}
	n.handlers[msgType] = fn
}

// Log writes a structured line to stderr, synchronized with stdout writes.
func (n *Node) Log(msg string, fields ...zap.Field) {
	n.logger.Info(msg, fields...)
}

// Logger exposes the underlying structured logger for workloads that want
// leveled logging (e.g. the transactor's debug trace).
func (n *Node) Logger() *zap.Logger {
	return n.logger
}

// Close stops the node's background callback sweeper. Safe to call once,
// typically from a deferred cleanup in tests.
func (n *Node) Close() {
	select {
	case <-n.sweepStop:
	default:
		close(n.sweepStop)
	}
}
