// Package workload registers the message handlers for a named workload
// onto a node, selecting between echo, broadcast, the three CRDT
// variants, and the linearizable transactor.
package workload

import (
	"fmt"

	"maelstrom-nodes/internal/crdt"
	"maelstrom-nodes/internal/node"
	"maelstrom-nodes/internal/workload/broadcast"
	"maelstrom-nodes/internal/workload/crdtserver"
	"maelstrom-nodes/internal/workload/echo"
	"maelstrom-nodes/internal/workload/transactor"
)

// Names lists the recognized values for the -w flag.
var Names = []string{"echo", "broadcast", "datomic", "g_counter", "g_set", "pn_counter"}

// Register wires the handlers for name onto n. It returns an error for
// any name not in Names.
func Register(n *node.Node, name string) error {
	switch name {
	case "echo":
		echo.Register(n)
	case "broadcast":
		broadcast.Register(n)
	case "datomic":
		transactor.Register(n)
	case "g_counter":
		crdtserver.Register(n, crdt.NewGCounter(), crdt.GCounterFromSerialisable)
	case "g_set":
		crdtserver.Register(n, crdt.NewGSet(), crdt.GSetFromSerialisable)
	case "pn_counter":
		crdtserver.Register(n, crdt.NewPNCounter(), crdt.PNCounterFromSerialisable)
	default:
		return fmt.Errorf("unknown workload %q, expected one of %v", name, Names)
	}
	return nil
}
