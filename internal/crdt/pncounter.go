package crdt

import "encoding/json"

// PNCounter supports signed deltas by pairing two G-Counters: increments
// accumulate in Inc, decrements (stored as their positive magnitude)
// accumulate in Dec. Read is Inc.Read() - Dec.Read().
type PNCounter struct {
	Inc GCounter
	Dec GCounter
}

func NewPNCounter() PNCounter {
	return PNCounter{Inc: NewGCounter(), Dec: NewGCounter()}
}

type pnCounterWire struct {
	Inc map[string]uint64 `json:"inc"`
	Dec map[string]uint64 `json:"dec"`
}

func PNCounterFromSerialisable(raw json.RawMessage) (CRDT, error) {
	var w pnCounterWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	if w.Inc == nil {
		w.Inc = map[string]uint64{}
	}
	if w.Dec == nil {
		w.Dec = map[string]uint64{}
	}
	return PNCounter{Inc: GCounter{counts: w.Inc}, Dec: GCounter{counts: w.Dec}}, nil
}

func (p PNCounter) ToSerialisable() any {
	return pnCounterWire{
		Inc: p.Inc.ToSerialisable().(map[string]uint64),
		Dec: p.Dec.ToSerialisable().(map[string]uint64),
	}
}

func (p PNCounter) Read() any {
	return int64(p.Inc.Read().(uint64)) - int64(p.Dec.Read().(uint64))
}

func (p PNCounter) Merge(other CRDT) CRDT {
	o, ok := other.(PNCounter)
	if !ok {
		return p
	}
	return PNCounter{
		Inc: p.Inc.Merge(o.Inc).(GCounter),
		Dec: p.Dec.Merge(o.Dec).(GCounter),
	}
}

// Add routes a {node_id, delta} update to Inc when delta >= 0, or to Dec
// with the negated magnitude otherwise.
func (p PNCounter) Add(element json.RawMessage) (CRDT, error) {
	var d CounterDelta
	if err := json.Unmarshal(element, &d); err != nil {
		return nil, err
	}
	if d.Delta >= 0 {
		return PNCounter{Inc: p.Inc.addDelta(d.NodeID, uint64(d.Delta)), Dec: p.Dec}, nil
	}
	return PNCounter{Inc: p.Inc, Dec: p.Dec.addDelta(d.NodeID, uint64(-d.Delta))}, nil
}
