package transactor

import (
	"encoding/json"
	"fmt"
)

// rawOp is a single transaction micro-operation as it appears on the wire:
// a 3-element JSON array ["r", key, value] or ["append", key, value]. For
// a read, value is null on the way in and the observed list on the way
// out; for an append, value is a single integer both ways.
type rawOp struct {
	Func  string
	Key   int
	Value []int
}

func (o rawOp) MarshalJSON() ([]byte, error) {
	var value any
	switch o.Func {
	case opRead:
		value = o.Value
	case opAppend:
		if len(o.Value) == 0 {
			value = nil
		} else {
			value = o.Value[0]
		}
	}
	return json.Marshal([]any{o.Func, o.Key, value})
}

func (o *rawOp) UnmarshalJSON(data []byte) error {
	var tuple [3]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("decode op tuple: %w", err)
	}

	var fn string
	if err := json.Unmarshal(tuple[0], &fn); err != nil {
		return fmt.Errorf("decode op function: %w", err)
	}

	var key int
	if err := json.Unmarshal(tuple[1], &key); err != nil {
		return fmt.Errorf("decode op key: %w", err)
	}

	o.Func = fn
	o.Key = key

	switch fn {
	case opRead:
		var values []int
		_ = json.Unmarshal(tuple[2], &values)
		o.Value = values
	case opAppend:
		var v int
		if err := json.Unmarshal(tuple[2], &v); err != nil {
			return fmt.Errorf("decode append value: %w", err)
		}
		o.Value = []int{v}
	default:
		return fmt.Errorf("unknown transaction op %q", fn)
	}
	return nil
}
