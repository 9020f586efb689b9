package transactor

import (
	"encoding/json"
	"fmt"
	"maps"
)

const (
	opRead   = "r"
	opAppend = "append"
)

// Database is an immutable mapping from integer key to its append-only
// list of values. Transact never mutates the receiver.
type Database struct {
	values map[int][]int
}

func newDatabase() Database {
	return Database{values: map[int][]int{}}
}

// Transact folds ops over db, returning the resulting database and a
// result list mirroring each op with reads filled in with the list
// observed at the time of that read within the same transaction.
func (db Database) Transact(ops []rawOp) (Database, []rawOp) {
	next := maps.Clone(db.values)
	if next == nil {
		next = map[int][]int{}
	}
	result := make([]rawOp, len(ops))

	for i, op := range ops {
		switch op.Func {
		case opRead:
			result[i] = rawOp{Func: opRead, Key: op.Key, Value: append([]int(nil), next[op.Key]...)}
		case opAppend:
			next[op.Key] = append(append([]int(nil), next[op.Key]...), op.Value[0])
			result[i] = op
		default:
			result[i] = op
		}
	}

	return Database{values: next}, result
}

// entry is one (key, values) pair of the serialised database, written as
// a 2-element array [key, values] rather than an object.
type entry struct {
	Key    int
	Values []int
}

func (e entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Key, e.Values})
}

func (e *entry) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode database entry: %w", err)
	}
	if err := json.Unmarshal(pair[0], &e.Key); err != nil {
		return fmt.Errorf("decode database entry key: %w", err)
	}
	var values []int
	if err := json.Unmarshal(pair[1], &values); err != nil {
		return fmt.Errorf("decode database entry values: %w", err)
	}
	e.Values = values
	return nil
}

// Serialise produces the canonical list-of-pairs representation stored
// under the "root" key.
func (db Database) Serialise() []entry {
	out := make([]entry, 0, len(db.values))
	for k, v := range db.values {
		out = append(out, entry{Key: k, Values: append([]int(nil), v...)})
	}
	return out
}

// Deserialise reconstructs a Database from its serialised form. A nil or
// empty slice yields an empty database.
func deserialise(entries []entry) Database {
	db := newDatabase()
	for _, e := range entries {
		db.values[e.Key] = append([]int(nil), e.Values...)
	}
	return db
}
