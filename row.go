package lf

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"
)

// Row is a stored tuple: a process-wide unique id plus a column map.
// Rows are owned by the cache during a session; the back store holds
// their msgpack serialisation.
type Row struct {
	ID     uint64
	Values map[string]Value
}

func (r *Row) Get(col string) Value {
	v, ok := r.Values[col]
	if !ok {
		return Null()
	}
	return v
}

func (r *Row) Clone() *Row {
	out := &Row{ID: r.ID, Values: make(map[string]Value, len(r.Values))}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}

// rowIDSource allocates monotonic row ids, recovered at open time by
// scanning the final key of every table's store.
type rowIDSource struct {
	last atomic.Uint64
}

func (s *rowIDSource) next() uint64 {
	return s.last.Add(1)
}

func (s *rowIDSource) observe(id uint64) {
	for {
		cur := s.last.Load()
		if id <= cur || s.last.CompareAndSwap(cur, id) {
			return
		}
	}
}

func rowKey(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

func rowKeyID(key []byte) uint64 {
	if len(key) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key)
}

type wireValue struct {
	K uint8   `msgpack:"k"`
	I int64   `msgpack:"i,omitempty"`
	F float64 `msgpack:"f,omitempty"`
	S string  `msgpack:"s,omitempty"`
	B []byte  `msgpack:"b,omitempty"`
}

type wireRow struct {
	Cols map[string]wireValue `msgpack:"c"`
}

func toWireValue(v Value) wireValue {
	switch v.kind {
	case KindReal:
		return wireValue{K: uint8(v.kind), F: v.real}
	case KindText:
		return wireValue{K: uint8(v.kind), S: v.str}
	case KindBinary:
		return wireValue{K: uint8(v.kind), B: v.bin}
	default:
		return wireValue{K: uint8(v.kind), I: v.num}
	}
}

func fromWireValue(w wireValue) Value {
	switch ValueKind(w.K) {
	case KindNull:
		return Null()
	case KindReal:
		return Real(w.F)
	case KindText:
		return Text(w.S)
	case KindBinary:
		return Binary(w.B)
	case KindBoolean:
		return Value{kind: KindBoolean, num: w.I}
	case KindDateTime:
		return DateTimeMillis(w.I)
	default:
		return Int(w.I)
	}
}

func encodeRow(r *Row) ([]byte, error) {
	w := wireRow{Cols: make(map[string]wireValue, len(r.Values))}
	for name, v := range r.Values {
		w.Cols[name] = toWireValue(v)
	}
	return msgpack.Marshal(&w)
}

func decodeRow(key, data []byte) (*Row, error) {
	var w wireRow
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, errf(CodeBackStore, err, "corrupt row payload")
	}
	r := &Row{ID: rowKeyID(key), Values: make(map[string]Value, len(w.Cols))}
	for name, wv := range w.Cols {
		r.Values[name] = fromWireValue(wv)
	}
	return r, nil
}
