package lf

import (
	"encoding/binary"
	"math"
)

// Order-preserving key encoding for composite index keys. Each value
// gets a kind tag followed by a payload whose byte order matches the
// value order, so a bytes.Compare over the concatenation orders tuples
// column by column.

const (
	keyTagBool    = 0x10
	keyTagNumber  = 0x20
	keyTagTime    = 0x30
	keyTagText    = 0x40
	keyTagBinary  = 0x50
)

func encodeKeyTuple(buf []byte, vals []Value) []byte {
	for _, v := range vals {
		buf = encodeKeyValue(buf, v)
	}
	return buf
}

func encodeKeyValue(buf []byte, v Value) []byte {
	switch v.kind {
	case KindBoolean:
		return append(buf, keyTagBool, byte(v.num))
	case KindInteger, KindReal:
		buf = append(buf, keyTagNumber)
		return appendSortableFloat(buf, v.AsReal())
	case KindDateTime:
		buf = append(buf, keyTagTime)
		return appendSortableInt(buf, v.num)
	case KindText:
		buf = append(buf, keyTagText)
		return appendTerminated(buf, []byte(v.str))
	case KindBinary:
		buf = append(buf, keyTagBinary)
		return appendTerminated(buf, v.bin)
	default:
		panic("null is not a valid index key")
	}
}

func appendSortableInt(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v)^(1<<63))
	return append(buf, tmp[:]...)
}

func appendSortableFloat(buf []byte, f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) == 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], bits)
	return append(buf, tmp[:]...)
}

// appendTerminated escapes zero bytes so the 0x00 0x00 terminator
// sorts shorter strings before their extensions.
func appendTerminated(buf, data []byte) []byte {
	for _, b := range data {
		if b == 0 {
			buf = append(buf, 0x00, 0xFF)
		} else {
			buf = append(buf, b)
		}
	}
	return append(buf, 0x00, 0x00)
}
