package types

import (
	"encoding/binary"
	"math"
)

// EncodeKey packs the named columns' values of row into the big-endian,
// memcmp-comparable byte string spec.md §3 requires of B+-tree keys:
// "keys compared as packed byte strings using per-column typed
// comparators (big-endian-safe for integers via a memcmp-compatible
// encoding)". Integers are encoded big-endian with the sign bit flipped so
// that bytes.Compare on the packed string agrees with numeric order.
func EncodeKey(meta *TableMeta, cols []string, row Row) []byte {
	out := make([]byte, 0, 32)
	for _, name := range cols {
		idx := meta.ColumnIndex(name)
		col := meta.Columns[idx]
		out = append(out, encodeKeyPart(col, row.Values[idx])...)
	}
	return out
}

func encodeKeyPart(col Column, v interface{}) []byte {
	switch col.Type {
	case Int32:
		n, _ := toInt64(v)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(int32(n))^0x80000000)
		return b[:]
	case Int64:
		n, _ := toInt64(v)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(n)^0x8000000000000000)
		return b[:]
	case Float32:
		f, _ := toFloat64(v)
		bits := math.Float32bits(float32(f))
		if bits&0x80000000 != 0 {
			bits = ^bits // negative: flip all bits
		} else {
			bits |= 0x80000000 // positive: set sign bit
		}
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], bits)
		return b[:]
	case CharN:
		s, _ := v.(string)
		b := make([]byte, col.Length)
		copy(b, s)
		return b
	case Datetime:
		s, _ := v.(string)
		b := make([]byte, DatetimeLen)
		copy(b, s)
		return b
	default:
		return nil
	}
}

// KeyLength is the total byte length of a packed key over cols.
func KeyLength(meta *TableMeta, cols []string) int {
	total := 0
	for _, name := range cols {
		idx := meta.ColumnIndex(name)
		total += meta.Columns[idx].Size()
	}
	return total
}
