package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"reldb/internal/errs"
)

// RID is the record identifier of spec.md §3: "(page_no, slot_no) pair,
// stable for the lifetime of the record".
type RID struct {
	PageNo int64
	Slot   uint16
}

func (r RID) String() string { return fmt.Sprintf("(%d,%d)", r.PageNo, r.Slot) }

// Row is one record's values, ordered the same as TableMeta.Columns.
// Values carried: int32, int64, float32, string (CharN, right-padded with
// NUL on encode / trimmed on decode), and string (Datetime, canonical
// 19-byte ASCII).
type Row struct {
	Values []interface{}
}

func (r Row) Clone() Row {
	v := make([]interface{}, len(r.Values))
	copy(v, r.Values)
	return Row{Values: v}
}

// Encode packs a Row into a fixed-size record buffer per meta's column
// layout. Grounded on the teacher's binary.LittleEndian field-at-offset
// style (storage_engine/access/heapfile_manager/heap_page.go) but applied
// to whole records rather than page headers.
func Encode(meta *TableMeta, row Row) ([]byte, error) {
	if len(row.Values) != len(meta.Columns) {
		return nil, errs.Newf(errs.KindInvalidValueCount, "table %s expects %d values, got %d", meta.Name, len(meta.Columns), len(row.Values))
	}
	buf := make([]byte, meta.RecordSize)
	for i, col := range meta.Columns {
		dst := buf[col.Offset : col.Offset+col.Size()]
		if err := encodeValue(col, row.Values[i], dst); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func encodeValue(col Column, v interface{}, dst []byte) error {
	switch col.Type {
	case Int32:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst, uint32(int32(n)))
	case Int64:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(dst, uint64(n))
	case Float32:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(f)))
	case CharN:
		s, ok := v.(string)
		if !ok {
			return errs.Newf(errs.KindIncompatibleType, "column %s expects CHAR, got %T", col.Name, v)
		}
		if len(s) > col.Length {
			return errs.Newf(errs.KindStringOverflow, "column %s: value %q exceeds CHAR(%d)", col.Name, s, col.Length)
		}
		for i := range dst {
			dst[i] = 0
		}
		copy(dst, s)
	case Datetime:
		s, ok := v.(string)
		if !ok {
			return errs.Newf(errs.KindIncompatibleType, "column %s expects DATETIME, got %T", col.Name, v)
		}
		if err := ValidateDatetime(s); err != nil {
			return err
		}
		copy(dst, s)
	default:
		return errs.Newf(errs.KindIncompatibleType, "column %s has unknown type", col.Name)
	}
	return nil
}

// Decode unpacks a fixed-size record buffer into a Row.
func Decode(meta *TableMeta, buf []byte) (Row, error) {
	if len(buf) != meta.RecordSize {
		return Row{}, errs.Newf(errs.KindInternal, "record size mismatch: want %d got %d", meta.RecordSize, len(buf))
	}
	vals := make([]interface{}, len(meta.Columns))
	for i, col := range meta.Columns {
		src := buf[col.Offset : col.Offset+col.Size()]
		v, err := decodeValue(col, src)
		if err != nil {
			return Row{}, err
		}
		vals[i] = v
	}
	return Row{Values: vals}, nil
}

func decodeValue(col Column, src []byte) (interface{}, error) {
	switch col.Type {
	case Int32:
		return int32(binary.LittleEndian.Uint32(src)), nil
	case Int64:
		return int64(binary.LittleEndian.Uint64(src)), nil
	case Float32:
		return math.Float32frombits(binary.LittleEndian.Uint32(src)), nil
	case CharN:
		return strings.TrimRight(string(src), "\x00"), nil
	case Datetime:
		return string(src), nil
	default:
		return nil, errs.Newf(errs.KindIncompatibleType, "column %s has unknown type", col.Name)
	}
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, errs.Newf(errs.KindIncompatibleType, "expected integer, got %T", v)
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, errs.Newf(errs.KindIncompatibleType, "expected numeric, got %T", v)
	}
}
