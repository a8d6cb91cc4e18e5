package sqlfront

import (
	"reldb/internal/errs"
	"reldb/internal/types"
)

// CoerceForColumn applies spec.md §6's type-coercion table to a literal
// value being written into a column of the given declared type: INT and
// BIGINT both accept any integer literal (the widening is handled at
// encode time by internal/types.Encode, which already treats int32/int64
// uniformly), FLOAT accepts any numeric literal, CHAR and DATETIME both
// require a string literal, and DATETIME additionally validates the
// canonical layout. string↔numeric is rejected here rather than left to
// internal/types.Encode's later, less specific error.
func CoerceForColumn(col types.Column, v interface{}) (interface{}, error) {
	switch col.Type {
	case types.Int32, types.Int64:
		n, ok := v.(int64)
		if !ok {
			return nil, errs.Newf(errs.KindIncompatibleType, "column %s expects an integer, got %T", col.Name, v)
		}
		return n, nil
	case types.Float32:
		switch n := v.(type) {
		case int64:
			return float64(n), nil
		case float64:
			return n, nil
		default:
			return nil, errs.Newf(errs.KindIncompatibleType, "column %s expects a number, got %T", col.Name, v)
		}
	case types.CharN:
		s, ok := v.(string)
		if !ok {
			return nil, errs.Newf(errs.KindIncompatibleType, "column %s expects a string, got %T", col.Name, v)
		}
		return s, nil
	case types.Datetime:
		s, ok := v.(string)
		if !ok {
			return nil, errs.Newf(errs.KindIncompatibleType, "column %s expects a DATETIME string, got %T", col.Name, v)
		}
		if err := types.ValidateDatetime(s); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errs.Newf(errs.KindIncompatibleType, "column %s has unknown type", col.Name)
	}
}

// compareTyped orders a decoded column value of type ct against a parsed
// literal, per spec.md §6's coercion rule: numeric column types widen
// against a numeric literal to the wider floating type; DATETIME widens a
// string literal only after validating it; CHAR compares string to
// string; any other pairing (string against a numeric column, or a
// numeric literal against CHAR/DATETIME) is IncompatibleType, never a
// silent string-format fallback.
func compareTyped(ct types.ColType, colVal, lit interface{}) (int, error) {
	switch ct {
	case types.Int32, types.Int64, types.Float32:
		lf, ok := asFloat(lit)
		if !ok {
			return 0, errs.Newf(errs.KindIncompatibleType, "cannot compare numeric column to %T", lit)
		}
		cf, _ := asFloat(colVal)
		return signOf(cf - lf), nil
	case types.CharN:
		ls, ok := lit.(string)
		if !ok {
			return 0, errs.Newf(errs.KindIncompatibleType, "cannot compare CHAR column to %T", lit)
		}
		cs, _ := colVal.(string)
		return stringCompare(cs, ls), nil
	case types.Datetime:
		ls, ok := lit.(string)
		if !ok {
			return 0, errs.Newf(errs.KindIncompatibleType, "cannot compare DATETIME column to %T", lit)
		}
		if err := types.ValidateDatetime(ls); err != nil {
			return 0, err
		}
		cs, _ := colVal.(string)
		return stringCompare(cs, ls), nil
	default:
		return 0, errs.Newf(errs.KindIncompatibleType, "unknown column type")
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func stringCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func signOf(f float64) int {
	switch {
	case f < 0:
		return -1
	case f > 0:
		return 1
	default:
		return 0
	}
}

func applyOp(op string, cmp int) bool {
	switch op {
	case "=":
		return cmp == 0
	case "<>":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}
