// Package types holds the shared column/row/value vocabulary the heap,
// the B+-tree and the executor all speak.
//
// Grounded on ShubhamNegi4-DaemonDB's types/ package (ColumnDef, TableSchema,
// Row) but reshaped around spec.md §3's fixed-size record model: every
// table has one record size, columns have dense offsets, and keys are
// packed byte strings compared with a per-column typed comparator.
package types

import (
	"fmt"
	"strings"
	"time"

	"reldb/internal/errs"
)

// ColType enumerates the column types of spec.md §6.
type ColType int

const (
	Int32 ColType = iota
	Int64
	Float32
	CharN
	Datetime
)

func (t ColType) String() string {
	switch t {
	case Int32:
		return "INT"
	case Int64:
		return "BIGINT"
	case Float32:
		return "FLOAT"
	case CharN:
		return "CHAR"
	case Datetime:
		return "DATETIME"
	default:
		return "UNKNOWN"
	}
}

// DatetimeLayout is the canonical 19-byte ASCII datetime format of
// spec.md §3: "YYYY-MM-DD HH:MM:SS".
const DatetimeLayout = "2006-01-02 15:04:05"
const DatetimeLen = 19

// FixedLen returns the on-disk byte length of a value of this type, given
// the declared length (meaningful only for CharN).
func (t ColType) FixedLen(length int) int {
	switch t {
	case Int32, Float32:
		return 4
	case Int64:
		return 8
	case Datetime:
		return DatetimeLen
	case CharN:
		return length
	default:
		return 0
	}
}

// ValidateDatetime checks the canonical layout, per spec.md §6's
// "STRING → DATETIME (must validate)" coercion rule.
func ValidateDatetime(s string) error {
	if len(s) != DatetimeLen {
		return errs.Newf(errs.KindInvalidDatetime, "datetime %q must be %d bytes", s, DatetimeLen)
	}
	if _, err := time.Parse(DatetimeLayout, s); err != nil {
		return errs.Wrap(errs.KindInvalidDatetime, err, fmt.Sprintf("invalid datetime %q", s))
	}
	return nil
}

// ParseColType maps the SQL keyword to a ColType + declared length. CHAR(n)
// carries n in the parenthesised argument.
func ParseColType(keyword string, arg int) (ColType, int, error) {
	switch strings.ToUpper(keyword) {
	case "INT":
		return Int32, 4, nil
	case "BIGINT":
		return Int64, 8, nil
	case "FLOAT":
		return Float32, 4, nil
	case "CHAR":
		if arg <= 0 {
			return 0, 0, errs.Newf(errs.KindIncompatibleType, "CHAR requires a positive length")
		}
		return CharN, arg, nil
	case "DATETIME":
		return Datetime, DatetimeLen, nil
	default:
		return 0, 0, errs.Newf(errs.KindIncompatibleType, "unknown type %q", keyword)
	}
}
