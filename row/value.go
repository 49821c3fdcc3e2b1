// Package row defines the primitive value and row types that flow through
// the IVM pipeline: columns hold a closed set of primitive kinds, rows are
// immutable maps from column name to value, and primary keys / orderings
// are declared as ordered tuples of column names.
package row

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Kind is the closed set of primitive value kinds a column may hold.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a single primitive column value. The zero Value is Null.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
}

// Null is the Null value.
var Null = Value{Kind: KindNull}

func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

func Number(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}

func Int(n int) Value {
	return Number(float64(n))
}

func Bool(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

// Validate rejects non-finite numbers; the data model requires finite
// numbers only (§3).
func (v Value) Validate() error {
	if v.Kind == KindNumber && (math.IsNaN(v.Num) || math.IsInf(v.Num, 0)) {
		return errors.Errorf("non-finite number value: %v", v.Num)
	}
	return nil
}

// Equal reports deep equality, used by the source's remove contract (§4.1:
// "authoritative lookup must find a row with identical column values").
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return v.Str == other.Str
	case KindNumber:
		return v.Num == other.Num
	case KindBool:
		return v.Bool == other.Bool
	default:
		return false
	}
}

// Compare orders values for use in orderings. Null sorts before every
// other kind; otherwise values of equal kind compare by underlying value;
// values of differing non-null kind compare by Kind, giving a total order
// over any column even if it mixes kinds (which a well-formed schema never
// does, but Compare must still be total).
func (v Value) Compare(other Value) int {
	if v.Kind != other.Kind {
		if v.Kind < other.Kind {
			return -1
		}
		return 1
	}
	switch v.Kind {
	case KindNull:
		return 0
	case KindString:
		switch {
		case v.Str < other.Str:
			return -1
		case v.Str > other.Str:
			return 1
		default:
			return 0
		}
	case KindNumber:
		switch {
		case v.Num < other.Num:
			return -1
		case v.Num > other.Num:
			return 1
		default:
			return 0
		}
	case KindBool:
		if v.Bool == other.Bool {
			return 0
		} else if !v.Bool {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func (v Value) ToRaw() interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindString:
		return v.Str
	case KindNumber:
		return fmt.Sprintf("%v", v.Num)
	case KindBool:
		return fmt.Sprintf("%v", v.Bool)
	default:
		return "?"
	}
}
