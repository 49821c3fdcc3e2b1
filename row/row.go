package row

import (
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// Row is an unordered mapping from column name to value (§3). Callers
// must treat a Row as immutable once constructed; mutation is expressed
// as a pair (old Row, new Row), never as editing a Row in place.
type Row map[string]Value

// New builds a Row from a plain Go map, validating every value.
func New(cols map[string]Value) (Row, error) {
	r := make(Row, len(cols))
	for k, v := range cols {
		if err := v.Validate(); err != nil {
			return nil, errors.Wrapf(err, "column %q", k)
		}
		r[k] = v
	}
	return r, nil
}

// Get returns the value of col, or Null if the row has no such column.
func (r Row) Get(col string) Value {
	if v, ok := r[col]; ok {
		return v
	}
	return Null
}

// Columns returns the row's column names in sorted order, for stable
// iteration (logging, wire encoding, test fixtures).
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Clone returns a shallow copy; Values are themselves immutable so a
// shallow copy is a full value copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// WithColumns returns a copy of r with the given columns set, leaving r
// itself untouched.
func (r Row) WithColumns(cols map[string]Value) Row {
	out := r.Clone()
	for k, v := range cols {
		out[k] = v
	}
	return out
}

// Equal reports deep column-by-column equality, used by the source's
// remove contract (§4.1).
func (r Row) Equal(other Row) bool {
	if len(r) != len(other) {
		return false
	}
	for k, v := range r {
		ov, ok := other[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Project returns a copy of r containing only the named columns.
func (r Row) Project(cols []string) Row {
	out := make(Row, len(cols))
	for _, c := range cols {
		out[c] = r.Get(c)
	}
	return out
}

// PrimaryKey is an ordered, non-empty tuple of column names declared per
// source (§3). Every row in a source has distinct values on these
// columns.
type PrimaryKey []string

// Validate checks that pk is non-empty and has no duplicate columns.
func (pk PrimaryKey) Validate() error {
	if len(pk) == 0 {
		return errors.New("primary key must be non-empty")
	}
	seen := make(map[string]bool, len(pk))
	for _, c := range pk {
		if seen[c] {
			return errors.Errorf("duplicate primary key column %q", c)
		}
		seen[c] = true
	}
	return nil
}

// Tuple is an ordered sequence of Values, used for primary-key values and
// composite sort keys. Tuple implements a total order via Compare so it
// can key any ordered in-memory structure (btree, tidwall/btree) without
// a byte encoding step.
type Tuple []Value

// Of extracts the Tuple of r's values for the given columns, in order.
func Of(r Row, cols []string) Tuple {
	t := make(Tuple, len(cols))
	for i, c := range cols {
		t[i] = r.Get(c)
	}
	return t
}

// Compare orders two equal-length Tuples lexicographically.
func (t Tuple) Compare(other Tuple) int {
	n := len(t)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if c := t[i].Compare(other[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(t) < len(other):
		return -1
	case len(t) > len(other):
		return 1
	default:
		return 0
	}
}

// Equal reports whether two Tuples have identical values.
func (t Tuple) Equal(other Tuple) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if !t[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// String renders a Tuple into a canonical, collision-free map key. Only
// used for Go-map-keyed lookups (e.g. hash index buckets); ordering-
// sensitive structures use Compare directly instead of this string form.
func (t Tuple) String() string {
	b := make([]byte, 0, 16*len(t))
	for _, v := range t {
		b = append(b, byte(v.Kind), 0)
		switch v.Kind {
		case KindString:
			b = append(b, []byte(v.Str)...)
		case KindNumber:
			b = append(b, []byte(strconv.FormatFloat(v.Num, 'g', -1, 64))...)
		case KindBool:
			if v.Bool {
				b = append(b, 1)
			} else {
				b = append(b, 0)
			}
		}
		b = append(b, 0xff)
	}
	return string(b)
}
