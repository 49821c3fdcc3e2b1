package change

import "github.com/orbitflow/ivmcore/row"

// Constraint is an equality predicate column = value used to request a
// filtered scan from an Input (§3). Extra holds additional conjuncts
// attached via And, for the composite case a join needs when it must
// re-fetch under both a key equality and a pushed-down filter at once
// (§ SUPPLEMENT constraint.And). Column/Value always stays the primary
// conjunct so callers that key off it (an Input choosing which index to
// scan) see the same thing whether or not And was ever called.
type Constraint struct {
	Column string
	Value  row.Value
	Extra  []Constraint
}

// Eq constructs a Constraint.
func Eq(column string, value row.Value) Constraint {
	return Constraint{Column: column, Value: value}
}

// And returns a copy of c requiring every conjunct in extra to also
// match, in addition to c's own Column/Value. The primary Column/Value
// is unchanged, so an Input that dispatches on Constraint.Column still
// picks the same index; the extra conjuncts are only evaluated by
// Matches.
func (c Constraint) And(extra ...Constraint) Constraint {
	c.Extra = append(append([]Constraint{}, c.Extra...), extra...)
	return c
}

// Matches reports whether r satisfies the constraint and every conjunct
// And attached to it.
func (c Constraint) Matches(r row.Row) bool {
	if !r.Get(c.Column).Equal(c.Value) {
		return false
	}
	for _, extra := range c.Extra {
		if !extra.Matches(r) {
			return false
		}
	}
	return true
}

// OptionalFilter is a simple comparison conjunct an operator may push
// down to a source as a hint; the source is not required to apply it; it
// must only report via AppliedFilters whether it did (§3, SPEC_FULL §
// "appliedFilters / optionalFilters push-down").
type OptionalFilterOp int

const (
	OpEq OptionalFilterOp = iota
	OpNotEq
	OpLess
	OpLessOrEqual
	OpGreater
	OpGreaterOrEqual
)

type OptionalFilter struct {
	Column string
	Op     OptionalFilterOp
	Value  row.Value
}

// Matches evaluates the optional filter against r.
func (f OptionalFilter) Matches(r row.Row) bool {
	c := r.Get(f.Column).Compare(f.Value)
	switch f.Op {
	case OpEq:
		return c == 0
	case OpNotEq:
		return c != 0
	case OpLess:
		return c < 0
	case OpLessOrEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterOrEqual:
		return c >= 0
	default:
		return false
	}
}

// AppliedFilters tracks, per Input connection, which of the requested
// OptionalFilters the source actually applied to its scan (by column
// name). Downstream operators must re-apply any filter not reported
// here — this is the `appliedFilters` contract of §4.1/§6.
type AppliedFilters map[string]bool

// Applied reports whether the filter on column was applied upstream.
func (a AppliedFilters) Applied(column string) bool {
	return a != nil && a[column]
}

// RemainingFilters returns the subset of filters not reported as
// applied, which the caller must still evaluate itself.
func RemainingFilters(filters []OptionalFilter, applied AppliedFilters) []OptionalFilter {
	var out []OptionalFilter
	for _, f := range filters {
		if !applied.Applied(f.Column) {
			out = append(out, f)
		}
	}
	return out
}
