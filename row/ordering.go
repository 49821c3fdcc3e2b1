package row

// OrderPart is one (column, direction) pair in a declared ordering.
type OrderPart struct {
	Column string
	Desc   bool
}

// Ordering is an ordered sequence of OrderParts (§3). The system
// canonicalizes every ordering by appending the primary-key columns if
// absent, making every ordering a total order over the source.
type Ordering []OrderPart

// Normalize appends pk's columns (ascending) to o if they are not
// already present, per §3/§6 "Compile-time ordering normalization".
// The primary key's own relative order among its columns is preserved.
func (o Ordering) Normalize(pk PrimaryKey) Ordering {
	present := make(map[string]bool, len(o))
	for _, p := range o {
		present[p.Column] = true
	}
	out := make(Ordering, len(o))
	copy(out, o)
	for _, c := range pk {
		if !present[c] {
			out = append(out, OrderPart{Column: c})
			present[c] = true
		}
	}
	return out
}

// Columns returns the ordering's column names, in order.
func (o Ordering) Columns() []string {
	cols := make([]string, len(o))
	for i, p := range o {
		cols[i] = p.Column
	}
	return cols
}

// Key extracts r's composite sort key under this ordering, as a Tuple of
// (possibly sign-flipped for descending columns, handled by Compare
// instead) values. Direction is tracked out of band via Compare.
func (o Ordering) Key(r Row) Tuple {
	return Of(r, o.Columns())
}

// Compare orders two rows under this ordering, honoring each part's
// direction.
func (o Ordering) Compare(a, b Row) int {
	for _, p := range o {
		c := a.Get(p.Column).Compare(b.Get(p.Column))
		if c == 0 {
			continue
		}
		if p.Desc {
			return -c
		}
		return c
	}
	return 0
}

// Less is a convenience wrapper around Compare for sort.Interface-style
// callers and btree comparators.
func (o Ordering) Less(a, b Row) bool {
	return o.Compare(a, b) < 0
}
