package op

import (
	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/row"
	"github.com/orbitflow/ivmcore/scratch"
)

// window tracks the n rows of an ordering that currently sort first,
// the scratch Take and Skip share to decide which side of their boundary
// an incoming row falls on (§4.5). Entries are keyed by the upstream
// ordering's composite sort key.
type window struct {
	order row.Ordering
	n     int
	store *scratch.Store[row.Tuple, row.Row]
}

func newWindow(order row.Ordering, n int) *window {
	return &window{
		order: order,
		n:     n,
		store: scratch.New[row.Tuple, row.Row](func(a, b row.Tuple) bool {
			for i, p := range order {
				if c := a[i].Compare(b[i]); c != 0 {
					if p.Desc {
						return c > 0
					}
					return c < 0
				}
			}
			return false
		}),
	}
}

func (w *window) key(r row.Row) row.Tuple { return w.order.Key(r) }

func (w *window) Len() int { return w.store.Len() }

func (w *window) Has(r row.Row) bool { return w.store.Has(w.key(r)) }

func (w *window) Set(r row.Row) { w.store.Set(w.key(r), r) }

func (w *window) Delete(r row.Row) { w.store.Delete(w.key(r)) }

// Max returns the window member that sorts last, if any.
func (w *window) Max() (row.Row, bool) {
	_, v, ok := w.store.Max()
	return v, ok
}

// reset discards the window and repopulates it from rows, which must
// already be the first n rows of the upstream ordering.
func (w *window) reset(rows []row.Row) {
	w.store = newWindow(w.order, w.n).store
	for _, r := range rows {
		w.Set(r)
	}
}

// refill re-scans upstream's first n rows for the single row not already
// in the window, filling the window back to size n after a removal. It
// returns ok=false if upstream has fewer than n rows left.
func (w *window) refill(upstream Input) (row.Row, bool, error) {
	seq, _, err := upstream.Fetch(nil)
	if err != nil {
		return row.Row{}, false, err
	}
	defer seq.Close()

	count := 0
	for count < w.n {
		node, err := seq.Next()
		if err == change.ErrEndOfSequence {
			return row.Row{}, false, nil
		}
		if err != nil {
			return row.Row{}, false, err
		}
		count++
		if w.Has(node.Row) {
			if err := node.Close(); err != nil {
				return row.Row{}, false, err
			}
			continue
		}
		w.Set(node.Row)
		return node.Row, true, nil
	}
	return row.Row{}, false, nil
}
