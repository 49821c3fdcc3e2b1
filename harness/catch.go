package harness

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrRecovered wraps a panic value Catch recovered that was not itself an
// error, preserving whatever the panic carried.
type ErrRecovered struct {
	Recovered interface{}
}

func (e *ErrRecovered) Error() string {
	return fmt.Sprintf("harness: recovered panic: %v", e.Recovered)
}

// Catch runs push, converting both its returned error and any panic it
// raises into a single error return. An InvariantViolation (§7) is fatal
// for the process in production — View invariants panic rather than
// return an error — but a test needs to assert on a bad
// SourceChange without taking down the whole test binary; Catch is that
// boundary.
func Catch(push func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok {
			err = errors.WithMessage(e, "harness: recovered panic")
			return
		}
		err = &ErrRecovered{Recovered: r}
	}()
	return push()
}
