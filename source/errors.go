package source

import "github.com/pkg/errors"

// ErrDuplicatePrimaryKey is returned from push when an add's primary key
// already exists in the source (§4.1, §7). Fatal for the current push;
// leaves all indices unchanged.
var ErrDuplicatePrimaryKey = errors.New("duplicate primary key")

// ErrNotFound is returned from push when a remove or edit references a
// row whose primary key (and, for remove, full column values) is not
// present in the source (§4.1, §7).
var ErrNotFound = errors.New("row not found")

// ErrPrimaryKeyMismatch is returned when an edit keeps the primary key
// unchanged but its old row does not match the stored row's column
// values (§4.1, §7). An edit that changes the primary key never returns
// it: that edit is decomposed into a remove and an add, which report
// ErrNotFound or ErrDuplicatePrimaryKey instead.
var ErrPrimaryKeyMismatch = errors.New("primary key mismatch")
