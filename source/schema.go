package source

import (
	"github.com/pkg/errors"

	"github.com/orbitflow/ivmcore/row"
)

// ColumnType is the declared type of a schema column (§6: "each source
// is declared with {name, columns: {col -> {type, optional?}}, primaryKey}").
type ColumnType int

const (
	ColumnString ColumnType = iota
	ColumnNumber
	ColumnBool
)

// Column declares one column of a source's schema.
type Column struct {
	Type     ColumnType
	Optional bool
}

// Schema declares a source's name, columns, and primary key.
type Schema struct {
	Name       string
	Columns    map[string]Column
	PrimaryKey row.PrimaryKey
}

// ErrInvalidSchema is returned when a Schema fails validation at
// construction (§7): duplicate column, missing primary key, or a
// primary-key column absent from Columns.
type ErrInvalidSchema struct {
	Reason string
}

func (e *ErrInvalidSchema) Error() string {
	return "invalid schema: " + e.Reason
}

// Validate checks the schema is well-formed, fatal at construction if
// not (§7).
func (s Schema) Validate() error {
	if s.Name == "" {
		return &ErrInvalidSchema{Reason: "source name must not be empty"}
	}
	if len(s.Columns) == 0 {
		return &ErrInvalidSchema{Reason: "schema must declare at least one column"}
	}
	if err := s.PrimaryKey.Validate(); err != nil {
		return &ErrInvalidSchema{Reason: errors.Wrap(err, "primary key").Error()}
	}
	for _, c := range s.PrimaryKey {
		col, ok := s.Columns[c]
		if !ok {
			return &ErrInvalidSchema{Reason: "primary key column " + c + " not declared in columns"}
		}
		if col.Optional {
			return &ErrInvalidSchema{Reason: "primary key column " + c + " must not be optional"}
		}
	}
	return nil
}

// typeOf maps a ColumnType to the row.Kind it is stored as.
func typeOf(c ColumnType) row.Kind {
	switch c {
	case ColumnString:
		return row.KindString
	case ColumnNumber:
		return row.KindNumber
	case ColumnBool:
		return row.KindBool
	default:
		return row.KindNull
	}
}

// checkRow validates that r conforms to the schema: every declared
// non-optional column is present with the declared kind (or the column
// is optional and absent/Null).
func (s Schema) checkRow(r row.Row) error {
	for name, col := range s.Columns {
		v, present := r[name]
		if !present {
			if col.Optional {
				continue
			}
			return errors.Errorf("row missing required column %q", name)
		}
		if v.Kind == row.KindNull {
			if col.Optional {
				continue
			}
			return errors.Errorf("required column %q is null", name)
		}
		if v.Kind != typeOf(col.Type) {
			return errors.Errorf("column %q has kind %s, schema declares %s", name, v.Kind, typeOf(col.Type))
		}
	}
	return nil
}
