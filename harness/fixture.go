package harness

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/orbitflow/ivmcore/row"
	"github.com/orbitflow/ivmcore/source"
)

// ColumnSpec is the JSON-decodable form of a source.Column, used by
// fixture files so cmd/ivmreplay never needs schema built in Go.
type ColumnSpec struct {
	Type     string `json:"type"` // "string", "number", "bool"
	Optional bool   `json:"optional,omitempty"`
}

func (c ColumnSpec) toColumn() (source.Column, error) {
	switch c.Type {
	case "string":
		return source.Column{Type: source.ColumnString, Optional: c.Optional}, nil
	case "number":
		return source.Column{Type: source.ColumnNumber, Optional: c.Optional}, nil
	case "bool":
		return source.Column{Type: source.ColumnBool, Optional: c.Optional}, nil
	default:
		return source.Column{}, errors.Errorf("harness: unknown column type %q", c.Type)
	}
}

// SourceSpec is the JSON-decodable form of a source.Schema.
type SourceSpec struct {
	Columns    map[string]ColumnSpec `json:"columns"`
	PrimaryKey []string              `json:"primaryKey"`
}

func (s SourceSpec) toSchema(name string) (source.Schema, error) {
	cols := make(map[string]source.Column, len(s.Columns))
	for name, spec := range s.Columns {
		col, err := spec.toColumn()
		if err != nil {
			return source.Schema{}, err
		}
		cols[name] = col
	}
	return source.Schema{
		Name:       name,
		Columns:    cols,
		PrimaryKey: row.PrimaryKey(s.PrimaryKey),
	}, nil
}

// Fixture is a whole replay file: the schemas of every source it drives,
// and the scripted steps to push into them, read by cmd/ivmreplay.
type Fixture struct {
	Sources map[string]SourceSpec `json:"sources"`
	Steps   []Step                `json:"steps"`
}

// DecodeFixture reads a Fixture from r.
func DecodeFixture(r io.Reader) (Fixture, error) {
	var f Fixture
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return Fixture{}, errors.Wrap(err, "harness: decoding fixture")
	}
	return f, nil
}

// BuildSources constructs one source.Source per entry in specs, keyed by
// name, closing every already-built source if any later one fails.
func BuildSources(specs map[string]SourceSpec) (Sources, error) {
	out := make(Sources, len(specs))
	for name, spec := range specs {
		schema, err := spec.toSchema(name)
		if err != nil {
			closeAll(out)
			return nil, err
		}
		src, err := source.NewSource(schema)
		if err != nil {
			closeAll(out)
			return nil, errors.Wrapf(err, "harness: building source %q", name)
		}
		out[name] = src
	}
	return out, nil
}

func closeAll(sources Sources) {
	for _, src := range sources {
		_ = src.Close()
	}
}

// Close closes every source.Source in sources.
func (s Sources) Close() error {
	var firstErr error
	for _, src := range s {
		if err := src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
