package harness

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/source"
	"github.com/orbitflow/ivmcore/wire"
)

// Step is one line of a replay fixture: a single SourceChange against a
// named source, JSON-decodable straight off a fixture file for
// cmd/ivmreplay.
type Step struct {
	Source string   `json:"source"`
	Kind   string   `json:"kind"` // "add", "remove", "edit"
	Row    wire.Row `json:"row,omitempty"`
	OldRow wire.Row `json:"oldRow,omitempty"`
	NewRow wire.Row `json:"newRow,omitempty"`
}

// SourceChange converts the step's wire rows into a change.SourceChange.
func (s Step) SourceChange() (change.SourceChange, error) {
	switch s.Kind {
	case "add":
		r, err := wire.ToRow(s.Row)
		if err != nil {
			return change.SourceChange{}, err
		}
		return change.SourceChangeAdd(r), nil
	case "remove":
		r, err := wire.ToRow(s.Row)
		if err != nil {
			return change.SourceChange{}, err
		}
		return change.SourceChangeRemove(r), nil
	case "edit":
		oldRow, err := wire.ToRow(s.OldRow)
		if err != nil {
			return change.SourceChange{}, err
		}
		newRow, err := wire.ToRow(s.NewRow)
		if err != nil {
			return change.SourceChange{}, err
		}
		return change.SourceChangeEdit(oldRow, newRow), nil
	default:
		return change.SourceChange{}, errors.Errorf("harness: unknown step kind %q", s.Kind)
	}
}

// DecodeScript reads a JSON array of Steps from r (a replay fixture).
func DecodeScript(r io.Reader) ([]Step, error) {
	var steps []Step
	if err := json.NewDecoder(r).Decode(&steps); err != nil {
		return nil, errors.Wrap(err, "harness: decoding replay script")
	}
	return steps, nil
}

// Sources names the set of row sources a Replay drives steps against, by
// the name used in each Step's "source" field.
type Sources map[string]*source.Source

// Replay applies each step in script, in order, to the named source in
// sources, stopping and returning the first error encountered (wrapped
// with the step index).
func Replay(sources Sources, script []Step) error {
	for i, step := range script {
		src, ok := sources[step.Source]
		if !ok {
			return errors.Errorf("harness: replay step %d: unknown source %q", i, step.Source)
		}
		sc, err := step.SourceChange()
		if err != nil {
			return errors.Wrapf(err, "harness: replay step %d", i)
		}
		if err := src.Push(sc); err != nil {
			return errors.Wrapf(err, "harness: replay step %d", i)
		}
	}
	return nil
}

// Inverse returns the SourceChange that undoes sc, used by the
// round-trip testable property (§8): pushing a SourceChange and then its
// inverse must return every operator's scratch and every view's data to
// bitwise identical state.
func Inverse(sc change.SourceChange) change.SourceChange {
	switch sc.Kind {
	case change.SourceAdd:
		return change.SourceChangeRemove(sc.Row)
	case change.SourceRemove:
		return change.SourceChangeAdd(sc.Row)
	case change.SourceEdit:
		return change.SourceChangeEdit(sc.NewRow, sc.OldRow)
	default:
		return sc
	}
}
