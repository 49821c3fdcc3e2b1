// Package wire implements the JSON wire shape for Change (§6): a tagged
// union with base64-free primitive values, matching the teacher's
// output/streaming/json printer's json.NewEncoder idiom rather than any
// third-party codec.
package wire

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/row"
)

// Row is the wire encoding of a row.Row: every column holds a plain JSON
// primitive (string, float64, bool, or nil), never an encoded blob.
type Row map[string]interface{}

func fromValue(v row.Value) interface{} {
	switch v.Kind {
	case row.KindNull:
		return nil
	case row.KindString:
		return v.Str
	case row.KindNumber:
		return v.Num
	case row.KindBool:
		return v.Bool
	default:
		return nil
	}
}

func toValue(raw interface{}) (row.Value, error) {
	switch x := raw.(type) {
	case nil:
		return row.Null, nil
	case string:
		return row.String(x), nil
	case float64:
		return row.Number(x), nil
	case bool:
		return row.Bool(x), nil
	default:
		return row.Value{}, errors.Errorf("wire: unsupported JSON value %T for row column", raw)
	}
}

// FromRow converts a row.Row into its wire shape.
func FromRow(r row.Row) Row {
	out := make(Row, len(r))
	for _, col := range r.Columns() {
		out[col] = fromValue(r.Get(col))
	}
	return out
}

// ToRow converts a wire Row back into a row.Row.
func ToRow(wr Row) (row.Row, error) {
	cols := make(map[string]row.Value, len(wr))
	for col, raw := range wr {
		v, err := toValue(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "wire: column %q", col)
		}
		cols[col] = v
	}
	return row.New(cols)
}

func fromRow(r row.Row) Row        { return FromRow(r) }
func toRow(wr Row) (row.Row, error) { return ToRow(wr) }

// Node is the wire encoding of a change.Node. Relationships are
// materialized eagerly into arrays, since JSON has no lazy sequences.
type Node struct {
	Row           Row               `json:"row"`
	Relationships map[string][]Node `json:"relationships,omitempty"`
}

func fromNode(n change.Node) (Node, error) {
	out := Node{Row: fromRow(n.Row)}
	if len(n.Relationships) == 0 {
		return out, nil
	}
	out.Relationships = make(map[string][]Node, len(n.Relationships))
	for name, seq := range n.Relationships {
		nodes, err := change.Drain(seq)
		if err != nil {
			return Node{}, errors.Wrapf(err, "wire: draining relationship %q", name)
		}
		children := make([]Node, 0, len(nodes))
		for _, cn := range nodes {
			wn, err := fromNode(cn)
			if err != nil {
				return Node{}, err
			}
			children = append(children, wn)
		}
		out.Relationships[name] = children
	}
	return out, nil
}

func (n Node) toChangeNode() (change.Node, error) {
	r, err := toRow(n.Row)
	if err != nil {
		return change.Node{}, err
	}
	out := change.Node{Row: r}
	if len(n.Relationships) == 0 {
		return out, nil
	}
	out.Relationships = make(map[string]change.Seq, len(n.Relationships))
	for name, children := range n.Relationships {
		nodes := make([]change.Node, 0, len(children))
		for _, wn := range children {
			cn, err := wn.toChangeNode()
			if err != nil {
				return change.Node{}, err
			}
			nodes = append(nodes, cn)
		}
		out.Relationships[name] = change.NewSliceSeq(nodes)
	}
	return out, nil
}

// ChildEnvelope is the wire encoding of a child Change's payload (§6:
// `child -> row, child: {relationshipName, change}`).
type ChildEnvelope struct {
	RelationshipName string  `json:"relationshipName"`
	Change           *Change `json:"change"`
}

// Change is the wire encoding of change.Change, discriminated by Type
// ("add", "remove", "edit", "child").
type Change struct {
	Type   string         `json:"type"`
	Node   *Node          `json:"node,omitempty"`
	OldRow Row            `json:"oldRow,omitempty"`
	Row    Row            `json:"row,omitempty"`
	Child  *ChildEnvelope `json:"child,omitempty"`
}

// FromChange converts c into its wire shape, draining any relationship
// sequences it still holds.
func FromChange(c change.Change) (Change, error) {
	switch c.Kind {
	case change.KindAdd, change.KindRemove:
		n, err := fromNode(c.Node)
		if err != nil {
			return Change{}, err
		}
		typ := "add"
		if c.Kind == change.KindRemove {
			typ = "remove"
		}
		return Change{Type: typ, Node: &n}, nil
	case change.KindEdit:
		return Change{Type: "edit", OldRow: fromRow(c.OldRow), Row: fromRow(c.Row)}, nil
	case change.KindChild:
		if c.Inner == nil {
			return Change{}, errors.New("wire: child change missing inner change")
		}
		inner, err := FromChange(*c.Inner)
		if err != nil {
			return Change{}, err
		}
		return Change{
			Type:  "child",
			Row:   fromRow(c.ParentRow),
			Child: &ChildEnvelope{RelationshipName: c.RelationshipName, Change: &inner},
		}, nil
	default:
		return Change{}, errors.Errorf("wire: unknown change kind %v", c.Kind)
	}
}

// ToChange converts a decoded wire Change back into a change.Change,
// rebuilding relationships as replayable SliceSeqs.
func (c Change) ToChange() (change.Change, error) {
	switch c.Type {
	case "add", "remove":
		if c.Node == nil {
			return change.Change{}, errors.Errorf("wire: %s change missing node", c.Type)
		}
		n, err := c.Node.toChangeNode()
		if err != nil {
			return change.Change{}, err
		}
		if c.Type == "add" {
			return change.Add(n), nil
		}
		return change.Remove(n), nil
	case "edit":
		oldRow, err := toRow(c.OldRow)
		if err != nil {
			return change.Change{}, err
		}
		newRow, err := toRow(c.Row)
		if err != nil {
			return change.Change{}, err
		}
		return change.Edit(oldRow, newRow), nil
	case "child":
		if c.Child == nil || c.Child.Change == nil {
			return change.Change{}, errors.New("wire: child change missing child envelope")
		}
		parentRow, err := toRow(c.Row)
		if err != nil {
			return change.Change{}, err
		}
		inner, err := c.Child.Change.ToChange()
		if err != nil {
			return change.Change{}, err
		}
		return change.Child(parentRow, c.Child.RelationshipName, inner), nil
	default:
		return change.Change{}, errors.Errorf("wire: unknown change type %q", c.Type)
	}
}

// Encode writes c to enc in the §6 wire shape, one JSON object per call,
// matching the teacher's json.NewEncoder idiom (output/streaming/json's
// printer).
func Encode(c change.Change, enc *json.Encoder) error {
	wc, err := FromChange(c)
	if err != nil {
		return err
	}
	return enc.Encode(wc)
}

// Decode reads one wire Change from dec and converts it back to a
// change.Change. Returns io.EOF when dec's underlying stream is exhausted.
func Decode(dec *json.Decoder) (change.Change, error) {
	var wc Change
	if err := dec.Decode(&wc); err != nil {
		if err == io.EOF {
			return change.Change{}, err
		}
		return change.Change{}, errors.Wrap(err, "wire: decode")
	}
	return wc.ToChange()
}

// Encoder serializes a stream of Changes as newline-delimited JSON,
// attached to a View so every flushed batch is mirrored to a transport
// writer (§4.6 "View optionally attaches a wire.Encoder").
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder wraps w in a wire Encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes one Change.
func (e *Encoder) Encode(c change.Change) error {
	return Encode(c, e.enc)
}

// EncodeBatch writes a slice of Changes in order, matching how a View
// hands Flush a whole batch at once rather than one Change per call.
func (e *Encoder) EncodeBatch(changes []change.Change) error {
	for _, c := range changes {
		if err := e.Encode(c); err != nil {
			return err
		}
	}
	return nil
}
