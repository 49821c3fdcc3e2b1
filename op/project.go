package op

import (
	"github.com/pkg/errors"

	"github.com/orbitflow/ivmcore/change"
	"github.com/orbitflow/ivmcore/row"
)

// Project rewrites every emitted Node's row and relationships without
// changing which Change variant is emitted: it hides named relationships
// (nested projection) and/or narrows the row to a named set of columns
// (column projection), per SPEC_FULL's "Nested projection / relationship
// hiding" supplement to §4.5.
type Project struct {
	upstream Input
	columns  []string // nil means keep every column
	hidden   map[string]bool
	output   Output
}

// NewProject builds a Project. columns == nil keeps every row column;
// hide names the relationships to strip from emitted nodes.
func NewProject(upstream Input, columns []string, hide []string) *Project {
	hidden := make(map[string]bool, len(hide))
	for _, h := range hide {
		hidden[h] = true
	}
	p := &Project{upstream: upstream, columns: columns, hidden: hidden}
	upstream.SetOutput(p)
	return p
}

func (p *Project) Ordering() row.Ordering { return p.upstream.Ordering() }

func (p *Project) SetOutput(out Output) { p.output = out }

func (p *Project) Destroy() error { return p.upstream.Destroy() }

func (p *Project) Fetch(constraint *change.Constraint, filters ...change.OptionalFilter) (change.Seq, change.AppliedFilters, error) {
	seq, applied, err := p.upstream.Fetch(constraint, filters...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "project: couldn't fetch upstream")
	}
	return &projectedSeq{upstream: seq, project: p}, applied, nil
}

func (p *Project) Cleanup(constraint *change.Constraint) (change.Seq, error) {
	seq, err := p.upstream.Cleanup(constraint)
	if err != nil {
		return nil, err
	}
	return &projectedSeq{upstream: seq, project: p}, nil
}

func (p *Project) projectRow(r row.Row) row.Row {
	if p.columns == nil {
		return r
	}
	return r.Project(p.columns)
}

func (p *Project) projectNode(n change.Node) change.Node {
	out := change.Node{Row: p.projectRow(n.Row), Relationships: make(map[string]change.Seq, len(n.Relationships))}
	for name, seq := range n.Relationships {
		if p.hidden[name] {
			_ = seq.Close()
			continue
		}
		out.Relationships[name] = seq
	}
	return out
}

func (p *Project) Push(c change.Change) error {
	switch c.Kind {
	case change.KindAdd:
		return p.output.Push(change.Add(p.projectNode(c.Node)))
	case change.KindRemove:
		return p.output.Push(change.Remove(p.projectNode(c.Node)))
	case change.KindEdit:
		return p.output.Push(change.Edit(p.projectRow(c.OldRow), p.projectRow(c.Row)))
	case change.KindChild:
		if p.hidden[c.RelationshipName] {
			return c.Close()
		}
		return p.output.Push(change.Change{
			Kind:             change.KindChild,
			ParentRow:        p.projectRow(c.ParentRow),
			RelationshipName: c.RelationshipName,
			Inner:            c.Inner,
		})
	default:
		return errors.Errorf("project: unknown change kind %v", c.Kind)
	}
}

type projectedSeq struct {
	upstream change.Seq
	project  *Project
}

func (s *projectedSeq) Next() (change.Node, error) {
	n, err := s.upstream.Next()
	if err != nil {
		return change.Node{}, err
	}
	return s.project.projectNode(n), nil
}

func (s *projectedSeq) Close() error { return s.upstream.Close() }
