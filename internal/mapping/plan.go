package mapping

import (
	"fmt"
	"strings"
)

type compiledBinding struct {
	index int
	tag   Tag
}

// Plan is a mapping resolved to cell indexes once per job.
type Plan struct {
	bindings []compiledBinding
	filters  []Tag
}

func Compile(m Mapping) (*Plan, error) {
	p := &Plan{}
	seenFilter := make(map[Tag]bool)
	for _, b := range m {
		if b.Tag == Unmapped {
			continue
		}
		idx, err := columnIndex(b.Column)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
		}
		p.bindings = append(p.bindings, compiledBinding{index: idx, tag: b.Tag})
		if b.Tag.IsFilter() && !seenFilter[b.Tag] {
			seenFilter[b.Tag] = true
			p.filters = append(p.filters, b.Tag)
		}
	}
	return p, nil
}

// Project builds the field set of one row. Image columns accumulate,
// blank cells never set a field.
func (p *Plan) Project(cells []string) RowFieldSet {
	fs := RowFieldSet{fields: make(map[Tag]string, len(p.bindings)), filters: p.filters}
	for _, b := range p.bindings {
		if b.index >= len(cells) {
			continue
		}
		v := strings.TrimSpace(cells[b.index])
		if v == "" {
			continue
		}
		if b.tag == TagImage {
			fs.Images = append(fs.Images, v)
			continue
		}
		fs.fields[b.tag] = v
	}
	return fs
}

// RowFieldSet is the typed view of one spreadsheet row.
type RowFieldSet struct {
	fields  map[Tag]string
	filters []Tag
	Images  []string
}

func (r RowFieldSet) Get(t Tag) (string, bool) {
	v, ok := r.fields[t]
	return v, ok
}

func (r RowFieldSet) Has(t Tag) bool {
	_, ok := r.fields[t]
	return ok
}

// HasAny reports whether at least one of tags carries a value.
func (r RowFieldSet) HasAny(tags ...Tag) bool {
	for _, t := range tags {
		if r.Has(t) {
			return true
		}
	}
	return false
}

func (r RowFieldSet) Empty() bool {
	return len(r.fields) == 0 && len(r.Images) == 0
}

// FilterValue is a filter tag with the value this row supplied.
type FilterValue struct {
	FilterID int64
	Value    string
}

// FilterValues lists, in mapping order, the filters this row has a value for.
func (r RowFieldSet) FilterValues() []FilterValue {
	var out []FilterValue
	for _, t := range r.filters {
		v, ok := r.fields[t]
		if !ok {
			continue
		}
		id, _ := t.FilterID()
		out = append(out, FilterValue{FilterID: id, Value: v})
	}
	return out
}
