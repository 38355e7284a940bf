// Package mapping resolves user supplied column mappings into per-row
// field sets.
package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vrsandeep/catalog-importer/internal/models"
	"github.com/xuri/excelize/v2"
)

// ErrInvalidMapping wraps every problem with a submitted mapping other
// than missing required columns.
var ErrInvalidMapping = errors.New("invalid column mapping")

// Header is one populated cell of the header row.
type Header struct {
	Index  int    `json:"index"`
	Column string `json:"column"`
	Label  string `json:"label"`
}

// HeadersFromRow keeps the labelled cells of a header row. Labels are
// case-preserved; blank labels are dropped.
func HeadersFromRow(cells []string) []Header {
	var headers []Header
	for i, c := range cells {
		label := strings.TrimSpace(c)
		if label == "" {
			continue
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		headers = append(headers, Header{Index: i, Column: col, Label: label})
	}
	return headers
}

// Binding ties a spreadsheet column to a tag.
type Binding struct {
	Column string `json:"column"`
	Label  string `json:"label,omitempty"`
	Tag    Tag    `json:"tag"`
}

// Mapping is ordered by column as the user saw it.
type Mapping []Binding

func Decode(raw []byte) (Mapping, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var m Mapping
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	return m, nil
}

func (m Mapping) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Bound reports whether any column feeds t.
func (m Mapping) Bound(t Tag) bool {
	for _, b := range m {
		if b.Tag == t {
			return true
		}
	}
	return false
}

// Labels maps every bound tag back to the header label it was bound to.
// When several columns share a tag the last one wins, matching Project.
func (m Mapping) Labels() map[Tag]string {
	out := make(map[Tag]string)
	for _, b := range m {
		if b.Tag != Unmapped {
			out[b.Tag] = b.Label
		}
	}
	return out
}

// Guess proposes a mapping for freshly uploaded headers: a label equal to
// a vocabulary label takes that tag, a label mentioning "image" becomes an
// image column, anything else is left unmapped.
func Guess(headers []Header, v *Vocabulary) Mapping {
	m := make(Mapping, 0, len(headers))
	for _, h := range headers {
		tag, ok := v.lookupLabel(h.Label)
		if !ok && v.Contains(TagImage) && strings.Contains(strings.ToLower(h.Label), "image") {
			tag = TagImage
		}
		m = append(m, Binding{Column: h.Column, Label: h.Label, Tag: tag})
	}
	return m
}

// FromLabels builds a mapping from tag -> header label pairs, the shape a
// stock update is submitted in.
func FromLabels(headers []Header, labels map[Tag]string) (Mapping, error) {
	m := make(Mapping, 0, len(labels))
	for _, tag := range []Tag{TagSKU, TagStock} {
		label, ok := labels[tag]
		if !ok || label == "" {
			continue
		}
		h, found := findHeader(headers, label)
		if !found {
			return nil, fmt.Errorf("%w: column %q not found in spreadsheet header", ErrInvalidMapping, label)
		}
		m = append(m, Binding{Column: h.Column, Label: h.Label, Tag: tag})
	}
	return m, nil
}

func findHeader(headers []Header, label string) (Header, bool) {
	for _, h := range headers {
		if h.Label == label {
			return h, true
		}
	}
	for _, h := range headers {
		if strings.EqualFold(h.Label, label) {
			return h, true
		}
	}
	return Header{}, false
}

// columnIndex accepts a column letter ("A", "AB") or a 0-based index.
func columnIndex(key string) (int, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, fmt.Errorf("empty column key")
	}
	if n, err := strconv.Atoi(key); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative column index %d", n)
		}
		return n, nil
	}
	n, err := excelize.ColumnNameToNumber(key)
	if err != nil {
		return 0, err
	}
	return n - 1, nil
}

// required lists the tags each kind of job cannot run without.
func required(kind models.ImportKind) []Tag {
	if kind == models.KindStockUpdate {
		return []Tag{TagSKU, TagStock}
	}
	return []Tag{TagSKU, TagPrice}
}

// MissingColumnsError is returned when required tags are not bound.
type MissingColumnsError struct {
	Fields []string
}

func (e *MissingColumnsError) Error() string {
	return "Missing columns - " + strings.Join(e.Fields, ",")
}

// Validate enforces the submission precondition: every required tag is
// bound to a column.
func Validate(m Mapping, kind models.ImportKind) error {
	labels := map[Tag]string{TagSKU: "SKU", TagPrice: "Price", TagStock: "Stock"}
	var missing []string
	for _, t := range required(kind) {
		if !m.Bound(t) {
			missing = append(missing, labels[t])
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Fields: missing}
	}
	return nil
}
