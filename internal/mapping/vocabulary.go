package mapping

import (
	"fmt"
	"strings"

	"github.com/vrsandeep/catalog-importer/internal/models"
)

// Option is one choice offered for a column.
type Option struct {
	Tag   Tag    `json:"tag"`
	Label string `json:"label"`
}

// Vocabulary is the ordered set of tags a mapping may use for one target.
type Vocabulary struct {
	options []Option
	byTag   map[Tag]int
}

func newVocabulary(options []Option) *Vocabulary {
	v := &Vocabulary{byTag: make(map[Tag]int, len(options))}
	for _, o := range options {
		if _, dup := v.byTag[o.Tag]; dup {
			continue
		}
		v.byTag[o.Tag] = len(v.options)
		v.options = append(v.options, o)
	}
	return v
}

// CatalogVocabulary builds the tag set for importing into a collection:
// the fixed fields, name and description per locale, and one tag per
// filter visible on the collection (its own and inherited ones).
func CatalogVocabulary(locales []string, filters []models.Filter) *Vocabulary {
	options := []Option{{TagID, "ID"}}
	for _, l := range locales {
		options = append(options, Option{NameTag(l), "Product Name " + strings.ToUpper(l)})
	}
	for _, l := range locales {
		options = append(options, Option{DescriptionTag(l), "Description " + strings.ToUpper(l)})
	}
	options = append(options,
		Option{TagSKU, "SKU"},
		Option{TagPrice, "Price"},
		Option{TagStock, "Stock"},
		Option{TagMinStock, "Min Stock"},
		Option{TagBrand, "Brand"},
		Option{TagImage, "Image"},
	)
	for _, f := range filters {
		options = append(options, Option{FilterTag(f.ID), f.Name})
	}
	return newVocabulary(options)
}

// StockVocabulary is the tag set of a stock-only update.
func StockVocabulary() *Vocabulary {
	return newVocabulary([]Option{{TagSKU, "SKU"}, {TagStock, "Stock"}})
}

func (v *Vocabulary) Options() []Option {
	out := make([]Option, len(v.options))
	copy(out, v.options)
	return out
}

func (v *Vocabulary) Contains(t Tag) bool {
	_, ok := v.byTag[t]
	return ok
}

func (v *Vocabulary) Label(t Tag) string {
	if i, ok := v.byTag[t]; ok {
		return v.options[i].Label
	}
	return string(t)
}

// lookupLabel finds a tag by its label, exact match first.
func (v *Vocabulary) lookupLabel(label string) (Tag, bool) {
	for _, o := range v.options {
		if o.Label == label {
			return o.Tag, true
		}
	}
	for _, o := range v.options {
		if strings.EqualFold(o.Label, label) || strings.EqualFold(string(o.Tag), label) {
			return o.Tag, true
		}
	}
	return Unmapped, false
}

// Check rejects tags the vocabulary does not offer, such as a filter that
// belongs to an unrelated collection.
func (v *Vocabulary) Check(m Mapping) error {
	for _, b := range m {
		if b.Tag != Unmapped && !v.Contains(b.Tag) {
			return fmt.Errorf("%w: column %s: unknown field %q", ErrInvalidMapping, b.Column, b.Tag)
		}
	}
	return nil
}
