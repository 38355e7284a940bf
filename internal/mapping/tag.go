package mapping

import (
	"strconv"
	"strings"
)

// Tag names the catalog field a spreadsheet column feeds. The empty tag
// means the column is not mapped.
type Tag string

const (
	Unmapped    Tag = ""
	TagID       Tag = "id"
	TagSKU      Tag = "sku"
	TagPrice    Tag = "price"
	TagStock    Tag = "stock"
	TagMinStock Tag = "min_stock"
	TagBrand    Tag = "brand"
	TagImage    Tag = "image"
)

const (
	namePrefix        = "name_"
	descriptionPrefix = "description_"
	filterPrefix      = "filter-"
)

func NameTag(locale string) Tag        { return Tag(namePrefix + locale) }
func DescriptionTag(locale string) Tag { return Tag(descriptionPrefix + locale) }
func FilterTag(filterID int64) Tag     { return Tag(filterPrefix + strconv.FormatInt(filterID, 10)) }

// FilterID returns the filter referenced by a "filter-<id>" tag.
func (t Tag) FilterID() (int64, bool) {
	rest, ok := strings.CutPrefix(string(t), filterPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (t Tag) IsFilter() bool {
	_, ok := t.FilterID()
	return ok
}
