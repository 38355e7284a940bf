package models

import "time"

// LocalizedText maps a locale code ("en", "lv") to text.
type LocalizedText map[string]string

const (
	ProductStatusDraft     = "draft"
	ProductStatusPublished = "published"
)

type Product struct {
	ID            int64         `json:"id"`
	ProductTypeID int64         `json:"product_type_id"`
	BrandID       *int64        `json:"brand_id,omitempty"`
	Status        string        `json:"status"`
	Name          LocalizedText `json:"name"`
	Description   LocalizedText `json:"description"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Variant is a sellable unit of a product. Imports only ever touch the
// product's first (lowest id) variant.
type Variant struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	SKU         string `json:"sku"`
	Stock       int64  `json:"stock"`
	MinQuantity int64  `json:"min_quantity"`
}

// Price is an amount in minor units (cents) of a currency.
type Price struct {
	ID          int64 `json:"id"`
	VariantID   int64 `json:"variant_id"`
	CurrencyID  int64 `json:"currency_id"`
	Amount      int64 `json:"price"`
	MinQuantity int64 `json:"min_quantity"`
}

type Currency struct {
	ID            int64  `json:"id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	DecimalPlaces int    `json:"decimal_places"`
}

type Brand struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Collection struct {
	ID       int64  `json:"id"`
	ParentID *int64 `json:"parent_id,omitempty"`
	Name     string `json:"name"`
}

const FilterTypeDropdown = 1

// Filter is a custom attribute declared on a collection and inherited by
// its descendants.
type Filter struct {
	ID           int64  `json:"id"`
	CollectionID int64  `json:"collection_id"`
	Name         string `json:"name"`
	Type         int    `json:"type"`
}

// FilterValue is the per-product value of a filter. (FilterID, ProductID)
// is unique.
type FilterValue struct {
	ID        int64     `json:"id"`
	FilterID  int64     `json:"filter_id"`
	ProductID int64     `json:"product_id"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Media struct {
	ID         int64  `json:"id"`
	ProductID  int64  `json:"product_id"`
	FileName   string `json:"file_name"`
	StorageKey string `json:"storage_key"`
	Thumbnail  string `json:"thumbnail,omitempty"`
}
