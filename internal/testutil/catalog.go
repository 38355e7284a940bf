package testutil

import (
	"database/sql"
	"testing"
	"time"
)

// CreateCollection inserts a collection and returns its id.
func CreateCollection(t *testing.T, db *sql.DB, name string, parentID *int64) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO collections (parent_id, name, created_at) VALUES (?, ?, ?)", parentID, name, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create collection %q: %v", name, err)
	}
	id, _ := res.LastInsertId()
	return id
}

// CreateFilter declares a dropdown filter on a collection.
func CreateFilter(t *testing.T, db *sql.DB, collectionID int64, name string) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO filters (collection_id, name, type, created_at) VALUES (?, ?, 1, ?)", collectionID, name, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create filter %q: %v", name, err)
	}
	id, _ := res.LastInsertId()
	return id
}

// CreateProduct inserts a published product with one variant and one eur
// price, attached to the collection at the given position. It returns the
// product and variant ids.
func CreateProduct(t *testing.T, db *sql.DB, collectionID int64, position int64, sku string, price int64) (int64, int64) {
	t.Helper()
	now := time.Now().UTC()
	res, err := db.Exec(`INSERT INTO products (product_type_id, status, name, description, created_at, updated_at)
		VALUES ((SELECT id FROM product_types ORDER BY id LIMIT 1), 'published', '{"en":"Seed"}', '{}', ?, ?)`, now, now)
	if err != nil {
		t.Fatalf("Failed to create product: %v", err)
	}
	productID, _ := res.LastInsertId()

	res, err = db.Exec("INSERT INTO product_variants (product_id, sku, stock, min_quantity, created_at, updated_at) VALUES (?, ?, 0, 1, ?, ?)", productID, sku, now, now)
	if err != nil {
		t.Fatalf("Failed to create variant: %v", err)
	}
	variantID, _ := res.LastInsertId()

	_, err = db.Exec(`INSERT INTO prices (variant_id, currency_id, price, min_quantity, created_at, updated_at)
		VALUES (?, (SELECT id FROM currencies WHERE code = 'eur'), ?, 1, ?, ?)`, variantID, price, now, now)
	if err != nil {
		t.Fatalf("Failed to create price: %v", err)
	}

	if collectionID > 0 {
		_, err = db.Exec("INSERT INTO collection_product (collection_id, product_id, position) VALUES (?, ?, ?)", collectionID, productID, position)
		if err != nil {
			t.Fatalf("Failed to attach product: %v", err)
		}
	}
	return productID, variantID
}
