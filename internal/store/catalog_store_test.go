package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/catalog-importer/internal/models"
	"github.com/vrsandeep/catalog-importer/internal/store"
	"github.com/vrsandeep/catalog-importer/internal/testutil"
)

func TestCreateProductWithVariantAndPrice(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)
	ctx := context.Background()

	typeID, err := s.ProductTypeID(ctx, "")
	require.NoError(t, err)
	eur, err := s.CurrencyByCode(ctx, "eur")
	require.NoError(t, err)

	p := &models.Product{
		ProductTypeID: typeID,
		Status:        models.ProductStatusPublished,
		Name:          models.LocalizedText{"en": "Chair", "lv": "Krēsls"},
	}
	productID, err := s.CreateProduct(ctx, p)
	require.NoError(t, err)

	variantID, err := s.CreateVariant(ctx, &models.Variant{ProductID: productID, SKU: "CH-1", Stock: 4})
	require.NoError(t, err)
	_, err = s.CreatePrice(ctx, &models.Price{VariantID: variantID, CurrencyID: eur.ID, Amount: 1250})
	require.NoError(t, err)

	got, err := s.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, "Krēsls", got.Name["lv"])
	assert.Empty(t, got.Description)

	v, err := s.PrimaryVariant(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, "CH-1", v.SKU)
	assert.Equal(t, int64(1), v.MinQuantity)

	price, err := s.FirstPrice(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), price.Amount)
	assert.Equal(t, int64(1), price.MinQuantity)
}

func TestGetProductNotFound(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	_, err := s.GetProduct(context.Background(), 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateProductTextReplacesBothFields(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)
	ctx := context.Background()
	productID, _ := testutil.CreateProduct(t, db, 0, 0, "A", 100)

	err := s.UpdateProductText(ctx, productID,
		models.LocalizedText{"en": "New", "lv": ""},
		models.LocalizedText{"en": "", "lv": "Apraksts"})
	require.NoError(t, err)

	p, err := s.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, models.LocalizedText{"en": "New", "lv": ""}, p.Name)
	assert.Equal(t, "Apraksts", p.Description["lv"])
}

func TestUpdateStockBySKUTouchesFirstMatchOnly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)
	ctx := context.Background()
	_, first := testutil.CreateProduct(t, db, 0, 0, "DUP", 100)
	_, second := testutil.CreateProduct(t, db, 0, 0, "DUP", 100)

	found, err := s.UpdateStockBySKU(ctx, "DUP", 9)
	require.NoError(t, err)
	assert.True(t, found)

	var a, b int64
	db.QueryRow("SELECT stock FROM product_variants WHERE id = ?", first).Scan(&a)
	db.QueryRow("SELECT stock FROM product_variants WHERE id = ?", second).Scan(&b)
	assert.Equal(t, int64(9), a)
	assert.Equal(t, int64(0), b)

	found, err = s.UpdateStockBySKU(ctx, "MISSING", 1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFindOrCreateBrandIsIdempotent(t *testing.T) {
	s := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()

	id1, err := s.FindOrCreateBrand(ctx, "Acme")
	require.NoError(t, err)
	id2, err := s.FindOrCreateBrand(ctx, "Acme")
	require.NoError(t, err)
	id3, err := s.FindOrCreateBrand(ctx, "Other")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
}

func TestNextCollectionPosition(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)
	ctx := context.Background()
	col := testutil.CreateCollection(t, db, "Chairs", nil)

	next, err := s.NextCollectionPosition(ctx, col)
	require.NoError(t, err)
	if next != 2 {
		t.Errorf("Expected 2 for an empty collection, got %d", next)
	}

	testutil.CreateProduct(t, db, col, 7, "A", 100)
	next, err = s.NextCollectionPosition(ctx, col)
	require.NoError(t, err)
	if next != 8 {
		t.Errorf("Expected 8, got %d", next)
	}
}

func TestFiltersWithAncestors(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)
	ctx := context.Background()

	root := testutil.CreateCollection(t, db, "Furniture", nil)
	mid := testutil.CreateCollection(t, db, "Seating", &root)
	leaf := testutil.CreateCollection(t, db, "Chairs", &mid)
	fRoot := testutil.CreateFilter(t, db, root, "Material")
	fLeaf := testutil.CreateFilter(t, db, leaf, "Legs")
	other := testutil.CreateCollection(t, db, "Lamps", nil)
	testutil.CreateFilter(t, db, other, "Wattage")

	filters, err := s.FiltersWithAncestors(ctx, leaf)
	require.NoError(t, err)
	require.Len(t, filters, 2)
	assert.Equal(t, fLeaf, filters[0].ID)
	assert.Equal(t, fRoot, filters[1].ID)
}

func TestCollectionLineageStopsOnCycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)
	ctx := context.Background()

	a := testutil.CreateCollection(t, db, "A", nil)
	b := testutil.CreateCollection(t, db, "B", &a)
	_, err := db.Exec("UPDATE collections SET parent_id = ? WHERE id = ?", b, a)
	require.NoError(t, err)

	lineage, err := s.CollectionLineage(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []int64{b, a}, lineage)
}

func TestUpsertFilterValue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)
	ctx := context.Background()
	col := testutil.CreateCollection(t, db, "Chairs", nil)
	filterID := testutil.CreateFilter(t, db, col, "Material")
	productID, _ := testutil.CreateProduct(t, db, col, 2, "A", 100)

	require.NoError(t, s.UpsertFilterValue(ctx, filterID, productID, "Oak"))
	require.NoError(t, s.UpsertFilterValue(ctx, filterID, productID, strings.Repeat("ā", 300)))

	values, err := s.FilterValues(ctx, productID)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, store.MaxFilterValueLength, len([]rune(values[0].Value)))
}

func TestAttachToCollectionUpdatesPosition(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)
	ctx := context.Background()
	col := testutil.CreateCollection(t, db, "Chairs", nil)
	productID, _ := testutil.CreateProduct(t, db, 0, 0, "A", 100)

	require.NoError(t, s.AttachToCollection(ctx, col, productID, 3))
	require.NoError(t, s.AttachToCollection(ctx, col, productID, 5))

	var count, position int64
	db.QueryRow("SELECT COUNT(*), MAX(position) FROM collection_product WHERE product_id = ?", productID).Scan(&count, &position)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, int64(5), position)
}

func TestMedia(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)
	ctx := context.Background()
	productID, _ := testutil.CreateProduct(t, db, 0, 0, "A", 100)

	_, err := s.AddMedia(ctx, &models.Media{ProductID: productID, FileName: "a.png", StorageKey: "media/1/x-a.png"})
	require.NoError(t, err)

	media, err := s.ListMedia(ctx, productID)
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, "a.png", media[0].FileName)
	assert.Empty(t, media[0].Thumbnail)
}

func TestIsConstraint(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)
	_, err := s.CreateVariant(context.Background(), &models.Variant{ProductID: 12345, SKU: "X"})
	require.Error(t, err)
	assert.True(t, store.IsConstraint(err))
}
