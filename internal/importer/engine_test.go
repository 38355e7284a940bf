package importer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/catalog-importer/internal/mapping"
	"github.com/vrsandeep/catalog-importer/internal/store"
	"github.com/vrsandeep/catalog-importer/internal/testutil"
)

func project(t *testing.T, m mapping.Mapping, cells ...string) mapping.RowFieldSet {
	t.Helper()
	plan, err := mapping.Compile(m)
	require.NoError(t, err)
	return plan.Project(cells)
}

func newTestEngine(t *testing.T, st *store.Store, reclaim func()) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), EngineConfig{
		Catalog:       st,
		Locales:       []string{"en", "lv"},
		CurrencyID:    1,
		ProductTypeID: 1,
		ReclaimEvery:  25,
		Reclaim:       reclaim,
	})
	require.NoError(t, err)
	return e
}

func TestEngineConstraintViolationIsRowError(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	e := newTestEngine(t, st, nil)

	m := append(mapping.Mapping{{Column: "C", Tag: mapping.FilterTag(999)}}, skuPrice...)
	err := e.Process(context.Background(), 2, project(t, m, "A", "1", "ghost"))
	require.NoError(t, err)

	s := e.Summary()
	assert.Equal(t, 1, s.Failed)
	require.NotNil(t, s.FirstError)
	assert.Equal(t, 2, s.FirstError.Row)
}

func TestEngineStoreFailureAbortsRun(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	e := newTestEngine(t, st, nil)
	db.Close()

	err := e.Process(context.Background(), 2, project(t, skuPrice, "A", "1"))
	require.Error(t, err)
	var rowErr *RowError
	assert.False(t, errors.As(err, &rowErr))
	assert.Equal(t, 0, e.Summary().Failed)
}

func TestEngineReclaimCadence(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	calls := 0
	e := newTestEngine(t, st, func() { calls++ })

	for row := 2; row <= 60; row++ {
		require.NoError(t, e.Process(context.Background(), row, project(t, skuPrice)))
	}
	assert.Equal(t, 2, calls)
	assert.Equal(t, 59, e.Summary().Skipped)
}

func TestEngineUpdateWithoutFieldsTouchesNothing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	productID, _ := testutil.CreateProduct(t, db, 0, 0, "KEEP", 500)
	e := newTestEngine(t, st, nil)

	m := mapping.Mapping{{Column: "A", Tag: mapping.TagID}, {Column: "B", Tag: mapping.TagBrand}}
	require.NoError(t, e.Process(context.Background(), 2, project(t, m, fmt.Sprint(productID), "Acme")))

	p, err := st.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, "Seed", p.Name["en"], "text is only rewritten when a text column has a value")
	require.NotNil(t, p.BrandID)
	assert.Equal(t, 1, e.Summary().Updated)
}

func TestEngineZeroMinStockIsUnset(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	productID, variantID := testutil.CreateProduct(t, db, 0, 0, "OLD", 100)
	_, err := db.Exec("UPDATE product_variants SET min_quantity = 5 WHERE id = ?", variantID)
	require.NoError(t, err)
	e := newTestEngine(t, st, nil)
	ctx := context.Background()

	update := mapping.Mapping{{Column: "A", Tag: mapping.TagID}, {Column: "B", Tag: mapping.TagMinStock}}
	require.NoError(t, e.Process(ctx, 2, project(t, update, fmt.Sprint(productID), "0")))

	create := append(mapping.Mapping{{Column: "C", Tag: mapping.TagMinStock}}, skuPrice...)
	require.NoError(t, e.Process(ctx, 3, project(t, create, "NEW", "1", "0")))

	var minQty int64
	require.NoError(t, db.QueryRow("SELECT min_quantity FROM product_variants WHERE id = ?", variantID).Scan(&minQty))
	assert.Equal(t, int64(5), minQty, "zero must not overwrite the existing min quantity")
	require.NoError(t, db.QueryRow("SELECT min_quantity FROM product_variants WHERE sku = 'NEW'").Scan(&minQty))
	assert.Equal(t, int64(1), minQty)

	s := e.Summary()
	assert.Equal(t, 1, s.Updated)
	assert.Equal(t, 1, s.Created)
	assert.Equal(t, 0, s.Failed)
}

func TestSummaryMessage(t *testing.T) {
	assert.Equal(t, "Imported", Summary{Created: 3}.Message(MsgImported))

	s := Summary{}
	s.fail(&RowError{Row: 4, Err: errors.New("bad price")})
	s.fail(&RowError{Row: 9, Err: errors.New("bad stock")})
	assert.Equal(t, "Imported with 2 row errors (first: row 4: bad price)", s.Message(MsgImported))
}

func TestPlaceholderSKU(t *testing.T) {
	a, b := placeholderSKU(), placeholderSKU()
	assert.Regexp(t, `^SKU-[0-9A-F]{13}$`, a)
	assert.NotEqual(t, a, b)
}

func TestStockEngine(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	_, variantID := testutil.CreateProduct(t, db, 0, 0, "A", 100)
	e := NewStockEngine(st, 25, nil, nil)
	m := mapping.Mapping{{Column: "A", Tag: mapping.TagSKU}, {Column: "B", Tag: mapping.TagStock}}
	ctx := context.Background()

	require.NoError(t, e.Process(ctx, 2, project(t, m, "A", "1.200,00")))
	require.NoError(t, e.Process(ctx, 3, project(t, m, "A", "n/a")))
	require.NoError(t, e.Process(ctx, 4, project(t, m, "B", "5")))
	require.NoError(t, e.Process(ctx, 5, project(t, m, "A")))

	s := e.Summary()
	assert.Equal(t, 1, s.Updated)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2, s.Skipped)

	var stock int64
	db.QueryRow("SELECT stock FROM product_variants WHERE id = ?", variantID).Scan(&stock)
	assert.Equal(t, int64(1200), stock)
}
