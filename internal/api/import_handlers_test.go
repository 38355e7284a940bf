package api_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/catalog-importer/internal/testutil"
)

const skuPriceMapping = `[{"column":"A","label":"SKU","tag":"sku"},{"column":"B","label":"Price","tag":"price"}]`

type submitted struct {
	ID int64 `json:"id"`
}

type polled struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	Status      int    `json:"status"`
	StatusLabel string `json:"status_label"`
	Progress    string `json:"progress"`
}

func getImport(t *testing.T, serverRouter http.Handler, id int64) (*httptest.ResponseRecorder, polled) {
	t.Helper()
	rr := httptest.NewRecorder()
	serverRouter.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/imports/%d", id), nil))
	var p polled
	if rr.Code == http.StatusOK {
		decode(t, rr, &p)
	}
	return rr, p
}

func TestSubmitAndPollImport(t *testing.T) {
	server, app := setupTestServer(t)
	router := server.Router()
	sheet := testutil.SpreadsheetBytes(t, [][]string{{"SKU", "Price"}, {"CHAIR-1", "19.99"}})

	req := multipartRequest(t, "/api/imports", map[string]string{"mapping": skuPriceMapping},
		part{field: "spreadsheet", filename: "products.xlsx", data: sheet})
	rr := serve(server, req)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var sub submitted
	decode(t, rr, &sub)
	require.NotZero(t, sub.ID)

	rr, p := getImport(t, router, sub.ID)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, p.Status)
	assert.Equal(t, "Pending", p.StatusLabel)
	assert.Equal(t, "Preparing to import", p.Progress)
	assert.Equal(t, "catalog", p.Kind)

	require.NoError(t, app.Orchestrator().Run(context.Background(), sub.ID))

	_, p = getImport(t, router, sub.ID)
	assert.Equal(t, 4, p.Status)
	assert.Equal(t, "Success", p.StatusLabel)
	assert.Equal(t, "Imported", p.Progress)

	var n int
	require.NoError(t, app.DB().QueryRow("SELECT COUNT(*) FROM product_variants WHERE sku = 'CHAIR-1'").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSubmitImportMissingColumns(t *testing.T) {
	server, _ := setupTestServer(t)
	sheet := testutil.SpreadsheetBytes(t, [][]string{{"SKU"}, {"A"}})

	req := multipartRequest(t, "/api/imports",
		map[string]string{"mapping": `[{"column":"A","tag":"name_en"}]`},
		part{field: "spreadsheet", filename: "products.xlsx", data: sheet})
	rr := serve(server, req)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var body struct {
		Error   string   `json:"error"`
		Missing []string `json:"missing"`
	}
	decode(t, rr, &body)
	assert.Equal(t, "Missing columns - SKU,Price", body.Error)
	assert.Equal(t, []string{"SKU", "Price"}, body.Missing)
}

func TestSubmitImportBadRequests(t *testing.T) {
	server, _ := setupTestServer(t)
	sheet := testutil.SpreadsheetBytes(t, [][]string{{"SKU", "Price"}})

	testCases := []struct {
		name   string
		values map[string]string
		files  []part
		want   int
	}{
		{"No spreadsheet", map[string]string{"mapping": skuPriceMapping}, nil, http.StatusBadRequest},
		{"Mapping not JSON", map[string]string{"mapping": "sku=A"},
			[]part{{"spreadsheet", "p.xlsx", sheet}}, http.StatusBadRequest},
		{"Bad collection id", map[string]string{"mapping": skuPriceMapping, "collection_id": "abc"},
			[]part{{"spreadsheet", "p.xlsx", sheet}}, http.StatusBadRequest},
		{"Unknown collection", map[string]string{"mapping": skuPriceMapping, "collection_id": "999"},
			[]part{{"spreadsheet", "p.xlsx", sheet}}, http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(server, multipartRequest(t, "/api/imports", tc.values, tc.files...))
			if rr.Code != tc.want {
				t.Errorf("handler returned wrong status code: got %v want %v (%s)", rr.Code, tc.want, rr.Body.String())
			}
		})
	}
}

func TestRetryImport(t *testing.T) {
	server, app := setupTestServer(t)
	sheet := testutil.SpreadsheetBytes(t, [][]string{{"SKU", "Price"}, {"A", "1"}})

	rr := serve(server, multipartRequest(t, "/api/imports", map[string]string{"mapping": skuPriceMapping},
		part{"spreadsheet", "p.xlsx", sheet},
		part{"archive", "images.zip", []byte("not a zip")}))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var sub submitted
	decode(t, rr, &sub)

	retryURL := fmt.Sprintf("/api/imports/%d/retry", sub.ID)
	rr = serve(server, httptest.NewRequest(http.MethodPost, retryURL, nil))
	assert.Equal(t, http.StatusConflict, rr.Code, "pending jobs cannot be retried")

	app.Orchestrator().Run(context.Background(), sub.ID)
	_, p := getImport(t, server.Router(), sub.ID)
	require.Equal(t, "Error", p.StatusLabel)

	rr = serve(server, httptest.NewRequest(http.MethodPost, retryURL, nil))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	decode(t, rr, &p)
	assert.Equal(t, "Pending", p.StatusLabel)
	assert.Equal(t, "Preparing to import", p.Progress)

	rr = serve(server, httptest.NewRequest(http.MethodPost, "/api/imports/9999/retry", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteAndListImports(t *testing.T) {
	server, app := setupTestServer(t)
	col := testutil.CreateCollection(t, app.DB(), "Chairs", nil)
	sheet := testutil.SpreadsheetBytes(t, [][]string{{"SKU", "Price"}})

	var ids []int64
	for _, values := range []map[string]string{
		{"mapping": skuPriceMapping},
		{"mapping": skuPriceMapping, "collection_id": fmt.Sprint(col)},
	} {
		rr := serve(server, multipartRequest(t, "/api/imports", values, part{"spreadsheet", "p.xlsx", sheet}))
		require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
		var sub submitted
		decode(t, rr, &sub)
		ids = append(ids, sub.ID)
	}

	var list []polled
	rr := serve(server, httptest.NewRequest(http.MethodGet, "/api/imports", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &list)
	assert.Len(t, list, 2)

	rr = serve(server, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/imports?collection_id=%d", col), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &list)
	require.Len(t, list, 1)
	assert.Equal(t, ids[1], list[0].ID)

	rr = serve(server, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/imports/%d", ids[0]), nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr, _ = getImport(t, server.Router(), ids[0])
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(server, httptest.NewRequest(http.MethodGet, "/api/imports/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPreviewImport(t *testing.T) {
	server, app := setupTestServer(t)
	col := testutil.CreateCollection(t, app.DB(), "Chairs", nil)
	testutil.CreateFilter(t, app.DB(), col, "Material")
	sheet := testutil.SpreadsheetBytes(t, [][]string{{"SKU", "Price", "Material", "Photo image"}})

	rr := serve(server, multipartRequest(t, "/api/imports/preview",
		map[string]string{"collection_id": fmt.Sprint(col)},
		part{"spreadsheet", "p.xlsx", sheet}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var preview struct {
		Headers []struct {
			Column string `json:"column"`
			Label  string `json:"label"`
		} `json:"headers"`
		Mapping []struct {
			Column string `json:"column"`
			Tag    string `json:"tag"`
		} `json:"mapping"`
	}
	decode(t, rr, &preview)
	require.Len(t, preview.Headers, 4)
	require.Len(t, preview.Mapping, 4)
	assert.Equal(t, "sku", preview.Mapping[0].Tag)
	assert.Equal(t, "price", preview.Mapping[1].Tag)
	assert.Contains(t, preview.Mapping[2].Tag, "filter-")
	assert.Equal(t, "image", preview.Mapping[3].Tag)
}

func TestStockImport(t *testing.T) {
	server, app := setupTestServer(t)
	_, variantID := testutil.CreateProduct(t, app.DB(), 0, 0, "LAMP-1", 500)
	sheet := testutil.SpreadsheetBytes(t, [][]string{{"Code", "Qty"}, {"LAMP-1", "42"}})

	rr := serve(server, multipartRequest(t, "/api/stock-imports",
		map[string]string{"mapping": `{"sku":"Code","stock":"Qty"}`},
		part{"spreadsheet", "stock.xlsx", sheet}))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var sub submitted
	decode(t, rr, &sub)

	require.NoError(t, app.Orchestrator().Run(context.Background(), sub.ID))
	_, p := getImport(t, server.Router(), sub.ID)
	assert.Equal(t, "stock", p.Kind)
	assert.Equal(t, "Stocks updated", p.Progress)

	var stock int
	require.NoError(t, app.DB().QueryRow("SELECT stock FROM product_variants WHERE id = ?", variantID).Scan(&stock))
	assert.Equal(t, 42, stock)

	rr = serve(server, multipartRequest(t, "/api/stock-imports",
		map[string]string{"mapping": `{"sku":"Code"}`},
		part{"spreadsheet", "stock.xlsx", sheet}))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = serve(server, multipartRequest(t, "/api/stock-imports",
		map[string]string{"mapping": `{"sku":"Barcode","stock":"Qty"}`},
		part{"spreadsheet", "stock.xlsx", sheet}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestImportFields(t *testing.T) {
	server, app := setupTestServer(t)
	parent := testutil.CreateCollection(t, app.DB(), "Furniture", nil)
	child := testutil.CreateCollection(t, app.DB(), "Chairs", &parent)
	testutil.CreateFilter(t, app.DB(), parent, "Colour")

	rr := serve(server, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/collections/%d/import-fields", child), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var options []struct {
		Tag   string `json:"tag"`
		Label string `json:"label"`
	}
	decode(t, rr, &options)
	labels := make([]string, 0, len(options))
	for _, o := range options {
		labels = append(labels, o.Label)
	}
	assert.Contains(t, labels, "SKU")
	assert.Contains(t, labels, "Product Name EN")
	assert.Contains(t, labels, "Colour")

	rr = serve(server, httptest.NewRequest(http.MethodGet, "/api/collections/999/import-fields", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
