package api_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/vrsandeep/catalog-importer/internal/api"
	"github.com/vrsandeep/catalog-importer/internal/config"
	"github.com/vrsandeep/catalog-importer/internal/core"
)

// setupTestServer builds a full App on a temp database and local blob
// root. Imports are not picked up by workers; tests run them directly.
func setupTestServer(t *testing.T) (*api.Server, *core.App) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Log.Level = "warn"
	cfg.Database.Path = filepath.Join(dir, "catalog.db")
	cfg.Storage.Local.Root = filepath.Join(dir, "storage")
	cfg.Import.ScratchDir = filepath.Join(dir, "scratch")
	cfg.Import.SubmitDelay = 0

	app, err := core.NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("Failed to build app: %v", err)
	}
	t.Cleanup(app.Close)
	return api.NewServer(app), app
}

type part struct {
	field    string
	filename string
	data     []byte
}

// multipartRequest builds a POST with the given form values and files.
func multipartRequest(t *testing.T, url string, values map[string]string, files ...part) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range values {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("Failed to write field %s: %v", k, err)
		}
	}
	for _, f := range files {
		w, err := writer.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatalf("Failed to create form file %s: %v", f.field, err)
		}
		w.Write(f.data)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func serve(server *api.Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
}
