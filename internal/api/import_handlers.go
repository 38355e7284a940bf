package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vrsandeep/catalog-importer/internal/importer"
	"github.com/vrsandeep/catalog-importer/internal/mapping"
	"github.com/vrsandeep/catalog-importer/internal/models"
	"github.com/vrsandeep/catalog-importer/internal/store"
)

// multipartMemory is how much of an upload is buffered in memory before
// the rest spills to temporary files.
const multipartMemory = 32 << 20

// importView is the polling shape of a job.
type importView struct {
	ID              int64     `json:"id"`
	Kind            string    `json:"kind"`
	CollectionID    *int64    `json:"collection_id,omitempty"`
	Status          int       `json:"status"`
	StatusLabel     string    `json:"status_label"`
	Progress        string    `json:"progress"`
	SpreadsheetName string    `json:"spreadsheet_name,omitempty"`
	ArchiveName     string    `json:"archive_name,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func newImportView(job *models.ImportJob) importView {
	return importView{
		ID:              job.ID,
		Kind:            job.Kind.String(),
		CollectionID:    job.CollectionID,
		Status:          int(job.Status),
		StatusLabel:     job.Status.Label(),
		Progress:        job.Progress,
		SpreadsheetName: job.SpreadsheetName,
		ArchiveName:     job.ArchiveName,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
}

func (s *Server) handleSubmitImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	collectionID, err := optionalID(r.FormValue("collection_id"))
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid collection_id")
		return
	}
	m, err := mapping.Decode([]byte(r.FormValue("mapping")))
	if err != nil {
		s.respondImportError(w, err)
		return
	}

	sheet, err := formUpload(r, "spreadsheet")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if sheet != nil {
		defer sheet.file.Close()
	}
	archive, err := formUpload(r, "archive")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if archive != nil {
		defer archive.file.Close()
	}

	job, err := s.submitter.Submit(r.Context(), importer.Submission{
		Kind:         models.KindCatalogUpsert,
		CollectionID: collectionID,
		Mapping:      m,
		Spreadsheet:  sheet.upload(),
		Archive:      archive.upload(),
	})
	if err != nil {
		s.respondImportError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusAccepted, map[string]int64{"id": job.ID})
}

func (s *Server) handleSubmitStockImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	var labels struct {
		SKU   string `json:"sku"`
		Stock string `json:"stock"`
	}
	if raw := r.FormValue("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &labels); err != nil {
			RespondWithError(w, http.StatusBadRequest, "Invalid mapping: "+err.Error())
			return
		}
	}

	sheet, err := formUpload(r, "spreadsheet")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if sheet == nil {
		s.respondImportError(w, importer.ErrNoSpreadsheet)
		return
	}
	defer sheet.file.Close()

	m, err := importer.StockMapping(sheet.file, map[mapping.Tag]string{
		mapping.TagSKU:   labels.SKU,
		mapping.TagStock: labels.Stock,
	})
	if err != nil {
		s.respondImportError(w, err)
		return
	}

	job, err := s.submitter.Submit(r.Context(), importer.Submission{
		Kind:        models.KindStockUpdate,
		Mapping:     m,
		Spreadsheet: sheet.upload(),
	})
	if err != nil {
		s.respondImportError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusAccepted, map[string]int64{"id": job.ID})
}

func (s *Server) handlePreviewImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	collectionID, err := optionalID(r.FormValue("collection_id"))
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid collection_id")
		return
	}
	kind := models.KindCatalogUpsert
	if r.FormValue("kind") == models.KindStockUpdate.String() {
		kind = models.KindStockUpdate
	}

	sheet, err := formUpload(r, "spreadsheet")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if sheet == nil {
		s.respondImportError(w, importer.ErrNoSpreadsheet)
		return
	}
	defer sheet.file.Close()

	preview, err := s.submitter.Preview(r.Context(), sheet.file, kind, collectionID)
	if err != nil {
		s.respondImportError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, preview)
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	collectionID, err := optionalID(r.URL.Query().Get("collection_id"))
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid collection_id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	jobs, err := s.store.ListImports(r.Context(), collectionID, limit)
	if err != nil {
		s.respondImportError(w, err)
		return
	}
	views := make([]importView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, newImportView(job))
	}
	RespondWithJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "importID")
	if !ok {
		return
	}
	job, err := s.store.GetImport(r.Context(), id)
	if err != nil {
		s.respondImportError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, newImportView(job))
}

func (s *Server) handleRetryImport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "importID")
	if !ok {
		return
	}
	job, err := s.submitter.Retry(r.Context(), id)
	if err != nil {
		s.respondImportError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusAccepted, newImportView(job))
}

func (s *Server) handleDeleteImport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "importID")
	if !ok {
		return
	}
	if err := s.submitter.Delete(r.Context(), id); err != nil {
		s.respondImportError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetImportFields(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "collectionID")
	if !ok {
		return
	}
	vocab, err := s.submitter.Vocabulary(r.Context(), &id)
	if err != nil {
		s.respondImportError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, vocab.Options())
}

// respondImportError maps pipeline errors onto status codes.
func (s *Server) respondImportError(w http.ResponseWriter, err error) {
	var missing *mapping.MissingColumnsError
	switch {
	case errors.As(err, &missing):
		RespondWithJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   missing.Error(),
			"missing": missing.Fields,
		})
	case errors.Is(err, importer.ErrJobNotFound), errors.Is(err, store.ErrNotFound),
		errors.Is(err, importer.ErrCollectionNotFound):
		RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, importer.ErrInvalidTransition):
		RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, mapping.ErrInvalidMapping), errors.Is(err, importer.ErrParse),
		errors.Is(err, importer.ErrNoSpreadsheet):
		RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		s.app.Log().WithError(err).Error("Import request failed")
		RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

type formFile struct {
	file multipart.File
	name string
}

func (f *formFile) upload() *importer.Upload {
	if f == nil {
		return nil
	}
	return &importer.Upload{Name: f.name, Body: f.file}
}

// formUpload returns nil without error when the field was not sent.
func formUpload(r *http.Request, field string) (*formFile, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s upload: %v", field, err)
	}
	return &formFile{file: file, name: header.Filename}, nil
}

func optionalID(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid id %q", raw)
	}
	return &id, nil
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		RespondWithError(w, http.StatusBadRequest, "Invalid "+param)
		return 0, false
	}
	return id, true
}
