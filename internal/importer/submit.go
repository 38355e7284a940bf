package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vrsandeep/catalog-importer/internal/blob"
	"github.com/vrsandeep/catalog-importer/internal/mapping"
	"github.com/vrsandeep/catalog-importer/internal/models"
	"github.com/vrsandeep/catalog-importer/internal/spreadsheet"
	"github.com/vrsandeep/catalog-importer/internal/store"
	"github.com/vrsandeep/catalog-importer/internal/util"
)

var ErrCollectionNotFound = errors.New("collection not found")

// Upload is a file received from the admin UI.
type Upload struct {
	Name string
	Body io.Reader
}

// Submission is everything needed to queue an import.
type Submission struct {
	Kind         models.ImportKind
	CollectionID *int64
	Mapping      mapping.Mapping
	Spreadsheet  *Upload
	Archive      *Upload
}

// Submitter validates and queues imports and handles the admin actions
// on existing jobs.
type Submitter struct {
	store  *store.Store
	blob   blob.Storage
	notify Notifier
	opts   Options
	log    *logrus.Entry
	now    func() time.Time
}

func NewSubmitter(st *store.Store, bs blob.Storage, notify Notifier, opts Options, log *logrus.Entry) *Submitter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Submitter{
		store:  st,
		blob:   bs,
		notify: notify,
		opts:   opts.withDefaults(),
		log:    log.WithField("component", "submitter"),
		now:    time.Now,
	}
}

// Vocabulary returns the tags a catalog import into the collection may
// use. A nil collection offers only the fixed fields.
func (s *Submitter) Vocabulary(ctx context.Context, collectionID *int64) (*mapping.Vocabulary, error) {
	if collectionID == nil {
		return mapping.CatalogVocabulary(s.opts.Locales, nil), nil
	}
	filters, err := s.store.FiltersWithAncestors(ctx, *collectionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("collection %d: %w", *collectionID, ErrCollectionNotFound)
	}
	if err != nil {
		return nil, err
	}
	return mapping.CatalogVocabulary(s.opts.Locales, filters), nil
}

// Preview is the header row of an upload with a proposed mapping.
type Preview struct {
	Headers    []mapping.Header `json:"headers"`
	Vocabulary []mapping.Option `json:"vocabulary"`
	Mapping    mapping.Mapping  `json:"mapping"`
}

// Preview reads only the header row of the spreadsheet and guesses a
// mapping against the collection's vocabulary.
func (s *Submitter) Preview(ctx context.Context, sheet io.Reader, kind models.ImportKind, collectionID *int64) (*Preview, error) {
	vocab := mapping.StockVocabulary()
	if kind != models.KindStockUpdate {
		var err error
		if vocab, err = s.Vocabulary(ctx, collectionID); err != nil {
			return nil, err
		}
	}

	wb, err := spreadsheet.OpenReader(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	defer wb.Close()
	cells, err := wb.Header()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	headers := mapping.HeadersFromRow(cells)
	return &Preview{
		Headers:    headers,
		Vocabulary: vocab.Options(),
		Mapping:    mapping.Guess(headers, vocab),
	}, nil
}

// StockMapping resolves a stock update's {sku, stock} header labels
// against the spreadsheet's header row and rewinds sheet for Submit.
func StockMapping(sheet io.ReadSeeker, labels map[mapping.Tag]string) (mapping.Mapping, error) {
	wb, err := spreadsheet.OpenReader(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	cells, err := wb.Header()
	wb.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if _, err := sheet.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return mapping.FromLabels(mapping.HeadersFromRow(cells), labels)
}

// Submit validates the mapping, stores the uploads and creates a Pending
// job that becomes claimable after the submit delay.
func (s *Submitter) Submit(ctx context.Context, sub Submission) (*models.ImportJob, error) {
	if sub.Kind == 0 {
		sub.Kind = models.KindCatalogUpsert
	}
	if sub.Spreadsheet == nil {
		return nil, ErrNoSpreadsheet
	}
	if err := mapping.Validate(sub.Mapping, sub.Kind); err != nil {
		return nil, err
	}
	if sub.Kind == models.KindCatalogUpsert {
		vocab, err := s.Vocabulary(ctx, sub.CollectionID)
		if err != nil {
			return nil, err
		}
		if err := vocab.Check(sub.Mapping); err != nil {
			return nil, err
		}
	} else if err := mapping.StockVocabulary().Check(sub.Mapping); err != nil {
		return nil, err
	}
	if _, err := mapping.Compile(sub.Mapping); err != nil {
		return nil, err
	}
	encoded, err := sub.Mapping.Encode()
	if err != nil {
		return nil, err
	}

	prefix := blob.Join("imports", uuid.NewString())
	job := &models.ImportJob{
		Kind:          sub.Kind,
		CollectionID:  sub.CollectionID,
		ColumnMapping: encoded,
		Status:        models.ImportPending,
		Progress:      MsgPreparing,
		AvailableAt:   s.now().Add(s.opts.SubmitDelay),
	}
	job.SpreadsheetKey, job.SpreadsheetName, err = s.put(ctx, prefix, sub.Spreadsheet)
	if err != nil {
		return nil, err
	}
	if sub.Archive != nil && sub.Kind == models.KindCatalogUpsert {
		job.ArchiveKey, job.ArchiveName, err = s.put(ctx, prefix, sub.Archive)
		if err != nil {
			s.blob.DeleteDir(ctx, prefix)
			return nil, err
		}
	}

	if _, err := s.store.CreateImport(ctx, job); err != nil {
		s.blob.DeleteDir(ctx, prefix)
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"import_id": job.ID, "kind": job.Kind.String()}).Info("Import queued")
	s.publish(job)
	return job, nil
}

func (s *Submitter) put(ctx context.Context, prefix string, up *Upload) (key, name string, err error) {
	name = util.SanitizeFileName(up.Name)
	key = blob.Join(prefix, name)
	if err := s.blob.Put(ctx, key, up.Body); err != nil {
		return "", "", fmt.Errorf("store %s: %w", name, err)
	}
	return key, up.Name, nil
}

// Retry requeues a failed job. Only Error jobs qualify.
func (s *Submitter) Retry(ctx context.Context, id int64) (*models.ImportJob, error) {
	if err := Retry(ctx, s.store, id, s.opts.RetryDelay, s.now()); err != nil {
		return nil, err
	}
	job, err := s.store.GetImport(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.WithField("import_id", id).Info("Import requeued")
	s.publish(job)
	return job, nil
}

// Delete removes a job that is not running, together with its uploads.
func (s *Submitter) Delete(ctx context.Context, id int64) error {
	job, err := s.store.GetImport(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("import %d: %w", id, ErrJobNotFound)
	}
	if err != nil {
		return err
	}
	if err := s.store.DeleteImport(ctx, id); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}
		return err
	}
	for _, key := range []string{job.SpreadsheetKey, job.ArchiveKey} {
		if key == "" {
			continue
		}
		if err := s.blob.DeleteDir(ctx, path.Dir(key)); err != nil {
			s.log.WithError(err).WithField("import_id", id).Warn("Could not delete import uploads")
		}
	}
	return nil
}

func (s *Submitter) publish(job *models.ImportJob) {
	if s.notify == nil {
		return
	}
	s.notify.BroadcastJSON(models.ProgressUpdate{
		JobID:   "import",
		ItemID:  job.ID,
		Message: job.Progress,
		Status:  job.Status.Label(),
	})
}
