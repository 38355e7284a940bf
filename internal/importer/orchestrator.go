// Package importer runs spreadsheet imports: it stages the uploaded files,
// streams rows through the reconciliation engine and keeps the job record's
// status and progress current.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vrsandeep/catalog-importer/internal/archive"
	"github.com/vrsandeep/catalog-importer/internal/blob"
	"github.com/vrsandeep/catalog-importer/internal/images"
	"github.com/vrsandeep/catalog-importer/internal/mapping"
	"github.com/vrsandeep/catalog-importer/internal/models"
	"github.com/vrsandeep/catalog-importer/internal/spreadsheet"
	"github.com/vrsandeep/catalog-importer/internal/store"
	"github.com/vrsandeep/catalog-importer/internal/util"
)

// ScratchPrefix starts the name of every per-run scratch directory.
const ScratchPrefix = "import_"

type Orchestrator struct {
	store  *store.Store
	blob   blob.Storage
	notify Notifier
	opts   Options
	log    *logrus.Entry
}

func NewOrchestrator(st *store.Store, bs blob.Storage, notify Notifier, opts Options, log *logrus.Entry) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{
		store:  st,
		blob:   bs,
		notify: notify,
		opts:   opts.withDefaults(),
		log:    log.WithField("component", "importer"),
	}
}

// Run claims a Pending job regardless of its delay and executes it in the
// calling goroutine.
func (o *Orchestrator) Run(ctx context.Context, id int64) error {
	job, err := o.store.ClaimImport(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("import %d: %w", id, ErrJobNotFound)
	case errors.Is(err, store.ErrStatusConflict):
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	case err != nil:
		return err
	}
	return o.Execute(ctx, job)
}

// Execute drives a claimed job to Success or Error. Every failure,
// panics included, is recorded on the job and also returned.
func (o *Orchestrator) Execute(ctx context.Context, job *models.ImportJob) (err error) {
	log := o.log.WithFields(logrus.Fields{"import_id": job.ID, "kind": job.Kind.String()})
	tracker := newTracker(o.store, o.notify, job, o.opts.ProgressEvery, o.opts.MaxMessageLength)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure: %v", r)
			log.WithField("stack", string(debug.Stack())).Error("Import panicked")
		}
		if err == nil {
			log.WithField("duration", time.Since(started).String()).Info("Import finished")
			return
		}
		log.WithError(err).Error("Import failed")
		if tracker.Status().IsTerminal() {
			return
		}
		// The run's context may already be cancelled; the failure must
		// still be recorded.
		if ferr := tracker.Fail(context.WithoutCancel(ctx), err); ferr != nil {
			log.WithError(ferr).Error("Could not record import failure")
		}
	}()

	if !job.HasSpreadsheet() {
		return ErrNoSpreadsheet
	}

	startMsg, doneMsg := MsgImporting, MsgImported
	if job.Kind == models.KindStockUpdate {
		startMsg, doneMsg = MsgUpdatingStocks, MsgStocksUpdated
	}
	if err := tracker.Start(ctx, startMsg); err != nil {
		return err
	}
	log.Info("Import started")

	scratch, err := o.makeScratch(job.ID)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := os.RemoveAll(scratch); rerr != nil {
			log.WithError(rerr).Warn("Could not remove scratch directory")
		}
	}()

	sheetPath, err := o.stage(ctx, job.SpreadsheetKey, filepath.Join(scratch, "sheet.xlsx"))
	if errors.Is(err, blob.ErrNotFound) {
		return ErrNoSpreadsheet
	}
	if err != nil {
		return err
	}

	m, err := mapping.Decode(job.ColumnMapping)
	if err != nil {
		return err
	}
	if err := mapping.Validate(m, job.Kind); err != nil {
		return err
	}
	plan, err := mapping.Compile(m)
	if err != nil {
		return err
	}

	var proc RowProcessor
	if job.Kind == models.KindStockUpdate {
		proc = NewStockEngine(o.store, o.opts.ReclaimEvery, o.reclaim, log)
	} else {
		proc, err = o.catalogEngine(ctx, job, scratch, log)
		if err != nil {
			return err
		}
	}

	if err := o.stream(ctx, sheetPath, plan, proc, tracker); err != nil {
		return err
	}

	summary := proc.Summary()
	log.WithFields(logrus.Fields{
		"created": summary.Created,
		"updated": summary.Updated,
		"skipped": summary.Skipped,
		"failed":  summary.Failed,
	}).Info("Rows processed")
	return tracker.Succeed(ctx, summary.Message(doneMsg))
}

func (o *Orchestrator) makeScratch(jobID int64) (string, error) {
	base := o.opts.ScratchDir
	if base == "" {
		base = os.TempDir()
	}
	if err := util.EnsureWritableDir(base); err != nil {
		return "", fmt.Errorf("scratch directory: %w", err)
	}
	dir := filepath.Join(base, fmt.Sprintf("%s%d_%s", ScratchPrefix, jobID, uuid.NewString()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}
	return dir, nil
}

// stage copies a blob into the scratch directory.
func (o *Orchestrator) stage(ctx context.Context, key, dst string) (string, error) {
	src, err := o.blob.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer src.Close()

	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	return dst, f.Close()
}

func (o *Orchestrator) catalogEngine(ctx context.Context, job *models.ImportJob, scratch string, log *logrus.Entry) (*Engine, error) {
	currency, err := o.store.CurrencyByCode(ctx, o.opts.Currency)
	if err != nil {
		return nil, fmt.Errorf("currency %q: %w", o.opts.Currency, err)
	}
	productType, err := o.store.ProductTypeID(ctx, o.opts.DefaultProductType)
	if err != nil {
		return nil, fmt.Errorf("default product type: %w", err)
	}

	imageDir := ""
	if job.HasArchive() {
		archivePath, err := o.stage(ctx, job.ArchiveKey, filepath.Join(scratch, "images.zip"))
		if err != nil {
			return nil, fmt.Errorf("stage image archive: %w", err)
		}
		imageDir = filepath.Join(scratch, "images")
		n, err := archive.ExtractZip(ctx, archivePath, imageDir)
		if err != nil {
			return nil, fmt.Errorf("%w: image archive: %v", ErrParse, err)
		}
		// The zip is no longer needed once extracted.
		os.Remove(archivePath)
		log.WithField("files", n).Info("Image archive extracted")
	}

	return NewEngine(ctx, EngineConfig{
		Catalog:       o.store,
		Images:        &images.Resolver{Blob: o.blob, RemotePrefix: o.opts.RemoteImagePrefix, ScratchDir: scratch},
		Attacher:      &images.Attacher{Blob: o.blob, Store: o.store, Log: log},
		ImageDir:      imageDir,
		CollectionID:  job.CollectionID,
		Locales:       o.opts.Locales,
		CurrencyID:    currency.ID,
		ProductTypeID: productType,
		ReclaimEvery:  o.opts.ReclaimEvery,
		Reclaim:       o.reclaim,
		Log:           log,
	})
}

// stream feeds every data row, in sheet order, to proc.
func (o *Orchestrator) stream(ctx context.Context, path string, plan *mapping.Plan, proc RowProcessor, tracker *Tracker) error {
	wb, err := spreadsheet.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	defer wb.Close()

	rows, err := wb.Rows()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	defer rows.Close()

	for rows.Next() {
		row := rows.Index()
		if row == 1 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		cells, err := rows.Cells()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrParse, err)
		}
		if !spreadsheet.IsBlank(cells) {
			if err := proc.Process(ctx, row, plan.Project(cells)); err != nil {
				return err
			}
		}
		if _, err := tracker.Progress(ctx, row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}

// reclaim hands idle connections and freed heap back between rows of a
// long run.
func (o *Orchestrator) reclaim() {
	o.store.Recycle()
	debug.FreeOSMemory()
}
