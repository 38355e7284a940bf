package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vrsandeep/catalog-importer/internal/models"
	"github.com/vrsandeep/catalog-importer/internal/store"
)

const (
	MsgPreparing      = "Preparing to import"
	MsgImporting      = "Importing"
	MsgImported       = "Imported"
	MsgNoSpreadsheet  = "No Excel file attached to import."
	MsgUpdatingStocks = "Updating stocks"
	MsgStocksUpdated  = "Stocks updated"
	MsgInterrupted    = "interrupted before completion"
)

var (
	ErrInvalidTransition = errors.New("invalid import status transition")
	ErrJobNotFound       = errors.New("import job not found")
	ErrNoSpreadsheet     = errors.New(MsgNoSpreadsheet)
)

var transitions = map[models.ImportStatus][]models.ImportStatus{
	models.ImportPending:    {models.ImportInProgress, models.ImportError},
	models.ImportInProgress: {models.ImportSuccess, models.ImportError},
	models.ImportError:      {models.ImportPending},
}

// Transition checks that a job may move from one status to another.
// Success is final; Error only goes back to Pending through a retry.
func Transition(from, to models.ImportStatus) error {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from.Label(), to.Label())
}

// Truncate cuts msg to at most n characters.
func Truncate(msg string, n int) string {
	if n <= 0 || utf8.RuneCountInString(msg) <= n {
		return msg
	}
	return string([]rune(msg)[:n])
}

// FailureMessage is the progress text of a failed job.
func FailureMessage(err error, max int) string {
	msg := strings.Join(strings.Fields(err.Error()), " ")
	return Truncate("Failed - "+msg, max)
}

// JobStore is the persistence the state machine needs.
type JobStore interface {
	GetImport(ctx context.Context, id int64) (*models.ImportJob, error)
	SetImportState(ctx context.Context, id int64, from []models.ImportStatus, to models.ImportStatus, progress string) error
	UpdateImportProgress(ctx context.Context, id int64, progress string) error
	RequeueImport(ctx context.Context, id int64, availableAt time.Time, progress string) error
}

// Notifier receives every persisted state change. The websocket hub
// implements it.
type Notifier interface {
	BroadcastJSON(v interface{})
}

// Tracker persists the state of one claimed run. Once it has written a
// terminal status every further write is refused.
type Tracker struct {
	store    JobStore
	notify   Notifier
	jobID    int64
	status   models.ImportStatus
	every    int
	maxLen   int
	progress func(row int) string
}

func newTracker(st JobStore, notify Notifier, job *models.ImportJob, every, maxLen int) *Tracker {
	if every <= 0 {
		every = 20
	}
	t := &Tracker{store: st, notify: notify, jobID: job.ID, status: job.Status, every: every, maxLen: maxLen}
	t.progress = func(row int) string { return fmt.Sprintf("%s %d", MsgImported, row) }
	if job.Kind == models.KindStockUpdate {
		t.progress = func(row int) string { return fmt.Sprintf("Updated %d rows", row) }
	}
	return t
}

func (t *Tracker) Status() models.ImportStatus { return t.status }

// Start records the opening message of a claimed run.
func (t *Tracker) Start(ctx context.Context, msg string) error {
	if t.status != models.ImportInProgress {
		return fmt.Errorf("%w: start while %s", ErrInvalidTransition, t.status.Label())
	}
	if err := t.store.UpdateImportProgress(ctx, t.jobID, msg); err != nil {
		return err
	}
	t.publish(msg, 0)
	return nil
}

// Progress writes a checkpoint when row falls on the cadence. It reports
// whether anything was written.
func (t *Tracker) Progress(ctx context.Context, row int) (bool, error) {
	if t.status != models.ImportInProgress || row%t.every != 0 {
		return false, nil
	}
	msg := t.progress(row)
	if err := t.store.UpdateImportProgress(ctx, t.jobID, msg); err != nil {
		return false, err
	}
	t.publish(msg, row)
	return true, nil
}

func (t *Tracker) Succeed(ctx context.Context, msg string) error {
	return t.finish(ctx, models.ImportSuccess, Truncate(msg, t.maxLen))
}

// Fail records err as the final message. Jobs that were never claimed
// can fail straight from Pending.
func (t *Tracker) Fail(ctx context.Context, err error) error {
	msg := FailureMessage(err, t.maxLen)
	if errors.Is(err, ErrNoSpreadsheet) {
		msg = MsgNoSpreadsheet
	}
	return t.finish(ctx, models.ImportError, msg)
}

func (t *Tracker) finish(ctx context.Context, to models.ImportStatus, msg string) error {
	if err := Transition(t.status, to); err != nil {
		return err
	}
	if err := t.store.SetImportState(ctx, t.jobID, []models.ImportStatus{t.status}, to, msg); err != nil {
		return err
	}
	t.status = to
	t.publish(msg, 0)
	return nil
}

func (t *Tracker) publish(msg string, row int) {
	if t.notify == nil {
		return
	}
	t.notify.BroadcastJSON(models.ProgressUpdate{
		JobID:   "import",
		ItemID:  t.jobID,
		Message: msg,
		Status:  t.status.Label(),
		Row:     row,
		Done:    t.status.IsTerminal(),
	})
}

// Retry puts a failed job back in the queue. It becomes claimable after
// delay and reruns from the first row.
func Retry(ctx context.Context, st JobStore, id int64, delay time.Duration, now time.Time) error {
	job, err := st.GetImport(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("import %d: %w", id, ErrJobNotFound)
	}
	if err != nil {
		return err
	}
	if err := Transition(job.Status, models.ImportPending); err != nil {
		return err
	}
	err = st.RequeueImport(ctx, id, now.Add(delay), MsgPreparing)
	if errors.Is(err, store.ErrStatusConflict) {
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	return err
}
