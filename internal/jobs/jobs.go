package jobs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/vrsandeep/catalog-importer/internal/importer"
	"github.com/vrsandeep/catalog-importer/internal/models"
	"github.com/vrsandeep/catalog-importer/internal/store"
)

const (
	ScratchSweepJob = "scratch-sweep"
	StaleImportsJob = "stale-imports"

	MsgStalled = "Failed - stopped reporting progress"
)

// RegisterAll adds the maintenance jobs to the manager.
func RegisterAll(jm *JobManager) {
	jm.Register(ScratchSweepJob, "Remove orphaned import scratch directories", runScratchSweep)
	jm.Register(StaleImportsJob, "Fail imports that stopped reporting progress", runStaleImports)
}

// StartJobs starts the background job scheduler.
func StartJobs(app JobContext) *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	every := app.Config().Import.MaintenanceEvery
	if every <= 0 {
		app.Log().Info("Maintenance interval is 0, scheduled maintenance is disabled.")
		return s
	}
	for _, id := range []string{ScratchSweepJob, StaleImportsJob} {
		schedule(s, app, id, every)
	}

	app.Log().Info("Starting background job scheduler...")
	s.StartAsync()
	return s
}

func schedule(s *gocron.Scheduler, app JobContext, id string, every time.Duration) {
	log := app.Log().WithField("job", id)
	log.WithField("every", every.String()).Info("Scheduling job")

	_, err := s.Every(every).WaitForSchedule().Do(func() {
		// Go through the manager so a manual run and a scheduled run
		// never overlap.
		if err := app.JobManager().RunJob(id, app); err != nil {
			log.WithError(err).Warn("Scheduled job could not start")
		}
	})
	if err != nil {
		log.WithError(err).Error("Error scheduling job")
	}
}

func scratchRoot(app JobContext) string {
	if dir := app.Config().Import.ScratchDir; dir != "" {
		return dir
	}
	return os.TempDir()
}

func runScratchSweep(app JobContext) error {
	cfg := app.Config().Import
	removed, err := SweepScratch(scratchRoot(app), cfg.ScratchMaxAge, time.Now())
	if removed > 0 {
		app.Log().WithField("removed", removed).Info("Removed orphaned scratch directories")
	}
	return err
}

// SweepScratch deletes import scratch directories under root that were
// last modified more than maxAge before now. A finished run removes its
// own directory; only runs killed mid-way leave one behind.
func SweepScratch(root string, maxAge time.Duration, now time.Time) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), importer.ScratchPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func runStaleImports(app JobContext) error {
	after := app.Config().Import.StaleAfter
	if after <= 0 {
		return nil
	}
	st := store.New(app.DB())
	ids, err := st.FailStaleImports(context.Background(), time.Now().Add(-after), MsgStalled)
	if err != nil {
		return err
	}
	for _, id := range ids {
		app.Log().WithField("import_id", id).Warn("Import marked as failed after no progress")
		app.WsHub().BroadcastJSON(models.ProgressUpdate{
			JobID:   "import",
			ItemID:  id,
			Message: MsgStalled,
			Status:  models.ImportError.Label(),
			Done:    true,
		})
	}
	return nil
}

func broadcastStatus(app JobContext, s JobStatus) {
	hub := app.WsHub()
	if hub == nil {
		return
	}
	hub.BroadcastJSON(models.ProgressUpdate{
		JobID:   s.ID,
		Message: s.Message,
		Status:  s.Status,
		Done:    true,
	})
}
