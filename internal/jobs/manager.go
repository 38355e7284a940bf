package jobs

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vrsandeep/catalog-importer/internal/config"
	"github.com/vrsandeep/catalog-importer/internal/websocket"
)

// JobContext is an interface that provides the necessary dependencies for a job to run.
// The core.App struct will implement this interface.
type JobContext interface {
	DB() *sql.DB
	Config() *config.Config
	WsHub() *websocket.Hub
	JobManager() *JobManager
	Log() *logrus.Entry
}

type jobTask func(ctx JobContext) error

type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // "idle", "running", "success", "failed"
	Message   string    `json:"message"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

type JobManager struct {
	mu      sync.Mutex
	jobs    map[string]jobTask
	status  map[string]*JobStatus
	running map[string]bool
	wg      sync.WaitGroup
	appCtx  JobContext
}

func NewManager(appCtx JobContext) *JobManager {
	return &JobManager{
		jobs:    make(map[string]jobTask),
		status:  make(map[string]*JobStatus),
		running: make(map[string]bool),
		appCtx:  appCtx,
	}
}

func (jm *JobManager) Register(id, name string, task jobTask) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.jobs[id] = task
	jm.status[id] = &JobStatus{ID: id, Name: name, Status: "idle"}
}

// RunJob starts a registered job in the background. The same job never
// runs twice at once.
func (jm *JobManager) RunJob(id string, ctx JobContext) error {
	jm.mu.Lock()
	task, ok := jm.jobs[id]
	if !ok {
		jm.mu.Unlock()
		return fmt.Errorf("job '%s' not found", id)
	}
	if jm.running[id] {
		jm.mu.Unlock()
		return fmt.Errorf("job '%s' is already running", id)
	}
	jm.running[id] = true
	status := jm.status[id]
	status.Status = "running"
	status.StartTime = time.Now()
	status.EndTime = time.Time{}
	status.Message = "Job started..."
	jm.mu.Unlock()

	log := ctx.Log().WithField("job", id)
	log.Info("Starting job")
	jm.wg.Add(1)
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
			jm.mu.Lock()
			status.EndTime = time.Now()
			if err != nil {
				status.Status = "failed"
				status.Message = err.Error()
				log.WithError(err).Error("Job failed")
			} else {
				status.Status = "success"
				status.Message = "Job completed successfully."
				log.Info("Finished job")
			}
			snapshot := *status
			jm.running[id] = false
			jm.mu.Unlock()
			jm.wg.Done()
			broadcastStatus(ctx, snapshot)
		}()

		err = task(ctx)
	}()
	return nil
}

// Wait blocks until every started job has finished.
func (jm *JobManager) Wait() {
	jm.wg.Wait()
}

func (jm *JobManager) GetStatus() []*JobStatus {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	statuses := make([]*JobStatus, 0, len(jm.status))
	for _, s := range jm.status {
		copied := *s
		statuses = append(statuses, &copied)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}
