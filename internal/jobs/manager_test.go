package jobs_test

import (
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/catalog-importer/internal/config"
	"github.com/vrsandeep/catalog-importer/internal/jobs"
	"github.com/vrsandeep/catalog-importer/internal/websocket"
)

type fakeJobContext struct {
	db     *sql.DB
	cfg    *config.Config
	ws     *websocket.Hub
	jobMgr *jobs.JobManager
}

func (f *fakeJobContext) DB() *sql.DB                  { return f.db }
func (f *fakeJobContext) Config() *config.Config       { return f.cfg }
func (f *fakeJobContext) WsHub() *websocket.Hub        { return f.ws }
func (f *fakeJobContext) JobManager() *jobs.JobManager { return f.jobMgr }
func (f *fakeJobContext) Log() *logrus.Entry           { return logrus.NewEntry(logrus.StandardLogger()) }

func newFakeContext() *fakeJobContext {
	ctx := &fakeJobContext{cfg: config.Default(), ws: websocket.NewHub()}
	ctx.jobMgr = jobs.NewManager(ctx)
	return ctx
}

func TestManager_NewManager(t *testing.T) {
	ctx := newFakeContext()
	assert.NotNil(t, ctx.jobMgr)
	assert.Empty(t, ctx.jobMgr.GetStatus())
}

func TestManager_RegisterAndGetStatus(t *testing.T) {
	mgr := newFakeContext().jobMgr
	mgr.Register("jobB", "Job B", func(ctx jobs.JobContext) error { return nil })
	mgr.Register("jobA", "Job A", func(ctx jobs.JobContext) error { return nil })

	statuses := mgr.GetStatus()
	require.Len(t, statuses, 2)
	assert.Equal(t, "jobA", statuses[0].ID)
	assert.Equal(t, "Job A", statuses[0].Name)
	assert.Equal(t, "idle", statuses[0].Status)
	assert.Equal(t, "jobB", statuses[1].ID)
}

func TestManager_RunJob_SuccessAndStatus(t *testing.T) {
	ctx := newFakeContext()
	mgr := ctx.jobMgr
	var called bool
	mgr.Register("jobX", "Job X", func(ctx jobs.JobContext) error {
		called = true
		return nil
	})
	err := mgr.RunJob("jobX", ctx)
	assert.NoError(t, err)
	mgr.Wait()

	assert.True(t, called)
	statuses := mgr.GetStatus()
	assert.Equal(t, "success", statuses[0].Status)
	assert.False(t, statuses[0].EndTime.IsZero())
}

func TestManager_RunJob_Failure(t *testing.T) {
	ctx := newFakeContext()
	mgr := ctx.jobMgr
	mgr.Register("jobF", "Job F", func(ctx jobs.JobContext) error { return errors.New("disk full") })

	require.NoError(t, mgr.RunJob("jobF", ctx))
	mgr.Wait()

	statuses := mgr.GetStatus()
	assert.Equal(t, "failed", statuses[0].Status)
	assert.Equal(t, "disk full", statuses[0].Message)
}

func TestManager_RunJob_AlreadyRunning(t *testing.T) {
	ctx := newFakeContext()
	mgr := ctx.jobMgr
	block := make(chan struct{})
	mgr.Register("jobY", "Job Y", func(ctx jobs.JobContext) error {
		<-block
		return nil
	})
	require.NoError(t, mgr.RunJob("jobY", ctx))
	err := mgr.RunJob("jobY", ctx)
	assert.Error(t, err)
	close(block)
	mgr.Wait()

	// Finished jobs can be started again.
	assert.NoError(t, mgr.RunJob("jobY", ctx))
	mgr.Wait()
}

func TestManager_RunJob_NotFound(t *testing.T) {
	ctx := newFakeContext()
	err := ctx.jobMgr.RunJob("nojob", ctx)
	assert.Error(t, err)
}

func TestManager_RunJob_Panic(t *testing.T) {
	ctx := newFakeContext()
	mgr := ctx.jobMgr
	mgr.Register("panicJob", "Panic Job", func(ctx jobs.JobContext) error { panic("fail") })
	err := mgr.RunJob("panicJob", ctx)
	assert.NoError(t, err)
	mgr.Wait()

	statuses := mgr.GetStatus()
	assert.Equal(t, "failed", statuses[0].Status)
	assert.Contains(t, statuses[0].Message, "panicked")
}

func TestManager_Concurrency(t *testing.T) {
	ctx := newFakeContext()
	mgr := ctx.jobMgr
	release := make(chan struct{})
	var mu sync.Mutex
	var count int
	mgr.Register("jobC", "Job C", func(ctx jobs.JobContext) error {
		mu.Lock()
		count++
		mu.Unlock()
		<-release
		return nil
	})
	wg := sync.WaitGroup{}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			_ = mgr.RunJob("jobC", ctx)
			wg.Done()
		}()
	}
	wg.Wait()
	close(release)
	mgr.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "job should only run once concurrently")
}

func TestManager_BroadcastsCompletion(t *testing.T) {
	ctx := newFakeContext()
	go ctx.ws.Run()
	defer ctx.ws.Stop()

	mgr := ctx.jobMgr
	mgr.Register("quick", "Quick", func(ctx jobs.JobContext) error { return nil })
	require.NoError(t, mgr.RunJob("quick", ctx))

	done := make(chan struct{})
	go func() {
		mgr.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
	}
}
