package sweep

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"task-tracker-api/internal/cache"
	"task-tracker-api/internal/clock"
	"task-tracker-api/internal/misscount"
	"task-tracker-api/internal/models"
	"task-tracker-api/internal/params"
	"task-tracker-api/internal/realtime"
	"task-tracker-api/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]realtime.Event
}

func (p *recordingPublisher) Publish(userID string, evt realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = map[string][]realtime.Event{}
	}
	p.events[userID] = append(p.events[userID], evt)
}

type fixture struct {
	db      *gorm.DB
	clock   *clock.Fake
	counter *misscount.Counter
	pub     *recordingPublisher
	sweeper *Sweeper
}

func newFixture(t *testing.T, overrides ...models.SystemParameter) fixture {
	t.Helper()
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	for _, o := range overrides {
		o := o
		require.NoError(t, db.Create(&o).Error)
	}
	fc := clock.NewFake(time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC))
	reg := params.NewRegistry(db, params.RegistryOptions{Now: fc.Now})
	store := cache.NewMemoryStore(fc.Now)
	counter := misscount.NewCounter(db, store, 0, nil)
	pub := &recordingPublisher{}
	sw := NewSweeper(db, reg, Options{Counts: counter, Publisher: pub, Purger: store, Now: fc.Now})
	return fixture{db: db, clock: fc, counter: counter, pub: pub, sweeper: sw}
}

func (f fixture) task(t *testing.T, id, userID string, status models.TaskStatus, due *time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Task{ID: id, UserID: userID, Title: id, Status: status, DueDate: due}).Error)
}

func (f fixture) at(d time.Duration) *time.Time {
	v := f.clock.Now().Add(d)
	return &v
}

func (f fixture) status(t *testing.T, id string) models.TaskStatus {
	t.Helper()
	var task models.Task
	require.NoError(t, f.db.First(&task, "id = ?", id).Error)
	return task.Status
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.task(t, "overdue", "u1", models.StatusPending, f.at(-time.Hour))

	n, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = f.sweeper.Run(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	require.Equal(t, models.StatusTaskMiss, f.status(t, "overdue"))
	var hist []models.TaskStatusHistory
	require.NoError(t, f.db.Where("task_id = ?", "overdue").Find(&hist).Error)
	require.Len(t, hist, 1)
	require.Equal(t, string(models.StatusPending), hist[0].PreviousStatus)
	require.Equal(t, string(models.StatusTaskMiss), hist[0].NewStatus)
	require.Nil(t, hist[0].StrategyApplied)
}

func TestRun_SkipsTerminalFutureAndUndated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.task(t, "done", "u1", models.StatusCompleted, f.at(-time.Hour))
	f.task(t, "missed", "u1", models.StatusTaskMiss, f.at(-time.Hour))
	f.task(t, "future", "u1", models.StatusPending, f.at(time.Hour))
	f.task(t, "undated", "u1", models.StatusPending, nil)
	f.task(t, "working", "u1", models.StatusInProgress, f.at(-time.Minute))

	n, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	require.Equal(t, models.StatusCompleted, f.status(t, "done"))
	require.Equal(t, models.StatusPending, f.status(t, "future"))
	require.Equal(t, models.StatusPending, f.status(t, "undated"))
	require.Equal(t, models.StatusTaskMiss, f.status(t, "working"))
}

func TestRun_GracePeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, models.SystemParameter{Key: params.MissGracePeriod, Value: "3600", ValueType: models.ValueInt})
	f.task(t, "recent", "u1", models.StatusPending, f.at(-30*time.Minute))
	f.task(t, "old", "u1", models.StatusPending, f.at(-2*time.Hour))

	n, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, models.StatusPending, f.status(t, "recent"))
	require.Equal(t, models.StatusTaskMiss, f.status(t, "old"))
}

func TestRun_InvalidatesCountsAndNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.task(t, "a", "u1", models.StatusPending, f.at(-time.Hour))
	f.task(t, "b", "u1", models.StatusPending, f.at(-2*time.Hour))
	f.task(t, "c", "u2", models.StatusInProgress, f.at(-time.Hour))

	n, hit, err := f.counter.Get(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, n)
	require.False(t, hit)

	swept, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, swept)

	n, hit, err = f.counter.Get(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.False(t, hit)

	require.Len(t, f.pub.events["u1"], 1)
	require.Equal(t, realtime.EventTasksMissed, f.pub.events["u1"][0].Type)
	require.Equal(t, 2, f.pub.events["u1"][0].Data["count"])
	require.Len(t, f.pub.events["u2"], 1)
}

func TestRun_BeyondSQLiteVariableLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("bulk insert")
	}
	ctx := context.Background()
	f := newFixture(t)

	const n = 33000
	due := f.at(-time.Hour)
	tasks := make([]models.Task, n)
	for i := range tasks {
		tasks[i] = models.Task{
			ID:      fmt.Sprintf("bulk-%05d", i),
			UserID:  fmt.Sprintf("u%d", i%3),
			Title:   "bulk",
			Status:  models.StatusPending,
			DueDate: due,
		}
	}
	require.NoError(t, f.db.CreateInBatches(&tasks, 500).Error)

	got, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	require.EqualValues(t, n, got)

	var missed, history int64
	require.NoError(t, f.db.Model(&models.Task{}).Where("status = ?", models.StatusTaskMiss).Count(&missed).Error)
	require.EqualValues(t, n, missed)
	require.NoError(t, f.db.Model(&models.TaskStatusHistory{}).Count(&history).Error)
	require.EqualValues(t, n, history)

	for _, u := range []string{"u0", "u1", "u2"} {
		require.Len(t, f.pub.events[u], 1)
		require.Equal(t, 11000, f.pub.events[u][0].Data["count"])
	}
}

func TestScheduler_FirstRunIsImmediate(t *testing.T) {
	f := newFixture(t)
	f.task(t, "late", "u1", models.StatusPending, f.at(-time.Hour))

	s := NewScheduler(f.sweeper, time.Hour, nil)
	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	require.Eventually(t, func() bool {
		var task models.Task
		if err := f.db.First(&task, "id = ?", "late").Error; err != nil {
			return false
		}
		return task.Status == models.StatusTaskMiss
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
}

func TestScheduler_RunNow(t *testing.T) {
	f := newFixture(t)
	f.task(t, "late", "u1", models.StatusPending, f.at(-time.Minute))

	s := NewScheduler(f.sweeper, 0, nil)
	n, err := s.RunNow(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
