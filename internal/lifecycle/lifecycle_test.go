package lifecycle

import (
	"context"
	"testing"
	"time"

	"task-tracker-api/internal/cache"
	"task-tracker-api/internal/clock"
	"task-tracker-api/internal/experiment"
	"task-tracker-api/internal/misscount"
	"task-tracker-api/internal/models"
	"task-tracker-api/internal/params"
	"task-tracker-api/internal/testutil"
	"task-tracker-api/internal/tracking"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	clock   *clock.Fake
	counter *misscount.Counter
	svc     *Service
}

func newFixture(t *testing.T, overrides map[string]string) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	for k, v := range overrides {
		var typ models.ValueType = models.ValueInt
		if k == params.StrategyOptions {
			typ = models.ValueJSON
		}
		require.NoError(t, db.Create(&models.SystemParameter{Key: k, Value: v, ValueType: typ}).Error)
	}
	_, err = params.Seed(ctx, db, params.Defaults)
	require.NoError(t, err)

	fc := clock.NewFake(time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC))
	reg := params.NewRegistry(db, params.RegistryOptions{Now: fc.Now})
	counter := misscount.NewCounter(db, cache.NewMemoryStore(fc.Now), 0, nil)
	rec := tracking.NewRecorder(db, experiment.NewAssigner(reg, fc.Now, nil), fc.Now, nil)
	svc := NewService(db, reg, Options{Counts: counter, Recorder: rec, Now: fc.Now})
	return fixture{db: db, clock: fc, counter: counter, svc: svc}
}

func (f fixture) task(t *testing.T, id, userID string, status models.TaskStatus) models.Task {
	t.Helper()
	due := f.clock.Now().Add(-time.Hour)
	task := models.Task{ID: id, UserID: userID, Title: "Task " + id, Status: status, DueDate: &due}
	require.NoError(t, f.db.Create(&task).Error)
	return task
}

func (f fixture) historyFor(t *testing.T, taskID string) []models.TaskStatusHistory {
	t.Helper()
	var rows []models.TaskStatusHistory
	require.NoError(t, f.db.Where("task_id = ?", taskID).Order("id").Find(&rows).Error)
	return rows
}

func TestApply_KeepInvalidatesMissCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.task(t, "t1", "u1", models.StatusPending)

	n, _, err := f.counter.Get(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, n)

	res, err := f.svc.Apply(ctx, "u1", "t1", ApplyRequest{Strategy: StrategyKeep})
	require.NoError(t, err)
	require.Equal(t, string(models.StatusTaskMiss), res.NewStatus)

	n, hit, err := f.counter.Get(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.False(t, hit)
}

func TestApply_WritesOneHistoryRowPerStrategy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	cases := []struct {
		strategy Strategy
		want     string
	}{
		{StrategyKeep, string(models.StatusTaskMiss)},
		{StrategyModify, string(models.StatusPending)},
		{StrategyArchive, models.StatusArchived},
	}
	for _, tc := range cases {
		id := "h-" + string(tc.strategy)
		f.task(t, id, "u1", models.StatusTaskMiss)

		_, err := f.svc.Apply(ctx, "u1", id, ApplyRequest{Strategy: tc.strategy})
		require.NoError(t, err)

		rows := f.historyFor(t, id)
		require.Len(t, rows, 1, tc.strategy)
		require.Equal(t, string(models.StatusTaskMiss), rows[0].PreviousStatus)
		require.Equal(t, tc.want, rows[0].NewStatus)
		require.NotNil(t, rows[0].StrategyApplied)
		require.Equal(t, string(tc.strategy), *rows[0].StrategyApplied)
	}
}

func TestApply_ArchiveMovesTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	orig := f.task(t, "a1", "u1", models.StatusTaskMiss)

	res, err := f.svc.Apply(ctx, "u1", "a1", ApplyRequest{Strategy: "ARCHIVE"})
	require.NoError(t, err)
	require.NotNil(t, res.Archive)
	require.Nil(t, res.Task)

	var count int64
	require.NoError(t, f.db.Model(&models.Task{}).Where("id = ?", "a1").Count(&count).Error)
	require.Zero(t, count)

	archives, err := f.svc.Archives(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, archives, 1)
	require.Equal(t, "a1", archives[0].OriginalTaskID)
	require.Equal(t, models.StatusTaskMiss, archives[0].OriginalStatus)
	require.Equal(t, orig.Title, archives[0].Title)

	hist, err := f.svc.History(ctx, "u1", "a1")
	require.NoError(t, err)
	require.Len(t, hist, 1)

	chain, err := f.svc.recorder.Chain(ctx, "u1", "a1")
	require.NoError(t, err)
	require.Len(t, chain.Events, 1)
	require.Equal(t, models.EventArchive, chain.Events[0].EventType)
}

func TestApply_ArchiveLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{params.MaxArchiveLimit: "1"})
	f.task(t, "l1", "u1", models.StatusTaskMiss)
	f.task(t, "l2", "u1", models.StatusTaskMiss)

	_, err := f.svc.Apply(ctx, "u1", "l1", ApplyRequest{Strategy: StrategyArchive})
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, "u1", "l2", ApplyRequest{Strategy: StrategyArchive})
	require.ErrorIs(t, err, ErrArchiveLimitReached)
	require.Empty(t, f.historyFor(t, "l2"), "rejected strategy leaves no history")

	c, err := f.svc.Capacity(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 1, c.Count)
	require.False(t, c.CanArchive)
	require.Zero(t, c.Remaining)
}

func TestApply_ModifyReplacesDueDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.task(t, "m1", "u1", models.StatusTaskMiss)

	loc := time.FixedZone("KST", 9*3600)
	newDue := time.Date(2025, 7, 3, 18, 0, 0, 0, loc)
	res, err := f.svc.Apply(ctx, "u1", "m1", ApplyRequest{Strategy: StrategyModify, NewDueDate: &newDue})
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, res.Task.Status)

	var stored models.Task
	require.NoError(t, f.db.First(&stored, "id = ?", "m1").Error)
	require.Equal(t, models.StatusPending, stored.Status)
	require.True(t, stored.DueDate.Equal(newDue))
}

func TestApply_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{params.StrategyOptions: `["keep","modify"]`})
	f.task(t, "e1", "owner", models.StatusTaskMiss)

	_, err := f.svc.Apply(ctx, "intruder", "e1", ApplyRequest{Strategy: StrategyKeep})
	require.ErrorIs(t, err, ErrTaskNotFound)

	_, err = f.svc.Apply(ctx, "owner", "missing", ApplyRequest{Strategy: StrategyKeep})
	require.ErrorIs(t, err, ErrTaskNotFound)

	_, err = f.svc.Apply(ctx, "owner", "e1", ApplyRequest{Strategy: "snooze"})
	require.ErrorIs(t, err, ErrInvalidStrategy)

	_, err = f.svc.Apply(ctx, "owner", "e1", ApplyRequest{Strategy: StrategyArchive})
	require.ErrorIs(t, err, ErrInvalidStrategy, "archive is not offered")

	_, err = f.svc.History(ctx, "owner", "missing")
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestArchiveTask_UserEdit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.task(t, "x1", "u1", models.StatusPending)

	a, err := f.svc.ArchiveTask(ctx, "u1", "x1")
	require.NoError(t, err)
	require.Equal(t, "x1", a.OriginalTaskID)

	rows := f.historyFor(t, "x1")
	require.Len(t, rows, 1)
	require.Nil(t, rows[0].StrategyApplied)
	require.Equal(t, models.StatusArchived, rows[0].NewStatus)
}
