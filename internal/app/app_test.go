package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"task-tracker-api/internal/cache"
	"task-tracker-api/internal/clock"
	"task-tracker-api/internal/models"
	"task-tracker-api/internal/params"
	"task-tracker-api/internal/tasks"
	"task-tracker-api/internal/testutil"

	"github.com/stretchr/testify/require"
)

func newServices(t *testing.T) (*Services, *clock.Fake) {
	t.Helper()
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	_, err = params.Seed(context.Background(), db, params.Defaults)
	require.NoError(t, err)
	clk := clock.NewFake(time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))
	return New(db, cache.NewMemoryStore(clk.Now), Options{Clock: clk}), clk
}

func TestSweepRacingUserCompletion(t *testing.T) {
	ctx := context.Background()
	svc, clk := newServices(t)
	due := clk.Now().Add(-time.Hour)
	completed := models.StatusCompleted

	const rounds = 25
	for i := 0; i < rounds; i++ {
		id := fmt.Sprintf("race-%02d", i)
		require.NoError(t, svc.DB.Create(&models.Task{
			ID: id, UserID: "racer", Title: id, Status: models.StatusPending, DueDate: &due,
		}).Error)

		start := make(chan struct{})
		var wg sync.WaitGroup
		var sweepErr, updateErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, sweepErr = svc.Sweeper.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			<-start
			_, updateErr = svc.Tasks.Update(ctx, "racer", id, tasks.UpdateInput{Status: &completed})
		}()
		close(start)
		wg.Wait()
		require.NoError(t, sweepErr)
		require.NoError(t, updateErr)

		var got models.Task
		require.NoError(t, svc.DB.First(&got, "id = ?", id).Error)
		require.Equal(t, models.StatusCompleted, got.Status, "the user's edit commits last or the sweep skips it")

		var history int64
		require.NoError(t, svc.DB.Model(&models.TaskStatusHistory{}).Where("task_id = ?", id).Count(&history).Error)
		require.LessOrEqual(t, history, int64(1))

		n, _, err := svc.MissCount.Get(ctx, "racer")
		require.NoError(t, err)
		require.Zero(t, n, "no stale miss count survives either order")
	}
}

func TestNew_SchedulerRunsSweep(t *testing.T) {
	svc, _ := newServices(t)
	require.NotNil(t, svc.Scheduler)
	require.NotNil(t, svc.Hub)
	n, err := svc.Scheduler.RunNow(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}
