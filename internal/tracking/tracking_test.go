package tracking

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"task-tracker-api/internal/clock"
	"task-tracker-api/internal/experiment"
	"task-tracker-api/internal/models"
	"task-tracker-api/internal/params"
	"task-tracker-api/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	clock    *clock.Fake
	rec      *Recorder
	sessions *Sessions
}

func newFixture(t *testing.T, overrides ...models.SystemParameter) fixture {
	t.Helper()
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	for _, o := range overrides {
		o := o
		require.NoError(t, db.Create(&o).Error)
	}
	fc := clock.NewFake(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	reg := params.NewRegistry(db, params.RegistryOptions{Now: fc.Now})
	rec := NewRecorder(db, experiment.NewAssigner(reg, fc.Now, nil), fc.Now, nil)
	return fixture{db: db, clock: fc, rec: rec, sessions: NewSessions(rec, reg)}
}

func TestRecordBehavior_LatencyChain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.rec.RecordBehavior(ctx, nil, "u1", BehaviorInput{TaskID: "t1", EventType: models.EventTaskMiss})
	require.NoError(t, err)
	require.Nil(t, first.LatencyMs)
	require.NotEmpty(t, first.ExperimentGroup)
	require.Equal(t, "PRO-B-24-ab-test", first.ExperimentID)

	f.clock.Advance(1500 * time.Millisecond)
	second, err := f.rec.RecordBehavior(ctx, nil, "u1", BehaviorInput{
		TaskID: "t1", EventType: models.EventKeep, Metadata: map[string]any{"source": "popup"},
	})
	require.NoError(t, err)
	require.NotNil(t, second.LatencyMs)
	require.EqualValues(t, 1500, *second.LatencyMs)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(second.Metadata, &meta))
	require.Equal(t, "popup", meta["source"])

	chain, err := f.rec.Chain(ctx, "u1", "t1")
	require.NoError(t, err)
	require.Len(t, chain.Events, 2)
	require.Equal(t, models.EventTaskMiss, chain.Events[0].EventType)
	require.EqualValues(t, 1500, chain.TotalLatencyMs)

	_, err = f.rec.RecordBehavior(ctx, nil, "u1", BehaviorInput{TaskID: "t1", EventType: "shrug"})
	require.ErrorIs(t, err, ErrInvalidEventType)
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, typ := range []models.BehaviorEventType{models.EventTaskMiss, models.EventArchive} {
		_, err := f.rec.RecordBehavior(ctx, nil, "u2", BehaviorInput{TaskID: "a", EventType: typ})
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	_, err := f.rec.RecordBehavior(ctx, nil, "u2", BehaviorInput{TaskID: "b", EventType: models.EventTaskMiss})
	require.NoError(t, err)

	s, err := f.rec.Summary(ctx, "u2")
	require.NoError(t, err)
	require.EqualValues(t, 3, s.TotalEvents)
	require.EqualValues(t, 2, s.Counts[models.EventTaskMiss])
	require.EqualValues(t, 1, s.Counts[models.EventArchive])
	require.NotNil(t, s.AvgLatencyMs)
	require.InDelta(t, 1000, *s.AvgLatencyMs, 0.01)
	require.NotEmpty(t, s.ExperimentGroup)

	empty, err := f.rec.Summary(ctx, "nobody")
	require.NoError(t, err)
	require.Zero(t, empty.TotalEvents)
	require.Nil(t, empty.AvgLatencyMs)
}

func TestSessions_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.sessions.Open(ctx, "u3")
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.NotEmpty(t, s.ExperimentGroup)

	f.clock.Advance(4 * time.Second)
	s, err = f.sessions.Action(ctx, "u3", s.ID)
	require.NoError(t, err)
	require.EqualValues(t, 4000, *s.ReentryLatencyMs)

	f.clock.Advance(2 * time.Second)
	s, err = f.sessions.Action(ctx, "u3", s.ID)
	require.NoError(t, err)
	require.EqualValues(t, 4000, *s.ReentryLatencyMs, "first action latency is fixed")

	f.clock.Advance(31 * time.Second)
	s, err = f.sessions.Close(ctx, "u3", s.ID)
	require.NoError(t, err)
	require.EqualValues(t, 31000, *s.PreExitInactionMs)
	require.True(t, s.IsHighRiskExit)

	_, err = f.sessions.Action(ctx, "u3", s.ID)
	require.ErrorIs(t, err, ErrSessionClosed)

	events, err := f.rec.GoalEvents(ctx, "u3", models.GoalAppClose)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestSessions_CloseWithoutActionMeasuresFromOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.sessions.Open(ctx, "u4")
	require.NoError(t, err)
	f.clock.Advance(10 * time.Second)
	s, err = f.sessions.Close(ctx, "u4", s.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10000, *s.PreExitInactionMs)
	require.False(t, s.IsHighRiskExit)
	require.Nil(t, s.FirstActionAt)

	_, err = f.sessions.Close(ctx, "other-user", s.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func ratio(pct string) models.SystemParameter {
	return models.SystemParameter{Key: params.ExperimentRatio, Value: pct, ValueType: models.ValueInt, Category: "experiment"}
}

func TestCheckIntervention_TreatmentFiresOncePerSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ratio("100"))

	s, err := f.sessions.Open(ctx, "u5")
	require.NoError(t, err)
	require.Equal(t, models.GroupTreatment, s.ExperimentGroup)

	f.clock.Advance(29 * time.Second)
	st, err := f.sessions.CheckIntervention(ctx, "u5", s.ID)
	require.NoError(t, err)
	require.False(t, st.Triggered)
	require.False(t, st.FocusInput)
	require.EqualValues(t, 29000, st.InactionMs)

	f.clock.Advance(time.Second)
	st, err = f.sessions.CheckIntervention(ctx, "u5", s.ID)
	require.NoError(t, err)
	require.True(t, st.Triggered)
	require.True(t, st.FocusInput)
	require.NotEmpty(t, st.LogID)
	first := st.LogID

	f.clock.Advance(10 * time.Second)
	st, err = f.sessions.CheckIntervention(ctx, "u5", s.ID)
	require.NoError(t, err)
	require.False(t, st.Triggered)
	require.True(t, st.FocusInput)
	require.Equal(t, first, st.LogID)

	var n int64
	require.NoError(t, f.db.Model(&models.InterventionLog{}).Where("session_id = ?", s.ID).Count(&n).Error)
	require.EqualValues(t, 1, n)

	f.clock.Advance(5 * time.Second)
	_, err = f.sessions.Action(ctx, "u5", s.ID)
	require.NoError(t, err)
	acted := f.clock.Now()
	f.clock.Advance(5 * time.Second)
	_, err = f.sessions.Action(ctx, "u5", s.ID)
	require.NoError(t, err)

	logs, err := f.sessions.Interventions(ctx, "u5")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].FirstActionAfterTriggerAt)
	require.True(t, acted.Equal(*logs[0].FirstActionAfterTriggerAt))

	st, err = f.sessions.CheckIntervention(ctx, "u5", s.ID)
	require.NoError(t, err)
	require.False(t, st.FocusInput, "inaction resets after an action")
}

func TestCheckIntervention_ControlNeverFires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ratio("0"))

	s, err := f.sessions.Open(ctx, "u6")
	require.NoError(t, err)
	require.Equal(t, models.GroupControl, s.ExperimentGroup)

	f.clock.Advance(time.Minute)
	st, err := f.sessions.CheckIntervention(ctx, "u6", s.ID)
	require.NoError(t, err)
	require.False(t, st.Triggered)
	require.False(t, st.FocusInput)
	require.Empty(t, st.LogID)

	var n int64
	require.NoError(t, f.db.Model(&models.InterventionLog{}).Count(&n).Error)
	require.Zero(t, n)

	_, err = f.sessions.CheckIntervention(ctx, "someone-else", s.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCheckIntervention_ClosedSessionDoesNotFire(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ratio("100"))

	s, err := f.sessions.Open(ctx, "u7")
	require.NoError(t, err)
	_, err = f.sessions.Close(ctx, "u7", s.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	st, err := f.sessions.CheckIntervention(ctx, "u7", s.ID)
	require.NoError(t, err)
	require.False(t, st.FocusInput)
}

func TestSessions_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a, err := f.sessions.Open(ctx, "u8")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	b, err := f.sessions.Open(ctx, "u8")
	require.NoError(t, err)
	_, err = f.sessions.Open(ctx, "u9")
	require.NoError(t, err)

	list, err := f.sessions.List(ctx, "u8", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, b.ID, list[0].ID)
	require.Equal(t, a.ID, list[1].ID)
}
