package experiment

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"task-tracker-api/internal/models"
	"task-tracker-api/internal/params"
	"task-tracker-api/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

type stubParams map[string]int

func (s stubParams) Int(_ context.Context, key string, def int) int {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}
func (s stubParams) Float(_ context.Context, _ string, def float64) float64 { return def }
func (s stubParams) Bool(_ context.Context, key string, def bool) bool {
	if v, ok := s[key]; ok {
		return v != 0
	}
	return def
}
func (s stubParams) String(_ context.Context, _ string, def string) string     { return def }
func (s stubParams) Strings(_ context.Context, _ string, def []string) []string { return def }

func TestBucket_Deterministic(t *testing.T) {
	g1, h1 := Bucket("user-42", 50)
	g2, h2 := Bucket("user-42", 50)
	require.Equal(t, g1, g2)
	require.Equal(t, h1, h2)
}

func TestBucket_Distribution(t *testing.T) {
	const n = 10000
	treatment := 0
	for i := 0; i < n; i++ {
		if g, _ := Bucket(fmt.Sprintf("user-%d", i), 50); g == models.GroupTreatment {
			treatment++
		}
	}
	frac := float64(treatment) / n
	require.InDelta(t, 0.5, frac, 0.03)
}

func TestBucket_RatioEdges(t *testing.T) {
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("u%d", i)
		g, _ := Bucket(id, 0)
		require.Equal(t, models.GroupControl, g)
		g, _ = Bucket(id, 100)
		require.Equal(t, models.GroupTreatment, g)
		g, _ = Bucket(id, -5)
		require.Equal(t, models.GroupControl, g)
		g, _ = Bucket(id, 250)
		require.Equal(t, models.GroupTreatment, g)
	}
}

func TestGetOrAssign_StableAcrossRatioChange(t *testing.T) {
	ctx := context.Background()
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)

	p := stubParams{params.ExperimentRatio: 50}
	a := NewAssigner(p, func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }, nil)

	first, err := a.GetOrAssign(ctx, db, "user-7")
	require.NoError(t, err)
	require.True(t, first.NewlyAssigned)
	require.Equal(t, "PRO-B-24-ab-test", first.ExperimentID)

	// Push every new user to the opposite arm.
	if first.Group == models.GroupTreatment {
		p[params.ExperimentRatio] = 0
	} else {
		p[params.ExperimentRatio] = 100
	}

	second, err := a.GetOrAssign(ctx, db, "user-7")
	require.NoError(t, err)
	require.False(t, second.NewlyAssigned)
	require.Equal(t, first.Group, second.Group)
	require.Equal(t, first.HashValue, second.HashValue)
}

func TestGetOrAssign_ConcurrentCallsCreateOneRow(t *testing.T) {
	ctx := context.Background()
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	a := NewAssigner(stubParams{}, nil, nil)

	results := make([]Result, 8)
	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = a.GetOrAssign(ctx, db, "racer")
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i, r := range results {
		require.NoError(t, errs[i])
		require.Equal(t, results[0].Group, r.Group)
		if r.NewlyAssigned {
			fresh++
		}
	}
	require.Equal(t, 1, fresh)

	var count int64
	require.NoError(t, db.Model(&models.ExperimentAssignment{}).Where("user_id = ?", "racer").Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestGetOrAssign_InsertConflictRereads(t *testing.T) {
	ctx := context.Background()
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	a := NewAssigner(stubParams{}, nil, nil)

	// Simulate the losing side of a race: a row appears between read and insert.
	require.NoError(t, db.Create(&models.ExperimentAssignment{
		UserID: "late", ExperimentID: "EXP", Group: models.GroupControl, HashValue: 1, AssignedAt: time.Now().UTC(),
	}).Error)
	res, err := a.GetOrAssign(ctx, db, "late")
	require.NoError(t, err)
	require.False(t, res.NewlyAssigned)
	require.Equal(t, "EXP", res.ExperimentID)
}

func TestBranchFor(t *testing.T) {
	ctx := context.Background()
	a := NewAssigner(stubParams{}, nil, nil)

	b := a.BranchFor(ctx, models.GroupTreatment)
	require.Equal(t, "treatment_v1", b.Variant)
	require.True(t, b.ShowStrategyPrompt)
	require.Equal(t, []string{"archive", "modify", "keep"}, b.StrategyOptions)
	require.Equal(t, 60, b.ExitWindowSeconds)

	b = a.BranchFor(ctx, models.GroupControl)
	require.Equal(t, "control_default", b.Variant)
	require.False(t, b.ShowStrategyPrompt)

	off := NewAssigner(stubParams{params.ExperimentActive: 0}, nil, nil)
	require.Equal(t, "control_default", off.BranchFor(ctx, models.GroupTreatment).Variant)
}

func TestLookupQuery_LockingReadOnMySQL(t *testing.T) {
	my, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "tasks:tasks@tcp(127.0.0.1:3306)/tasks?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	render := func(db *gorm.DB, locking bool) string {
		return db.ToSQL(func(tx *gorm.DB) *gorm.DB {
			var row models.ExperimentAssignment
			return lookupQuery(tx, "u1", locking).First(&row)
		})
	}
	require.Contains(t, render(my, true), "FOR SHARE")
	require.NotContains(t, render(my, false), "FOR SHARE")

	lite, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	require.NotContains(t, render(lite, true), "FOR SHARE")
}
