package places

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/legs-backend-go/internal/analysis"
	"github.com/jengzang/legs-backend-go/internal/database"
	"github.com/jengzang/legs-backend-go/internal/models"
	"github.com/jengzang/legs-backend-go/internal/repository"
)

var (
	home = models.Coordinate{Lat: 60.1699, Lon: 24.9384}
	work = models.Coordinate{Lat: 60.2055, Lon: 24.6559}
	t0   = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
)

func leg(id int64, user *int64, end models.Coordinate, at time.Duration, activity models.Activity) models.Leg {
	return models.Leg{
		ID:            id,
		DeviceID:      1,
		UserID:        user,
		TimeStart:     t0.Add(at - 10*time.Minute),
		TimeEnd:       t0.Add(at),
		CoordinateEnd: end,
		Activity:      activity,
	}
}

func TestClusterPlaces(t *testing.T) {
	uid := int64(7)
	other := int64(8)
	nearHome := models.Coordinate{Lat: home.Lat + 0.0001, Lon: home.Lon}

	legs := []models.Leg{
		leg(1, &uid, work, time.Hour, models.ActivityInVehicle),
		leg(2, &uid, home, 10*time.Hour, models.ActivityInVehicle),
		leg(3, &uid, nearHome, 30*time.Hour, models.ActivityWalking),
		leg(4, nil, work, 40*time.Hour, models.ActivityWalking),    // not attached
		leg(5, &other, work, 50*time.Hour, models.ActivityWalking), // someone else's
		leg(6, &uid, work, 60*time.Hour, models.ActivityNotSet),    // undecided tail
	}

	places := ClusterPlaces(uid, legs)
	require.Len(t, places, 2)

	assert.Equal(t, 2, places[0].Visits)
	assert.Equal(t, t0.Add(30*time.Hour), places[0].LastVisit)
	assert.InDelta(t, home.Lat+0.00005, places[0].Center.Lat, 1e-6)
	assert.Len(t, places[0].Geohash, GeohashPrecision)

	assert.Equal(t, 1, places[1].Visits)
	assert.Equal(t, uid, places[1].UserID)
}

func TestClusterLegsAnalyzerRewritesPlaces(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, database.NewMigrationManager(db).RunMigrations())

	ctx := context.Background()
	require.NoError(t, repository.NewDeviceRepository(db).Upsert(ctx, models.Device{ID: 1, UserID: 7}))
	legRepo := repository.NewLegRepository(db)
	uid := int64(7)
	for _, l := range []models.Leg{
		leg(0, nil, work, time.Hour, models.ActivityInVehicle),
		leg(0, nil, home, 10*time.Hour, models.ActivityInVehicle),
	} {
		id, _, err := legRepo.ReplaceLegs(ctx, l.TimeStart, l)
		require.NoError(t, err)
		require.NoError(t, legRepo.SetUser(ctx, id, &uid))
	}

	tasks := repository.NewAnalysisTaskRepository(db)
	task := &models.AnalysisTask{SkillName: ClusterLegsName, TaskType: models.TaskTypeIncremental}
	require.NoError(t, tasks.Create(ctx, task))

	a, ok := analysis.GetAnalyzer(ClusterLegsName, analysis.Env{DB: db, Workers: 2})
	require.True(t, ok)
	require.NoError(t, a.Analyze(ctx, task.ID, analysis.RunOptions{Cutoff: t0.Add(5 * time.Hour)}))

	places, err := repository.NewPlaceRepository(db).UserPlaces(ctx, uid)
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, 1, places[0].Visits)

	got, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, got.Status)
	assert.Contains(t, got.ResultSummary, `"places":1`)
}
