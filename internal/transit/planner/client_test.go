package planner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/legs-backend-go/internal/database"
	"github.com/jengzang/legs-backend-go/internal/models"
	"github.com/jengzang/legs-backend-go/internal/repository"
)

func newCacheStore(t *testing.T) *repository.PlannerCacheRepository {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrationManager(db).RunMigrations())
	return repository.NewPlannerCacheRepository(db)
}

func testQuery() Query {
	return Query{
		Start:           legStart,
		From:            models.Coordinate{Lat: 60.17, Lon: 24.94},
		To:              models.Coordinate{Lat: 60.21, Lon: 24.66},
		Mode:            DefaultMode,
		MaxWalkDistance: 1000,
		NumItineraries:  3,
	}
}

const planBody = `{"plan":{"itineraries":[{"duration":1500,"startTime":1714982400000,"endTime":1714983900000,
	"legs":[{"mode":"BUS","route":"550","transitLeg":true,"duration":1500,"startTime":1714982400000,"endTime":1714983900000}]}]}}`

func TestPlanSendsQueryAndCaches(t *testing.T) {
	var calls int32
	var got http.Header
	var params map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		got = r.Header
		params = map[string]string{}
		for k := range r.URL.Query() {
			params[k] = r.URL.Query().Get(k)
		}
		fmt.Fprint(w, planBody)
	}))
	defer srv.Close()

	store := newCacheStore(t)
	c := NewClient(ClientConfig{URL: srv.URL, Location: time.UTC}, store)

	resp, err := c.Plan(context.Background(), testQuery())
	require.NoError(t, err)
	require.NotNil(t, resp.Plan)
	require.Len(t, resp.Plan.Itineraries, 1)
	assert.Equal(t, "550", resp.Plan.Itineraries[0].Legs[0].Route)

	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "60.170000,24.940000", params["fromPlace"])
	assert.Equal(t, "60.210000,24.660000", params["toPlace"])
	assert.Equal(t, "2024-05-06", params["date"])
	assert.Equal(t, "08:00:00", params["time"])
	assert.Equal(t, "1000", params["maxWalkDistance"])
	assert.Equal(t, "3", params["numItineraries"])
	assert.Equal(t, DefaultMode, params["mode"])

	// served from memory
	_, err = c.Plan(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// a new client sharing the store does not hit the network either
	c2 := NewClient(ClientConfig{URL: srv.URL}, store)
	resp, err = c2.Plan(context.Background(), testQuery())
	require.NoError(t, err)
	require.NotNil(t, resp.Plan)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPlanCachesPlannerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"error":{"id":406,"msg":"NO_TRANSIT_TIMES","message":"date too far"}}`)
	}))
	defer srv.Close()

	store := newCacheStore(t)
	c := NewClient(ClientConfig{URL: srv.URL}, store)

	resp, err := c.Plan(context.Background(), testQuery())
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrIDDateTooFar, resp.Error.ID)

	body, ok, err := store.Get(context.Background(), testQuery().CacheKey())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, body, "NO_TRANSIT_TIMES")

	_, err = c.Plan(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPlanDoesNotCacheMalformedResponses(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, `{"plan": [`)
			return
		}
		fmt.Fprint(w, planBody)
	}))
	defer srv.Close()

	store := newCacheStore(t)
	c := NewClient(ClientConfig{URL: srv.URL}, store)

	_, err := c.Plan(context.Background(), testQuery())
	assert.ErrorIs(t, err, ErrMalformedResponse)
	_, ok, err := store.Get(context.Background(), testQuery().CacheKey())
	require.NoError(t, err)
	assert.False(t, ok)

	resp, err := c.Plan(context.Background(), testQuery())
	require.NoError(t, err)
	assert.NotNil(t, resp.Plan)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPlanFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{URL: srv.URL}, nil).Plan(context.Background(), testQuery())
	assert.Error(t, err)
}

func TestMatcherWithClientCachesBothDateShiftResponses(t *testing.T) {
	now := time.Date(2024, 9, 12, 15, 0, 0, 0, time.UTC)
	shifted := time.Date(2024, 9, 9, 8, 0, 0, 0, time.UTC)
	boardMs := shifted.Add(2 * time.Minute).UnixMilli()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("date") == "2024-05-06" {
			fmt.Fprint(w, `{"error":{"id":406,"msg":"NO_TRANSIT_TIMES"}}`)
			return
		}
		fmt.Fprintf(w, `{"plan":{"itineraries":[{"duration":1380,"legs":[
			{"mode":"WALK","duration":120},
			{"mode":"BUS","route":"550","transitLeg":true,"duration":1200,"startTime":%d,"endTime":%d},
			{"mode":"WALK","duration":60}]}]}}`, boardMs, boardMs+1200000)
	}))
	defer srv.Close()

	store := newCacheStore(t)
	m := NewMatcher(NewClient(ClientConfig{URL: srv.URL}, store), 3, time.UTC)
	m.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		match, ok, err := m.Match(context.Background(), vehicleLeg(20*time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, Match{Mode: "BUS", Line: "550"}, match)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	q := testQuery()
	_, ok, _ := store.Get(context.Background(), q.CacheKey())
	assert.True(t, ok)
	q.Start = shifted
	_, ok, _ = store.Get(context.Background(), q.CacheKey())
	assert.True(t, ok)
}
