package places

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/jengzang/legs-backend-go/internal/analysis"
	"github.com/jengzang/legs-backend-go/internal/models"
	"github.com/jengzang/legs-backend-go/internal/repository"
	"github.com/jengzang/legs-backend-go/internal/spatial"
)

const (
	// ClusterLegsName is the entry point rebuilding users' places
	ClusterLegsName = "cluster_legs"
	// GeohashPrecision gives cells of roughly 150 m
	GeohashPrecision = 7
)

func init() {
	analysis.RegisterAnalyzer(ClusterLegsName, NewClusterLegsAnalyzer)
}

// ClusterPlaces groups the end points of a user's attached legs into geohash cells
func ClusterPlaces(userID int64, legs []models.Leg) []models.Place {
	type cell struct {
		place  models.Place
		coords []models.Coordinate
	}
	cells := make(map[string]*cell)

	for _, l := range legs {
		if !l.AttachedTo(userID) || l.IsTerminator() {
			continue
		}
		hash := spatial.EncodeGeohash(l.CoordinateEnd, GeohashPrecision)
		c, ok := cells[hash]
		if !ok {
			c = &cell{place: models.Place{UserID: userID, Geohash: hash}}
			cells[hash] = c
		}
		c.coords = append(c.coords, l.CoordinateEnd)
		c.place.Visits++
		if l.TimeEnd.After(c.place.LastVisit) {
			c.place.LastVisit = l.TimeEnd
		}
	}

	places := make([]models.Place, 0, len(cells))
	for _, c := range cells {
		c.place.Center = spatial.Centroid(c.coords)
		places = append(places, c.place)
	}
	sort.Slice(places, func(i, j int) bool {
		if places[i].Visits != places[j].Visits {
			return places[i].Visits > places[j].Visits
		}
		return places[i].Geohash < places[j].Geohash
	})
	return places
}

// ClusterLegsAnalyzer rebuilds the places of every user
type ClusterLegsAnalyzer struct {
	*analysis.UnitAnalyzer
	devices *repository.DeviceRepository
	legs    *repository.LegRepository
	places  *repository.PlaceRepository
}

// NewClusterLegsAnalyzer creates a new cluster_legs analyzer
func NewClusterLegsAnalyzer(env analysis.Env) analysis.Analyzer {
	return &ClusterLegsAnalyzer{
		UnitAnalyzer: analysis.NewUnitAnalyzer(env, ClusterLegsName),
		devices:      repository.NewDeviceRepository(env.DB),
		legs:         repository.NewLegRepository(env.DB),
		places:       repository.NewPlaceRepository(env.DB),
	}
}

// Analyze runs the pass. The cutoff bounds which legs are counted.
func (a *ClusterLegsAnalyzer) Analyze(ctx context.Context, taskID int64, opts analysis.RunOptions) error {
	log.Printf("[ClusterLegs] Starting (task_id=%d)", taskID)

	if err := a.MarkTaskAsRunning(taskID); err != nil {
		return fmt.Errorf("failed to mark task as running: %w", err)
	}

	users, err := a.devices.ListUserIDs(ctx)
	if err != nil {
		return a.FailTask(taskID, err)
	}

	var mu sync.Mutex
	total := 0
	failed, err := a.ProcessUnits(ctx, taskID, "user", users, func(ctx context.Context, userID int64) error {
		legs, err := a.legs.UserCommittedLegs(ctx, userID)
		if err != nil {
			return err
		}
		var counted []models.Leg
		for _, l := range legs {
			if opts.Cutoff.IsZero() || !l.TimeEnd.After(opts.Cutoff) {
				counted = append(counted, l)
			}
		}
		places := ClusterPlaces(userID, counted)
		if err := a.places.ReplaceUserPlaces(ctx, userID, places); err != nil {
			return err
		}
		mu.Lock()
		total += len(places)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return a.FailTask(taskID, err)
	}

	summary, _ := json.Marshal(map[string]interface{}{
		"users":        len(users),
		"failed_users": failed,
		"places":       total,
	})
	if err := a.MarkTaskAsCompleted(taskID, string(summary)); err != nil {
		return fmt.Errorf("failed to mark task as completed: %w", err)
	}

	log.Printf("[ClusterLegs] Completed: %d users, %d places", len(users), total)
	return nil
}
