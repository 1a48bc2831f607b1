package live

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"

	"github.com/jengzang/legs-backend-go/internal/models"
)

// DefaultLineType is used for routes matching no configured prefix
const DefaultLineType = "BUS"

// SampleStore persists vehicle samples
type SampleStore interface {
	InsertSamples(ctx context.Context, samples []models.VehicleSample) (int, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// PollerConfig configures the vehicle position poller
type PollerConfig struct {
	URL       string
	Timeout   time.Duration
	Retention time.Duration
	// MaxRetry bounds the time spent retrying one poll
	MaxRetry time.Duration
	// LineTypes maps route id prefixes to line types (BUS, TRAM, SUBWAY, RAIL, FERRY)
	LineTypes map[string]string
}

// Poller fetches GTFS-RT vehicle positions and stores them as samples
type Poller struct {
	store    SampleStore
	cfg      PollerConfig
	client   *http.Client
	prefixes []string
	now      func() time.Time
}

// NewPoller creates a new vehicle position poller
func NewPoller(store SampleStore, cfg PollerConfig) *Poller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 20 * time.Second
	}
	prefixes := make([]string, 0, len(cfg.LineTypes))
	for prefix := range cfg.LineTypes {
		prefixes = append(prefixes, prefix)
	}
	// longest prefix first
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})

	return &Poller{
		store:    store,
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		prefixes: prefixes,
		now:      time.Now,
	}
}

// Poll fetches one snapshot, stores it and prunes samples past retention
func (p *Poller) Poll(ctx context.Context) error {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      p.cfg.MaxRetry,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	feed, err := backoff.RetryNotifyWithData(
		func() (*gtfs.FeedMessage, error) {
			return p.fetchFeed(ctx)
		},
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			log.Printf("[VehiclePoller] Backing off %s: %v", d, err)
		},
	)
	if err != nil {
		return fmt.Errorf("failed to fetch vehicle positions: %w", err)
	}

	samples := p.parseFeed(feed, uuid.NewString())
	inserted, err := p.store.InsertSamples(ctx, samples)
	if err != nil {
		return fmt.Errorf("failed to store vehicle samples: %w", err)
	}

	pruned := int64(0)
	if p.cfg.Retention > 0 {
		if pruned, err = p.store.Prune(ctx, p.now().Add(-p.cfg.Retention)); err != nil {
			return fmt.Errorf("failed to prune vehicle samples: %w", err)
		}
	}

	log.Printf("[VehiclePoller] Polled %d vehicles (%d new, %d pruned)", len(samples), inserted, pruned)
	return nil
}

func (p *Poller) fetchFeed(ctx context.Context) (*gtfs.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, backoff.Permanent(fmt.Errorf("feed returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to parse protobuf: %w", err))
	}
	return feed, nil
}

// parseFeed converts feed entities with a position into samples.
// Entities without a vehicle position or timestamp are skipped.
func (p *Poller) parseFeed(feed *gtfs.FeedMessage, snapshotID string) []models.VehicleSample {
	var headerTime uint64
	if feed.GetHeader() != nil {
		headerTime = feed.GetHeader().GetTimestamp()
	}

	samples := make([]models.VehicleSample, 0, len(feed.GetEntity()))
	for _, entity := range feed.GetEntity() {
		vehicle := entity.GetVehicle()
		if vehicle == nil || vehicle.GetPosition() == nil {
			continue
		}

		ref := vehicle.GetVehicle().GetId()
		if ref == "" {
			ref = "entity:" + entity.GetId()
		}

		ts := vehicle.GetTimestamp()
		if ts == 0 {
			ts = headerTime
		}
		if ts == 0 {
			continue
		}

		line := vehicle.GetTrip().GetRouteId()
		if line == "" {
			line = vehicle.GetVehicle().GetLabel()
		}

		samples = append(samples, models.VehicleSample{
			SnapshotID: snapshotID,
			VehicleRef: ref,
			Coordinate: models.Coordinate{
				Lat: float64(vehicle.GetPosition().GetLatitude()),
				Lon: float64(vehicle.GetPosition().GetLongitude()),
			},
			Time:     time.Unix(int64(ts), 0).UTC(),
			LineType: p.lineType(line),
			LineName: line,
		})
	}
	return samples
}

func (p *Poller) lineType(routeID string) string {
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(routeID, prefix) {
			return p.cfg.LineTypes[prefix]
		}
	}
	return DefaultLineType
}
