package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bluele/gcache"

	"github.com/jengzang/legs-backend-go/internal/models"
	"github.com/jengzang/legs-backend-go/internal/repository"
)

// ErrIDDateTooFar is the planner error id for a date outside the loaded timetable
const ErrIDDateTooFar = 406

// ErrMalformedResponse is returned when the planner reply cannot be decoded
var ErrMalformedResponse = errors.New("malformed planner response")

// Query is one journey planning request
type Query struct {
	Start           time.Time
	From            models.Coordinate
	To              models.Coordinate
	Mode            string
	MaxWalkDistance int
	NumItineraries  int
}

func place(c models.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lon, 'f', 6, 64)
}

// CacheKey identifies the query's response
func (q Query) CacheKey() string {
	return fmt.Sprintf("%d|%s|%s|%s|%d|%d",
		q.Start.Unix(), place(q.From), place(q.To), q.Mode, q.MaxWalkDistance, q.NumItineraries)
}

// Response is the planner's reply: either a plan or an error
type Response struct {
	Plan  *Plan          `json:"plan,omitempty"`
	Error *ResponseError `json:"error,omitempty"`
}

// Plan holds the itineraries in planner order
type Plan struct {
	Itineraries []Itinerary `json:"itineraries"`
}

// Itinerary is one door to door alternative. Duration is in seconds, times in unix milliseconds.
type Itinerary struct {
	Duration  int64 `json:"duration"`
	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime"`
	Legs      []Leg `json:"legs"`
}

// Leg is one part of an itinerary
type Leg struct {
	Mode       string  `json:"mode"`
	Route      string  `json:"route"`
	TransitLeg bool    `json:"transitLeg"`
	Duration   float64 `json:"duration"`
	StartTime  int64   `json:"startTime"`
	EndTime    int64   `json:"endTime"`
}

// ResponseError is the planner's error object
type ResponseError struct {
	ID      int    `json:"id"`
	Msg     string `json:"msg"`
	Message string `json:"message"`
}

// CacheStore persists raw responses across restarts
type CacheStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, e repository.PlannerCacheEntry) error
}

// ClientConfig configures the planner client
type ClientConfig struct {
	URL       string
	Timeout   time.Duration
	CacheSize int
	Location  *time.Location
}

// Client queries the journey planner. Responses, including planner errors,
// are cached in memory and in the store so a query is sent at most once.
type Client struct {
	baseURL string
	http    *http.Client
	memory  gcache.Cache
	store   CacheStore
	loc     *time.Location
}

// NewClient creates a planner client. store may be nil.
func NewClient(cfg ClientConfig, store CacheStore) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 50 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Client{
		baseURL: cfg.URL,
		http:    &http.Client{Timeout: cfg.Timeout},
		memory: gcache.New(cfg.CacheSize).
			LRU().
			Expiration(24 * time.Hour).
			Build(),
		store: store,
		loc:   cfg.Location,
	}
}

// Plan returns the planner's response for q
func (c *Client) Plan(ctx context.Context, q Query) (*Response, error) {
	key := q.CacheKey()

	if v, err := c.memory.Get(key); err == nil {
		return decode(v.(string))
	}

	if c.store != nil {
		body, ok, err := c.store.Get(ctx, key)
		if err != nil {
			log.Printf("[Planner] Cache read failed (key=%s): %v", key, err)
		} else if ok {
			resp, err := decode(body)
			if err == nil {
				c.memory.Set(key, body)
				return resp, nil
			}
			log.Printf("[Planner] Ignoring unreadable cache entry (key=%s): %v", key, err)
		}
	}

	body, err := c.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	resp, err := decode(body)
	if err != nil {
		return nil, err
	}

	c.memory.Set(key, body)
	if c.store != nil {
		err := c.store.Put(ctx, repository.PlannerCacheEntry{
			Key:             key,
			StartTime:       q.Start,
			Origin:          place(q.From),
			Destination:     place(q.To),
			Mode:            q.Mode,
			MaxWalkDistance: q.MaxWalkDistance,
			NumItineraries:  q.NumItineraries,
			Response:        body,
		})
		if err != nil {
			log.Printf("[Planner] Cache write failed (key=%s): %v", key, err)
		}
	}
	return resp, nil
}

func (c *Client) fetch(ctx context.Context, q Query) (string, error) {
	start := q.Start.In(c.loc)
	params := url.Values{}
	params.Set("fromPlace", place(q.From))
	params.Set("toPlace", place(q.To))
	params.Set("date", start.Format("2006-01-02"))
	params.Set("time", start.Format("15:04:05"))
	params.Set("mode", q.Mode)
	params.Set("numItineraries", strconv.Itoa(q.NumItineraries))
	params.Set("maxWalkDistance", strconv.Itoa(q.MaxWalkDistance))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to query planner: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("planner returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(body), nil
}

func decode(body string) (*Response, error) {
	var resp Response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &resp, nil
}
