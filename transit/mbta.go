package transit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/stem-connect/keyroute/utils"
)

const (
	// DefaultMBTABaseURL is the public MBTA v3 API root.
	DefaultMBTABaseURL = "https://api-v3.mbta.com"

	defaultFetchTimeout = 12 * time.Second
	defaultLimit        = 5

	// The v3 API's radius filter is expressed in degrees of latitude.
	metersPerDegree = 111320.0
)

// MBTAClient queries the MBTA v3 JSON:API for predictions and stops.
// Every request is bounded by the client timeout.
type MBTAClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

// NewMBTAClient builds a client for the given API root. An empty baseURL
// targets the public MBTA API; a zero timeout gets the 12s default. The
// API key is optional (the public API rate-limits anonymous callers).
func NewMBTAClient(baseURL, apiKey string, timeout time.Duration) *MBTAClient {
	if baseURL == "" {
		baseURL = DefaultMBTABaseURL
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &MBTAClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

type jsonAPIRef struct {
	Data *struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"data"`
}

type predictionResource struct {
	ID         string `json:"id"`
	Attributes struct {
		ArrivalTime   string `json:"arrival_time"`
		DepartureTime string `json:"departure_time"`
		DirectionID   *int   `json:"direction_id"`
		Status        string `json:"status"`
	} `json:"attributes"`
	Relationships struct {
		Trip  jsonAPIRef `json:"trip"`
		Route jsonAPIRef `json:"route"`
	} `json:"relationships"`
}

type includedResource struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Headsign string `json:"headsign"`
	} `json:"attributes"`
}

type predictionsEnvelope struct {
	Data     []predictionResource `json:"data"`
	Included []includedResource   `json:"included"`
}

type stopResource struct {
	ID         string `json:"id"`
	Attributes struct {
		Name         string  `json:"name"`
		Latitude     float64 `json:"latitude"`
		Longitude    float64 `json:"longitude"`
		Municipality string  `json:"municipality"`
	} `json:"attributes"`
}

type stopsEnvelope struct {
	Data []stopResource `json:"data"`
}

// Predictions fetches upcoming arrivals at a stop, soonest first. Arrival
// time falls back to departure time when the API omits it; rows with
// malformed timestamps are skipped, and non-positive ETAs are discarded.
func (c *MBTAClient) Predictions(ctx context.Context, stopID string, limit int) ([]Prediction, error) {
	if stopID == "" {
		return nil, fmt.Errorf("stop id must not be empty")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	q := url.Values{}
	q.Set("filter[stop]", stopID)
	q.Set("sort", "arrival_time")
	q.Set("page[limit]", strconv.Itoa(limit))
	q.Set("include", "trip")

	var env predictionsEnvelope
	if err := c.getJSON(ctx, "/predictions", q, &env); err != nil {
		return nil, fmt.Errorf("predictions for stop %s: %w", stopID, err)
	}

	headsigns := map[string]string{}
	for _, inc := range env.Included {
		if inc.Type == "trip" && inc.Attributes.Headsign != "" {
			headsigns[inc.ID] = inc.Attributes.Headsign
		}
	}

	now := c.now()
	preds := make([]Prediction, 0, len(env.Data))
	for _, row := range env.Data {
		ts := row.Attributes.ArrivalTime
		if ts == "" {
			ts = row.Attributes.DepartureTime
		}
		if ts == "" {
			continue
		}
		at, err := utils.ParseISO8601(ts)
		if err != nil {
			log.Printf("skipping prediction %s: unparseable timestamp %q", row.ID, ts)
			continue
		}
		eta := int64(at.Sub(now) / time.Second)
		if eta <= 0 {
			continue
		}
		p := Prediction{
			StopID:      stopID,
			DirectionID: row.Attributes.DirectionID,
			Arrival:     at,
			ETASeconds:  eta,
		}
		if row.Relationships.Trip.Data != nil {
			p.TripID = row.Relationships.Trip.Data.ID
			p.Headsign = headsigns[p.TripID]
		}
		if row.Relationships.Route.Data != nil {
			p.RouteID = row.Relationships.Route.Data.ID
		}
		preds = append(preds, p)
	}
	// rows that fell back to departure_time can land out of order
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].ETASeconds < preds[j].ETASeconds })
	return preds, nil
}

// SearchStops returns up to limit stops whose name contains query,
// case-insensitively. The v3 API has no free-text stop filter, so a page of
// named stops is fetched and matched locally.
func (c *MBTAClient) SearchStops(ctx context.Context, query string, limit int) ([]Stop, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, fmt.Errorf("search query must not be empty")
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	q := url.Values{}
	q.Set("filter[location_type]", "0,1")
	q.Set("page[limit]", "500")

	var env stopsEnvelope
	if err := c.getJSON(ctx, "/stops", q, &env); err != nil {
		return nil, fmt.Errorf("stop search: %w", err)
	}
	out := []Stop{}
	for _, row := range env.Data {
		if !strings.Contains(strings.ToLower(row.Attributes.Name), needle) {
			continue
		}
		out = append(out, stopFromResource(row))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// StopsNear returns stops within radiusMeters of a coordinate, closest
// first.
func (c *MBTAClient) StopsNear(ctx context.Context, lat, lon float64, radiusMeters, limit int) ([]Stop, error) {
	if radiusMeters <= 0 {
		radiusMeters = 500
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	q := url.Values{}
	q.Set("filter[latitude]", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("filter[longitude]", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("filter[radius]", strconv.FormatFloat(float64(radiusMeters)/metersPerDegree, 'f', 6, 64))
	q.Set("sort", "distance")
	q.Set("page[limit]", strconv.Itoa(limit))

	var env stopsEnvelope
	if err := c.getJSON(ctx, "/stops", q, &env); err != nil {
		return nil, fmt.Errorf("stops near (%.5f, %.5f): %w", lat, lon, err)
	}
	out := make([]Stop, 0, len(env.Data))
	for _, row := range env.Data {
		out = append(out, stopFromResource(row))
	}
	return out, nil
}

func stopFromResource(row stopResource) Stop {
	return Stop{
		ID:           row.ID,
		Name:         row.Attributes.Name,
		Latitude:     row.Attributes.Latitude,
		Longitude:    row.Attributes.Longitude,
		Municipality: row.Attributes.Municipality,
	}
}

func (c *MBTAClient) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
