package transit

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/stem-connect/keyroute/utils"
)

const defaultFeedRefresh = 15 * time.Second

// GTFSRTSource serves predictions out of a GTFS-Realtime TripUpdates feed,
// for agencies that expose no JSON predictions API. The whole feed is
// fetched, decoded and indexed by stop, then served from memory until the
// refresh interval lapses. One fetch covers both monitored stops per cycle.
type GTFSRTSource struct {
	tripUpdatesURL string
	refreshEvery   time.Duration
	httpClient     *http.Client
	now            func() time.Time

	mu        sync.Mutex
	fetchedAt time.Time
	byStop    map[string][]Prediction
}

// NewGTFSRTSource creates a source reading TripUpdates from the given URL.
// A non-positive refresh interval gets the 15s default.
func NewGTFSRTSource(tripUpdatesURL string, refreshEvery time.Duration) *GTFSRTSource {
	if refreshEvery <= 0 {
		refreshEvery = defaultFeedRefresh
	}
	return &GTFSRTSource{
		tripUpdatesURL: tripUpdatesURL,
		refreshEvery:   refreshEvery,
		httpClient:     &http.Client{Timeout: defaultFetchTimeout},
		now:            time.Now,
		byStop:         map[string][]Prediction{},
	}
}

// Predictions returns the indexed arrivals for a stop, refreshing the feed
// first when the cached copy is stale.
func (s *GTFSRTSource) Predictions(ctx context.Context, stopID string, limit int) ([]Prediction, error) {
	if stopID == "" {
		return nil, fmt.Errorf("stop id must not be empty")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fetchedAt.IsZero() || s.now().Sub(s.fetchedAt) >= s.refreshEvery {
		if err := s.refreshLocked(ctx); err != nil {
			return nil, fmt.Errorf("trip updates refresh: %w", err)
		}
	}
	preds := s.byStop[stopID]
	if len(preds) > limit {
		preds = preds[:limit]
	}
	out := make([]Prediction, len(preds))
	copy(out, preds)
	return out, nil
}

func (s *GTFSRTSource) refreshLocked(ctx context.Context) error {
	fm, err := s.fetchFeed(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	byStop := map[string][]Prediction{}
	for _, e := range fm.Entity {
		tu := e.TripUpdate
		if tu == nil {
			continue
		}
		var tripID, routeID string
		var dir *int
		if tu.Trip != nil {
			if tu.Trip.TripId != nil {
				tripID = *tu.Trip.TripId
			}
			if tu.Trip.RouteId != nil {
				routeID = *tu.Trip.RouteId
			}
			if tu.Trip.DirectionId != nil {
				d := int(*tu.Trip.DirectionId)
				dir = &d
			}
		}
		for _, stu := range tu.StopTimeUpdate {
			if stu.StopId == nil {
				continue
			}
			if stu.ScheduleRelationship != nil && *stu.ScheduleRelationship == gtfsrtpb.TripUpdate_StopTimeUpdate_SKIPPED {
				continue
			}
			var epoch int64
			if stu.Arrival != nil && stu.Arrival.Time != nil {
				epoch = *stu.Arrival.Time
			} else if stu.Departure != nil && stu.Departure.Time != nil {
				epoch = *stu.Departure.Time
			}
			if epoch == 0 {
				continue
			}
			at := time.Unix(epoch, 0)
			eta := int64(at.Sub(now) / time.Second)
			if eta <= 0 {
				continue
			}
			sid := *stu.StopId
			byStop[sid] = append(byStop[sid], Prediction{
				StopID:      sid,
				TripID:      tripID,
				RouteID:     routeID,
				DirectionID: dir,
				Arrival:     at,
				ETASeconds:  eta,
			})
		}
	}
	for sid := range byStop {
		preds := byStop[sid]
		sort.SliceStable(preds, func(i, j int) bool { return preds[i].ETASeconds < preds[j].ETASeconds })
	}
	s.byStop = byStop
	s.fetchedAt = now
	if fm.Header != nil && fm.Header.Timestamp != nil {
		log.Printf("trip updates refreshed, header ts %s, %d stops indexed",
			utils.Iso8601FromUnixSeconds(int64(*fm.Header.Timestamp)), len(byStop))
	}
	return nil
}

func (s *GTFSRTSource) fetchFeed(ctx context.Context) (*gtfsrtpb.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.tripUpdatesURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", s.tripUpdatesURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, s.tripUpdatesURL)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var fm gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(b, &fm); err != nil {
		return nil, err
	}
	return &fm, nil
}
