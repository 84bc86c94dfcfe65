package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stem-connect/keyroute/alert"
	"github.com/stem-connect/keyroute/device"
	"github.com/stem-connect/keyroute/eventlog"
	"github.com/stem-connect/keyroute/transit"
)

type fakeSource struct {
	preds map[string][]transit.Prediction
	errs  map[string]error
	calls []string
}

func (f *fakeSource) Predictions(_ context.Context, stopID string, _ int) ([]transit.Prediction, error) {
	f.calls = append(f.calls, stopID)
	if err := f.errs[stopID]; err != nil {
		return nil, err
	}
	return f.preds[stopID], nil
}

type recordingSender struct {
	lines []string
}

func (r *recordingSender) Send(cmd device.Command) bool {
	r.lines = append(r.lines, cmd.Line())
	return true
}

func (r *recordingSender) count(line string) int {
	n := 0
	for _, l := range r.lines {
		if l == line {
			n++
		}
	}
	return n
}

func testOptions() Options {
	return Options{
		OriginStop:       "S-O",
		DestStop:         "S-D",
		OriginThresholds: alert.Thresholds{Urgent: 30, Stop: 60, Approach: 120, Nearby: 300},
		DestThresholds:   alert.Thresholds{Urgent: 60, Stop: 120, Approach: 300, Nearby: 600},
		PollInterval:     time.Minute,
	}
}

func newTestMonitor(src *fakeSource, opts Options) (*Monitor, *recordingSender, *eventlog.Log) {
	sender := &recordingSender{}
	elog := eventlog.New(20)
	d := alert.NewDispatcher(sender, elog)
	return NewMonitor(src, d, elog, opts), sender, elog
}

func TestCycleDispatchesAndSnapshots(t *testing.T) {
	src := &fakeSource{preds: map[string][]transit.Prediction{
		"S-O": {{StopID: "S-O", TripID: "T7", ETASeconds: 110}},
		"S-D": {{StopID: "S-D", TripID: "T7", ETASeconds: 480}},
	}}
	m, sender, _ := newTestMonitor(src, testOptions())

	m.Cycle(context.Background())

	expected := []string{"ORIGIN_APPROACH", "DEST_NEARBY", "LED_STATUS_ORIGIN"}
	if len(sender.lines) != len(expected) {
		t.Fatalf("expected %d commands, got %v", len(expected), sender.lines)
	}
	for i, want := range expected {
		if sender.lines[i] != want {
			t.Errorf("command %d: expected %s, got %s", i, want, sender.lines[i])
		}
	}

	st := m.Status()
	if st.OriginSecs == nil || *st.OriginSecs != 110 {
		t.Errorf("expected origin ETA 110, got %v", st.OriginSecs)
	}
	if st.DestSecs == nil || *st.DestSecs != 480 {
		t.Errorf("expected dest ETA 480, got %v", st.DestSecs)
	}
	if st.TripID != "T7" {
		t.Errorf("expected trip T7, got %q", st.TripID)
	}
	if st.OriginAlert != "APPROACH" || st.DestAlert != "NEARBY" {
		t.Errorf("expected APPROACH/NEARBY, got %s/%s", st.OriginAlert, st.DestAlert)
	}
	if st.LastUpdated == "" {
		t.Error("expected the snapshot to carry a timestamp")
	}
}

func TestCycleFetchFailureLeavesOtherSideAlive(t *testing.T) {
	src := &fakeSource{
		preds: map[string][]transit.Prediction{
			"S-D": {{StopID: "S-D", TripID: "T9", ETASeconds: 200}},
		},
		errs: map[string]error{"S-O": fmt.Errorf("HTTP 502 from upstream")},
	}
	m, _, elog := newTestMonitor(src, testOptions())

	m.Cycle(context.Background())

	if len(src.calls) != 2 {
		t.Fatalf("expected both sides fetched despite the origin failure, got %v", src.calls)
	}
	entry, ok := elog.Last()
	if !ok || entry.Kind != eventlog.KindPollError {
		t.Errorf("expected a poll_error event, got %+v", entry)
	}

	st := m.Status()
	if st.OriginSecs != nil || st.DestSecs != nil {
		t.Errorf("expected no ETAs without an origin prediction, got %v/%v", st.OriginSecs, st.DestSecs)
	}
	if st.OriginAlert != "IDLE" || st.DestAlert != "IDLE" {
		t.Errorf("expected both sides IDLE, got %s/%s", st.OriginAlert, st.DestAlert)
	}
	if st.LastUpdated == "" {
		t.Error("expected the cycle to complete and stamp the snapshot")
	}
}

func TestCycleHeartbeat(t *testing.T) {
	src := &fakeSource{preds: map[string][]transit.Prediction{
		"S-O": {{StopID: "S-O", TripID: "T1", ETASeconds: 100}},
	}}
	opts := testOptions()
	opts.Heartbeat = true
	m, sender, _ := newTestMonitor(src, opts)

	m.Cycle(context.Background())
	if sender.lines[len(sender.lines)-1] != "STATUS_UPDATE" {
		t.Errorf("expected a trailing heartbeat, got %v", sender.lines)
	}

	src.preds = map[string][]transit.Prediction{}
	m.Cycle(context.Background())
	if sender.count("STATUS_UPDATE") != 1 {
		t.Errorf("expected no heartbeat without live ETAs, got %v", sender.lines)
	}
}

func TestCycleSuppressesRepeatAlerts(t *testing.T) {
	src := &fakeSource{preds: map[string][]transit.Prediction{
		"S-O": {{StopID: "S-O", TripID: "T1", ETASeconds: 250}},
	}}
	m, sender, _ := newTestMonitor(src, testOptions())

	m.Cycle(context.Background())
	m.Cycle(context.Background())

	if got := sender.count("ORIGIN_NEARBY"); got != 1 {
		t.Errorf("expected a single NEARBY across identical cycles, got %d", got)
	}
	if got := sender.count("LED_STATUS_ORIGIN"); got != 2 {
		t.Errorf("expected orientation every cycle, got %d", got)
	}
}

func TestSetStopsResetsAlertTracking(t *testing.T) {
	src := &fakeSource{preds: map[string][]transit.Prediction{
		"S-O": {{StopID: "S-O", TripID: "T1", ETASeconds: 250}},
	}}
	m, sender, elog := newTestMonitor(src, testOptions())

	m.Cycle(context.Background())
	m.SetStops("S-O", "S-D2")
	m.Cycle(context.Background())

	if origin, dest := m.Stops(); origin != "S-O" || dest != "S-D2" {
		t.Errorf("expected stops S-O/S-D2, got %s/%s", origin, dest)
	}
	if got := sender.count("ORIGIN_NEARBY"); got != 2 {
		t.Errorf("expected NEARBY re-announced after the stop change, got %d", got)
	}

	found := false
	for _, e := range elog.Recent(0) {
		if e.Kind == eventlog.KindConfig {
			found = true
		}
	}
	if !found {
		t.Error("expected a config event for the stop change")
	}
}
