package keyroute

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/stem-connect/keyroute/config"
	"github.com/stem-connect/keyroute/device"
	"github.com/stem-connect/keyroute/stream"
	"github.com/stem-connect/keyroute/utils"
)

const (
	// eventHistoryLimit caps the backlog pushed to a fresh websocket client.
	eventHistoryLimit = 50
	// defaultEventLimit is how many entries /api/events returns when the
	// caller gives no limit. limit=0 asks for the whole ring.
	defaultEventLimit = 20
)

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Monitor.Status())
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	n, err := parseNonNegativeInt(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if n < 0 {
		n = defaultEventLimit
	}
	writeJSON(w, http.StatusOK, a.Events.Recent(n))
}

type buzzRequest struct {
	Word       string `json:"word"`
	Command    string `json:"command"`
	Scope      string `json:"scope"`
	FreqHz     int    `json:"freq_hz"`
	DurationMS int    `json:"duration_ms"`
}

type buzzResponse struct {
	Sent    bool   `json:"sent"`
	Command string `json:"command"`
	Mode    string `json:"mode"`
}

// handleBuzz pushes an operator command to the device. The body names
// either a vocabulary word, a legacy command/scope pair, or a raw
// frequency and duration.
func (a *API) handleBuzz(w http.ResponseWriter, r *http.Request) {
	var req buzzRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, &QueryError{Msg: "Request body must be JSON."})
		return
	}

	cmd, err := resolveBuzzCommand(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sent := a.Dispatcher.Inject(cmd)
	writeJSON(w, http.StatusOK, buzzResponse{
		Sent:    sent,
		Command: cmd.Line(),
		Mode:    a.Channel.Mode(),
	})
}

func resolveBuzzCommand(req buzzRequest) (device.Command, error) {
	switch {
	case req.Word != "":
		return device.Parse(req.Word)
	case req.Command != "":
		// command carries either a full vocabulary word or a legacy
		// generic level qualified by scope.
		if cmd, err := device.Parse(req.Command); err == nil {
			return cmd, nil
		}
		return legacyCommand(req.Command, req.Scope)
	case req.FreqHz != 0 || req.DurationMS != 0:
		if req.FreqHz <= 0 || req.DurationMS <= 0 {
			return device.Command{}, &QueryError{Msg: "freq_hz and duration_ms must be positive."}
		}
		return device.Buzz(req.FreqHz, req.DurationMS), nil
	}
	return device.Command{}, &QueryError{Msg: "You must provide word, command, or freq_hz/duration_ms."}
}

// legacyCommand maps the original command/scope request shape onto the
// device vocabulary.
func legacyCommand(command, scope string) (device.Command, error) {
	side := device.SideOrigin
	switch strings.ToLower(scope) {
	case "", "origin":
	case "dest":
		side = device.SideDest
	default:
		return device.Command{}, &QueryError{Msg: "Scope must be origin or dest."}
	}
	switch strings.ToLower(command) {
	case "idle":
		return device.Idle(), nil
	case "urgent":
		return device.Urgent(), nil
	case "nearby":
		return device.Nearby(side), nil
	case "approach":
		return device.Approach(side), nil
	case "stop":
		return device.AtStop(side), nil
	case "status":
		return device.StatusUpdate(), nil
	}
	return device.Command{}, &QueryError{Msg: "Unknown command: " + command}
}

type thresholdsResponse struct {
	UrgentSec   int `json:"urgent_sec"`
	StopSec     int `json:"stop_sec"`
	ApproachSec int `json:"approach_sec"`
	NearbySec   int `json:"nearby_sec"`
}

type deviceResponse struct {
	Port     string `json:"port,omitempty"`
	BaudRate int    `json:"baud_rate"`
	Mode     string `json:"mode"`
	State    string `json:"state"`
}

type configResponse struct {
	OriginStop      string             `json:"origin_stop"`
	DestStop        string             `json:"dest_stop"`
	PollIntervalSec int                `json:"poll_interval_sec"`
	PredictionLimit int                `json:"prediction_limit"`
	Heartbeat       bool               `json:"heartbeat"`
	Origin          thresholdsResponse `json:"origin_thresholds"`
	Dest            thresholdsResponse `json:"dest_thresholds"`
	Device          deviceResponse     `json:"device"`
}

func threshResponse(c config.ThresholdsConfig) thresholdsResponse {
	return thresholdsResponse{
		UrgentSec:   c.UrgentSec,
		StopSec:     c.StopSec,
		ApproachSec: c.ApproachSec,
		NearbySec:   c.NearbySec,
	}
}

func (a *API) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	origin, dest := a.Monitor.Stops()
	mon := config.Config.Monitor
	writeJSON(w, http.StatusOK, configResponse{
		OriginStop:      origin,
		DestStop:        dest,
		PollIntervalSec: mon.PollIntervalSec,
		PredictionLimit: mon.PredictionLimit,
		Heartbeat:       mon.Heartbeat,
		Origin:          threshResponse(mon.Origin),
		Dest:            threshResponse(mon.Dest),
		Device: deviceResponse{
			Port:     a.Channel.PortName(),
			BaudRate: config.Config.Device.BaudRate,
			Mode:     a.Channel.Mode(),
			State:    a.Channel.State().String(),
		},
	})
}

type configSetRequest struct {
	OriginStop string `json:"origin_stop"`
	DestStop   string `json:"dest_stop"`
}

// handleConfigSet re-points the watcher at a new stop pair. Thresholds and
// intervals stay as configured; only the stops move at runtime.
func (a *API) handleConfigSet(w http.ResponseWriter, r *http.Request) {
	var req configSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, &QueryError{Msg: "Request body must be JSON."})
		return
	}
	if req.OriginStop == "" || req.DestStop == "" {
		writeError(w, http.StatusBadRequest, &QueryError{Msg: "You must provide origin_stop and dest_stop."})
		return
	}

	a.Monitor.SetStops(req.OriginStop, req.DestStop)
	origin, dest := a.Monitor.Stops()
	writeJSON(w, http.StatusOK, configSetRequest{OriginStop: origin, DestStop: dest})
}

type arrivalResponse struct {
	TripID     string `json:"trip_id,omitempty"`
	RouteID    string `json:"route_id,omitempty"`
	Headsign   string `json:"headsign,omitempty"`
	ETASeconds int64  `json:"eta_seconds"`
	Display    string `json:"display"`
	Arrival    string `json:"arrival,omitempty"`
}

func (a *API) handleArrivals(w http.ResponseWriter, r *http.Request) {
	stopID := strings.TrimSpace(r.URL.Query().Get("stop"))
	if stopID == "" {
		writeError(w, http.StatusBadRequest, &QueryError{Msg: "You must provide a stop."})
		return
	}
	limit, err := parseNonNegativeInt(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	preds, err := a.Source.Predictions(r.Context(), stopID, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	out := make([]arrivalResponse, 0, len(preds))
	for _, p := range preds {
		row := arrivalResponse{
			TripID:     p.TripID,
			RouteID:    p.RouteID,
			Headsign:   p.Headsign,
			ETASeconds: p.ETASeconds,
			Display:    utils.PresentableETA(p.ETASeconds),
		}
		if !p.Arrival.IsZero() {
			row.Arrival = utils.Iso8601FromTime(p.Arrival)
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleStopSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, &QueryError{Msg: "You must provide a search query."})
		return
	}
	limit, err := parseNonNegativeInt(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if a.Finder == nil {
		writeError(w, http.StatusNotImplemented, &QueryError{Msg: "Stop lookup requires the MBTA API source."})
		return
	}

	stops, err := a.Finder.SearchStops(r.Context(), query, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, stops)
}

func (a *API) handleStopsNear(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := parseRequiredFloat(q.Get("lat"), "lat")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	lon, err := parseRequiredFloat(q.Get("lon"), "lon")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	radius, err := parseNonNegativeInt(q.Get("radius_m"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if radius < 0 {
		radius = 500
	}
	limit, err := parseNonNegativeInt(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if a.Finder == nil {
		writeError(w, http.StatusNotImplemented, &QueryError{Msg: "Stop lookup requires the MBTA API source."})
		return
	}

	stops, err := a.Finder.StopsNear(r.Context(), lat, lon, radius, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, stops)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (a *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	client := &stream.Client{Hub: a.Hub, Conn: conn, Send: make(chan []byte, 256)}
	a.Hub.Register(client)
	go client.WritePump()
	go client.ReadPump()

	go a.sendEventHistory(client)
}

// sendEventHistory pushes the recent backlog to a fresh client so it does
// not start from a blank screen.
func (a *API) sendEventHistory(client *stream.Client) {
	recent := a.Events.Recent(eventHistoryLimit)
	if len(recent) == 0 {
		return
	}
	b, err := json.Marshal(map[string]any{"type": "history", "payload": recent})
	if err != nil {
		log.Printf("failed to marshal event history: %v", err)
		return
	}
	select {
	case client.Send <- b:
	default:
	}
}
