package keyroute

import "net/http"

type healthResponse struct {
	Status      string `json:"status"`
	DeviceState string `json:"device_state"`
	DeviceMode  string `json:"device_mode"`
	DevicePort  string `json:"device_port,omitempty"`
	OriginStop  string `json:"origin_stop"`
	DestStop    string `json:"dest_stop"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	origin, dest := a.Monitor.Stops()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		DeviceState: a.Channel.State().String(),
		DeviceMode:  a.Channel.Mode(),
		DevicePort:  a.Channel.PortName(),
		OriginStop:  origin,
		DestStop:    dest,
	})
}
