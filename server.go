package keyroute

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stem-connect/keyroute/alert"
	"github.com/stem-connect/keyroute/device"
	"github.com/stem-connect/keyroute/eventlog"
	"github.com/stem-connect/keyroute/monitor"
	"github.com/stem-connect/keyroute/stream"
	"github.com/stem-connect/keyroute/transit"
)

var (
	server *http.Server
)

// StopFinder is implemented by prediction sources that can also look up
// stops. The raw GTFS-RT source cannot; the stop endpoints then answer
// 501.
type StopFinder interface {
	SearchStops(ctx context.Context, query string, limit int) ([]transit.Stop, error)
	StopsNear(ctx context.Context, lat, lon float64, radiusMeters, limit int) ([]transit.Stop, error)
}

// API bundles the running pieces the HTTP surface reads from and writes
// to. Finder is nil when the prediction source cannot look up stops.
type API struct {
	Monitor    *monitor.Monitor
	Dispatcher *alert.Dispatcher
	Channel    *device.Channel
	Source     transit.Source
	Finder     StopFinder
	Events     *eventlog.Log
	Hub        *stream.Hub
}

// NewRouter builds the chi router over api.
func NewRouter(api *API) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", api.handleHealth)
	r.Get("/api/status", api.handleStatus)
	r.Get("/api/events", api.handleEvents)
	r.Post("/api/buzz", api.handleBuzz)
	r.Get("/api/config", api.handleConfigGet)
	r.Post("/api/config", api.handleConfigSet)
	r.Get("/api/arrivals", api.handleArrivals)
	r.Get("/api/stops/search", api.handleStopSearch)
	r.Get("/api/stops/near", api.handleStopsNear)
	r.Get("/ws", api.handleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func StartServer(api *API, port int) {
	addr := fmt.Sprintf(":%d", port)
	server = &http.Server{
		Addr:              addr,
		Handler:           NewRouter(api),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()
	log.Printf("server listening on %s", addr)
}

// HandleGracefulShutdown blocks until SIGINT or SIGTERM, stops the
// background loops through stop, and drains the HTTP server.
func HandleGracefulShutdown(stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Printf("shutdown signal received")
	if stop != nil {
		stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("server shutdown error: %v", err)
		} else {
			log.Printf("server shut down successfully")
		}
	}
}
