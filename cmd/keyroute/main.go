package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/stem-connect/keyroute"
	"github.com/stem-connect/keyroute/alert"
	"github.com/stem-connect/keyroute/config"
	"github.com/stem-connect/keyroute/device"
	"github.com/stem-connect/keyroute/eventlog"
	"github.com/stem-connect/keyroute/metrics"
	"github.com/stem-connect/keyroute/monitor"
	"github.com/stem-connect/keyroute/stream"
	"github.com/stem-connect/keyroute/transit"
)

func main() {
	simulate := flag.Bool("simulate", false, "force simulation; no serial device is opened")
	portName := flag.String("port", "", "serial port path (overrides config; empty enables discovery)")
	flag.Parse()

	keyroute.InitLogging()
	if err := config.LoadAppConfig(); err != nil {
		log.Fatalf("config error: %v", err)
	}
	cfg := config.Config
	metrics.Init()

	elog := eventlog.New(cfg.Events.Capacity)
	hub := stream.NewHub()
	elog.Notify(hub.BroadcastEvent)

	devOpts := device.Options{
		PortName:     cfg.Device.Port,
		BaudRate:     cfg.Device.BaudRate,
		SettleDelay:  time.Duration(cfg.Device.SettleDelayMS) * time.Millisecond,
		WaitReady:    cfg.Device.WaitReady,
		ReadyTimeout: time.Duration(cfg.Device.ReadyTimeoutMS) * time.Millisecond,
		Simulate:     cfg.Device.Simulate || *simulate,
	}
	if *portName != "" {
		devOpts.PortName = *portName
	}
	channel := device.NewChannel(devOpts, elog)
	defer channel.Close()
	channel.Connect()

	dispatcher := alert.NewDispatcher(channel, elog)

	var source transit.Source
	var finder keyroute.StopFinder
	if cfg.GTFSRT.TripUpdatesURL != "" {
		source = transit.NewGTFSRTSource(cfg.GTFSRT.TripUpdatesURL, time.Duration(cfg.GTFSRT.RefreshMS)*time.Millisecond)
		log.Printf("prediction source: GTFS-RT trip updates at %s", cfg.GTFSRT.TripUpdatesURL)
	} else {
		mbta := transit.NewMBTAClient(cfg.MBTA.BaseURL, cfg.MBTA.APIKey, time.Duration(cfg.MBTA.TimeoutMS)*time.Millisecond)
		source = mbta
		finder = mbta
		log.Printf("prediction source: MBTA API at %s", cfg.MBTA.BaseURL)
	}

	mon := monitor.NewMonitor(source, dispatcher, elog, monitor.Options{
		OriginStop:       cfg.Monitor.OriginStop,
		DestStop:         cfg.Monitor.DestStop,
		OriginThresholds: thresholds(cfg.Monitor.Origin),
		DestThresholds:   thresholds(cfg.Monitor.Dest),
		PollInterval:     time.Duration(cfg.Monitor.PollIntervalSec) * time.Second,
		PredictionLimit:  cfg.Monitor.PredictionLimit,
		Heartbeat:        cfg.Monitor.Heartbeat,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	go mon.Run(ctx)

	api := &keyroute.API{
		Monitor:    mon,
		Dispatcher: dispatcher,
		Channel:    channel,
		Source:     source,
		Finder:     finder,
		Events:     elog,
		Hub:        hub,
	}
	keyroute.StartServer(api, cfg.Server.Port)
	keyroute.HandleGracefulShutdown(cancel)
}

func thresholds(c config.ThresholdsConfig) alert.Thresholds {
	return alert.Thresholds{
		Urgent:   int64(c.UrgentSec),
		Stop:     int64(c.StopSec),
		Approach: int64(c.ApproachSec),
		Nearby:   int64(c.NearbySec),
	}
}
