package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the global application configuration
var Config AppConfig

// LoadAppConfig loads the application configuration from config.yml,
// overlays environment variables, fills defaults, and validates the
// result. A missing file is not an error; validation still requires the
// watched stops to come from somewhere.
func LoadAppConfig() error {
	paths := []string{"config.yml", "/etc/keyroute/config.yml"}
	var cfg AppConfig
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", p, err)
		}
		break
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return err
	}
	applyDefaults(&cfg)

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return err
	}
	Config = cfg
	return nil
}

func applyEnvOverrides(cfg *AppConfig) error {
	if v := os.Getenv("MBTA_API_KEY"); v != "" {
		cfg.MBTA.APIKey = v
	}
	if v := os.Getenv("ORIGIN_STOP"); v != "" {
		cfg.Monitor.OriginStop = v
	}
	if v := os.Getenv("DEST_STOP"); v != "" {
		cfg.Monitor.DestStop = v
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POLL_INTERVAL must be an integer, got %q", v)
		}
		cfg.Monitor.PollIntervalSec = n
	}
	if v := os.Getenv("KEYROUTE_SERIAL_PORT"); v != "" {
		cfg.Device.Port = v
	}
	if v := os.Getenv("BAUD_RATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BAUD_RATE must be an integer, got %q", v)
		}
		cfg.Device.BaudRate = n
	}
	if v := os.Getenv("KEYROUTE_SIMULATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KEYROUTE_SIMULATE must be a boolean, got %q", v)
		}
		cfg.Device.Simulate = b
	}
	if v := os.Getenv("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT must be an integer, got %q", v)
		}
		cfg.Server.Port = n
	}
	return nil
}

// applyDefaults fills unset fields. Only zero values are touched, so an
// explicit negative still reaches validation and fails there.
func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.MBTA.BaseURL == "" {
		cfg.MBTA.BaseURL = "https://api-v3.mbta.com"
	}
	if cfg.MBTA.TimeoutMS == 0 {
		cfg.MBTA.TimeoutMS = 12000
	}
	if cfg.GTFSRT.RefreshMS == 0 {
		cfg.GTFSRT.RefreshMS = 15000
	}
	if cfg.Monitor.PollIntervalSec == 0 {
		cfg.Monitor.PollIntervalSec = 30
	}
	if cfg.Monitor.PredictionLimit == 0 {
		cfg.Monitor.PredictionLimit = 5
	}
	applyThresholdDefaults(&cfg.Monitor.Origin, 30, 60, 120, 300)
	applyThresholdDefaults(&cfg.Monitor.Dest, 60, 120, 300, 600)
	if cfg.Device.BaudRate == 0 {
		cfg.Device.BaudRate = 115200
	}
	if cfg.Device.SettleDelayMS == 0 {
		cfg.Device.SettleDelayMS = 2000
	}
	if cfg.Device.ReadyTimeoutMS == 0 {
		cfg.Device.ReadyTimeoutMS = 3000
	}
	if cfg.Events.Capacity == 0 {
		cfg.Events.Capacity = 200
	}
}

func applyThresholdDefaults(t *ThresholdsConfig, urgent, stop, approach, nearby int) {
	if t.UrgentSec == 0 {
		t.UrgentSec = urgent
	}
	if t.StopSec == 0 {
		t.StopSec = stop
	}
	if t.ApproachSec == 0 {
		t.ApproachSec = approach
	}
	if t.NearbySec == 0 {
		t.NearbySec = nearby
	}
}
