package config

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port int `yaml:"port" validate:"gt=0"`
}

// MBTAConfig contains MBTA v3 API client configuration
type MBTAConfig struct {
	BaseURL   string `yaml:"baseURL" validate:"omitempty,url"`
	APIKey    string `yaml:"apiKey"`
	TimeoutMS int    `yaml:"timeoutMS" validate:"gte=0"`
}

// GTFSRTConfig contains GTFS-Realtime trip updates configuration. When
// TripUpdatesURL is set it takes precedence over the MBTA API as the
// prediction source.
type GTFSRTConfig struct {
	TripUpdatesURL string `yaml:"tripUpdatesURL" validate:"omitempty,url"`
	RefreshMS      int    `yaml:"refreshMS" validate:"gte=0"`
}

// ThresholdsConfig contains the alert classification boundaries in seconds
type ThresholdsConfig struct {
	UrgentSec   int `yaml:"urgentSec" validate:"gt=0"`
	StopSec     int `yaml:"stopSec" validate:"gt=0"`
	ApproachSec int `yaml:"approachSec" validate:"gt=0"`
	NearbySec   int `yaml:"nearbySec" validate:"gt=0"`
}

// MonitorConfig contains the poll loop configuration
type MonitorConfig struct {
	OriginStop      string           `yaml:"originStop" validate:"required"`
	DestStop        string           `yaml:"destStop" validate:"required"`
	PollIntervalSec int              `yaml:"pollIntervalSec" validate:"gt=0"`
	PredictionLimit int              `yaml:"predictionLimit" validate:"gt=0"`
	Heartbeat       bool             `yaml:"heartbeat"`
	Origin          ThresholdsConfig `yaml:"origin"`
	Dest            ThresholdsConfig `yaml:"dest"`
}

// DeviceConfig contains serial device configuration. An empty Port enables
// auto-discovery.
type DeviceConfig struct {
	Port           string `yaml:"port"`
	BaudRate       int    `yaml:"baudRate" validate:"gt=0"`
	SettleDelayMS  int    `yaml:"settleDelayMS" validate:"gte=0"`
	WaitReady      bool   `yaml:"waitReady"`
	ReadyTimeoutMS int    `yaml:"readyTimeoutMS" validate:"gte=0"`
	Simulate       bool   `yaml:"simulate"`
}

// EventsConfig contains event log configuration
type EventsConfig struct {
	Capacity int `yaml:"capacity" validate:"gt=0"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	MBTA    MBTAConfig    `yaml:"mbta"`
	GTFSRT  GTFSRTConfig  `yaml:"gtfsrt"`
	Monitor MonitorConfig `yaml:"monitor"`
	Device  DeviceConfig  `yaml:"device"`
	Events  EventsConfig  `yaml:"events"`
}
