package config

import "time"

// Config is the root configuration for a fundsync process.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Poller   PollerConfig   `yaml:"poller"`
	Watchers WatchersConfig `yaml:"watchers"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// APIConfig holds dashboard backend REST settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`      // Bearer token; takes precedence over TokenPath
	TokenPath  string        `yaml:"token_path"` // File holding the bearer token
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RateLimit  float64       `yaml:"rate_limit"` // Requests per second
	RateBurst  int           `yaml:"rate_burst"`
}

// RealtimeConfig holds the event-stream connection settings.
type RealtimeConfig struct {
	WSURL            string        `yaml:"ws_url"`        // e.g. wss://ws.example.com
	AppKey           string        `yaml:"app_key"`       // Broadcasting application key
	AuthEndpoint     string        `yaml:"auth_endpoint"` // Private-channel auth path on the API
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ActivityTimeout  time.Duration `yaml:"activity_timeout"` // Idle time before the client pings
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`
	Disabled         bool          `yaml:"disabled"` // Run on polling only
}

// PollerConfig holds the fallback current-user poller settings.
type PollerConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// WatchersConfig holds change-detection watcher settings.
type WatchersConfig struct {
	ActiveStatus string `yaml:"active_status"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
