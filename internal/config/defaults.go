package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAPITimeout       = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultRateLimit        = 5.0
	DefaultRateBurst        = 10
	DefaultAuthEndpoint     = "/broadcasting/auth"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultActivityTimeout  = 30 * time.Second
	DefaultPingTimeout      = 120 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultRetryBaseDelay   = 1 * time.Second
	DefaultRetryMaxDelay    = 60 * time.Second
	DefaultPollInterval     = 30 * time.Second
	DefaultPollTimeout      = 10 * time.Second
	DefaultActiveStatus     = "pending"
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	// API defaults
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RateLimit == 0 {
		c.API.RateLimit = DefaultRateLimit
	}
	if c.API.RateBurst == 0 {
		c.API.RateBurst = DefaultRateBurst
	}

	// Realtime defaults
	if c.Realtime.AuthEndpoint == "" {
		c.Realtime.AuthEndpoint = DefaultAuthEndpoint
	}
	if c.Realtime.HandshakeTimeout == 0 {
		c.Realtime.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Realtime.ActivityTimeout == 0 {
		c.Realtime.ActivityTimeout = DefaultActivityTimeout
	}
	if c.Realtime.PingTimeout == 0 {
		c.Realtime.PingTimeout = DefaultPingTimeout
	}
	if c.Realtime.WriteTimeout == 0 {
		c.Realtime.WriteTimeout = DefaultWriteTimeout
	}
	if c.Realtime.RetryBaseDelay == 0 {
		c.Realtime.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.Realtime.RetryMaxDelay == 0 {
		c.Realtime.RetryMaxDelay = DefaultRetryMaxDelay
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}

	if c.Watchers.ActiveStatus == "" {
		c.Watchers.ActiveStatus = DefaultActiveStatus
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
