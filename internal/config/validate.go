package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		return fmt.Errorf("api.base_url is not a valid URL: %q", c.API.BaseURL)
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.API.RateLimit < 0 {
		return errors.New("api.rate_limit must be >= 0")
	}
	if c.API.RateBurst < 1 {
		return errors.New("api.rate_burst must be >= 1")
	}

	if !c.Realtime.Disabled {
		if c.Realtime.WSURL == "" {
			return errors.New("realtime.ws_url is required")
		}
		u, err := url.Parse(c.Realtime.WSURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("realtime.ws_url must be a ws:// or wss:// URL, got %q", c.Realtime.WSURL)
		}
		if c.Realtime.AppKey == "" {
			return errors.New("realtime.app_key is required")
		}
		if c.Realtime.ActivityTimeout >= c.Realtime.PingTimeout {
			return fmt.Errorf("realtime.activity_timeout (%s) must be less than ping_timeout (%s)",
				c.Realtime.ActivityTimeout, c.Realtime.PingTimeout)
		}
		if c.Realtime.RetryBaseDelay > c.Realtime.RetryMaxDelay {
			return fmt.Errorf("realtime.retry_base_delay (%s) cannot exceed retry_max_delay (%s)",
				c.Realtime.RetryBaseDelay, c.Realtime.RetryMaxDelay)
		}
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be > 0")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}
