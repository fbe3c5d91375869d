package internal

import (
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	ServerURL         string        `env:"SERVER_URL,required=true"`
	PushURL           string        `env:"PUSH_URL"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT,default=10s"`
	RefreshLead       time.Duration `env:"REFRESH_LEAD,default=1m"`
	KeepaliveInterval time.Duration `env:"KEEPALIVE_INTERVAL,default=30s"`
	RefetchOnSend     bool          `env:"REFETCH_ON_SEND,default=false"`
	FrameBuffer       int           `env:"PUSH_FRAME_BUFFER,default=64"`
	StatsInterval     time.Duration `env:"STATS_INTERVAL,default=0s"`
}

// PushBaseURL returns the root of the push endpoint, falling back to the server URL.
func (c Config) PushBaseURL() string {
	if c.PushURL != "" {
		return c.PushURL
	}
	return c.ServerURL
}

// Validate checks the values go-env cannot check on its own.
func (c Config) Validate() error {
	if _, err := url.ParseRequestURI(c.ServerURL); err != nil {
		return fmt.Errorf("SERVER_URL must be an absolute URL, got %q", c.ServerURL)
	}
	if c.RefreshLead <= 0 || c.KeepaliveInterval <= 0 {
		return fmt.Errorf("REFRESH_LEAD and KEEPALIVE_INTERVAL must be positive")
	}
	if c.KeepaliveInterval > c.RefreshLead {
		return fmt.Errorf("KEEPALIVE_INTERVAL (%s) must not exceed REFRESH_LEAD (%s)", c.KeepaliveInterval, c.RefreshLead)
	}
	return nil
}
