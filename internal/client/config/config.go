package config

import "time"

// Config holds runtime settings for the chat CLI.
//
// ServerURL is the base URL of the chat server's HTTP API; the realtime
// connection is derived from it. ConversationID selects where typed lines
// are sent; zero means read-only.
type Config struct {
	ServerURL      string
	UserName       string
	ConversationID int64
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:3000"
	c.UserName = ""
	c.ConversationID = 0
	c.RequestTimeout = 10 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
