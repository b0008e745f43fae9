package config

import "time"

// Config holds runtime settings for the certsync client.
type Config struct {
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration
	// DebounceWindow is the quiet period after the last edit before a
	// save-and-sync cycle starts.
	DebounceWindow time.Duration
	// PushTimeout bounds a single cloud push or pull.
	PushTimeout  time.Duration
	DatabasePath string
	LogFile      string
	LogLevel     string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.DebounceWindow = 600 * time.Millisecond
	c.PushTimeout = 10 * time.Second
	c.DatabasePath = "certsync.db"
	c.LogFile = "certsync.log"
	c.LogLevel = "info"
}

// LoadConfig applies defaults, then the JSON file named by -c/-config, then
// command-line flags. Later sources take precedence over earlier ones.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
