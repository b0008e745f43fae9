package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/elecmate/certsync/internal/flagx"
	"github.com/elecmate/certsync/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations are either strings
// like "600ms" or integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	DebounceWindow      timex.Duration `json:"debounce_window"`
	PushTimeout         timex.Duration `json:"push_timeout"`
	DatabasePath        string         `json:"database_path"`
	LogFile             string         `json:"log_file"`
	LogLevel            string         `json:"log_level"`
}

// parseJSON overlays cfg with the fields set in the JSON file named by -c or
// -config. Without either flag nothing happens.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	setString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.LogFile, jc.LogFile)
	setString(&cfg.LogLevel, jc.LogLevel)
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.DebounceWindow.Duration > 0 {
		cfg.DebounceWindow = jc.DebounceWindow.Duration
	}
	if jc.PushTimeout.Duration > 0 {
		cfg.PushTimeout = jc.PushTimeout.Duration
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
