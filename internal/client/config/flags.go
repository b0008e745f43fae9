package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/elecmate/certsync/internal/flagx"
)

var knownFlags = []string{"-a", "-i", "-d", "-t", "-db", "-l", "-log-level"}

// parseFlags populates Config fields from command-line flags.
//
//	-a string          address and port of the backend server
//	-i int             online check interval (seconds)
//	-d duration        debounce window, e.g. 600ms
//	-t duration        cloud push timeout
//	-db string         path to the local database
//	-l string          log file
//	-log-level string  debug, info, warn or error
//
// Only the flags above are picked out of args, so other layers keep theirs.
func parseFlags(cfg *Config, args []string) error {
	filtered := flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	interval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.DurationVar(&cfg.DebounceWindow, "d", cfg.DebounceWindow, "quiet period before saving an edit")
	fs.DurationVar(&cfg.PushTimeout, "t", cfg.PushTimeout, "cloud push timeout")
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "path to the local database")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")

	if err := fs.Parse(filtered); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if *interval <= 0 {
		return fmt.Errorf("online check interval must be positive, got %d", *interval)
	}
	cfg.OnlineCheckInterval = time.Duration(*interval) * time.Second
	return nil
}
