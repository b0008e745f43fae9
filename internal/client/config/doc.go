// Package config loads runtime configuration for the certsync client.
//
// Sources, later ones winning:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags (see parseFlags).
//
// Example JSON:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "online_check_interval": "3s",
//	  "debounce_window": "600ms",
//	  "push_timeout": "10s",
//	  "database_path": "certsync.db",
//	  "log_file": "certsync.log",
//	  "log_level": "info"
//	}
package config
