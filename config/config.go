package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config carries everything the server needs, populated from CHATD_*
// environment variables.
type Config struct {
	// Addr is the TCP listen address for client connections.
	Addr string `env:"CHATD_ADDR, default=:8888"`

	// DBPath is the SQLite database file.
	DBPath string `env:"CHATD_DB_PATH, default=chatd.db"`

	// MaxClients caps concurrent connections; extra connections are
	// closed immediately after accept.
	MaxClients int `env:"CHATD_MAX_CLIENTS, default=100"`

	// ReadTimeout is the per-read deadline on client sockets. A timeout
	// does not drop the connection, it just lets the read loop spin.
	ReadTimeout time.Duration `env:"CHATD_READ_TIMEOUT, default=30s"`

	// WriteTimeout bounds a single response or push write.
	WriteTimeout time.Duration `env:"CHATD_WRITE_TIMEOUT, default=10s"`

	// MetricsAddr serves Prometheus metrics over HTTP. Empty disables it.
	MetricsAddr string `env:"CHATD_METRICS_ADDR, default=:9100"`

	// ControlSocket is a unix socket accepting stats and shutdown
	// commands. Empty disables it.
	ControlSocket string `env:"CHATD_CONTROL_SOCKET, default=/tmp/chatd.sock"`

	LogLevel string `env:"CHATD_LOG_LEVEL, default=info"`
}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
