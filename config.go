package tarantool

import (
	"fmt"
	"log/slog"
	"net"
	"time"
)

// Config holds configuration for a client connection.
type Config struct {
	// Host and Port identify the endpoint.
	Host string
	Port int

	// User and Password are optional credentials. An empty User skips
	// the authentication step of the handshake.
	User     string
	Password string

	// Spaces is an optional pre-built schema. When set, discovery
	// against the server's metadata spaces is bypassed entirely.
	Spaces *Spaces

	// ReconnectPeriod is the delay between reconnect attempts after the
	// connection breaks. Zero disables reconnecting.
	ReconnectPeriod time.Duration

	// ReconnectAlways schedules reconnect attempts even when the
	// initial connect fails.
	ReconnectAlways bool

	// ConnectTimeout bounds a single connect attempt.
	// Defaults to 10 seconds.
	ConnectTimeout time.Duration

	// ConnectAttempts is the number of initial connect attempts before
	// Connect gives up. Defaults to 1.
	ConnectAttempts int

	// RequestTimeout is the default per-request deadline.
	// Zero means no deadline.
	RequestTimeout time.Duration

	// MaxPendingRequests caps the pending-request table. Sends beyond
	// the cap fail with ErrTooManyPending. Defaults to 1024.
	// Negative means unbounded.
	MaxPendingRequests int

	// DefaultFieldType applies to tuple fields past the prefix declared
	// by a space's format. Defaults to FieldStr.
	DefaultFieldType FieldType

	// OnConnected is called after the handshake completes, on every
	// successful connect including reconnects.
	OnConnected func()

	// OnDisconnected is called when an established connection is lost
	// or closed, with the cause.
	OnDisconnected func(error)

	// Logger receives connection lifecycle and dispatch diagnostics.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	// Dialer is the net.Dialer used to create connections.
	// If nil, the default net.Dialer is used.
	Dialer *net.Dialer
}

// Addr returns the endpoint in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

func (c *Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("tarantool: config: host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("tarantool: config: invalid port %d", c.Port)
	}
	return nil
}

// withDefaults returns a copy with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ConnectAttempts == 0 {
		c.ConnectAttempts = 1
	}
	if c.MaxPendingRequests == 0 {
		c.MaxPendingRequests = 1024
	}
	if c.DefaultFieldType == "" {
		c.DefaultFieldType = FieldStr
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{}
	}
	return c
}
