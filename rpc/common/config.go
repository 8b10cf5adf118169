package common

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultPort          = 8000
	DefaultMaxLineBytes  = 16 * 1024 * 1024 // 16 MB
	DefaultWebSocketPath = "/ws"
	DefaultMetricsPath   = "/metrics"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters for a netlevel server.
type ServerConfig struct {
	// Listener settings
	Transport string // "tcp" or "unix"
	Host      string
	Port      int
	Endpoint  string // socket path for the unix transport, overrides Host/Port for tcp

	// Optional WebSocket bridge (also serves /metrics)
	WebSocketEndpoint string
	WebSocketPath     string

	// Storage
	DataDir string
	NoSync  bool // skip fsync on writes

	// Seed account, created or reset with all permissions on startup
	SeedUser     string
	SeedPass     string
	SeedPassHash string

	// Behaviour
	Debug                     bool
	AllowSelfPermissionChange bool
	TimeoutSecond             int64
	MaxLineBytes              int
	HashCost                  int

	// Logging configuration
	LogLevel string
}

// ListenAddress returns the address the line transport listens on
func (c *ServerConfig) ListenAddress() string {
	if c.Transport == "unix" || c.Endpoint != "" {
		return c.Endpoint
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// LineLimit returns the maximum accepted request line size in bytes
func (c *ServerConfig) LineLimit() int {
	if c.MaxLineBytes <= 0 {
		return DefaultMaxLineBytes
	}
	return c.MaxLineBytes
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Listener settings
	addSection("Listener")
	addField("Transport", c.Transport)
	addField("Address", c.ListenAddress())
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Max Line", fmt.Sprintf("%d bytes", c.LineLimit()))
	if c.WebSocketEndpoint != "" {
		addField("WebSocket", c.WebSocketEndpoint+c.WebSocketPath)
	}

	// Storage
	addSection("Storage")
	addField("Data Directory", c.DataDir)
	addField("No Sync", fmt.Sprintf("%t", c.NoSync))

	// Accounts
	addSection("Accounts")
	if c.SeedUser != "" {
		addField("Seed User", c.SeedUser)
	} else {
		addField("Seed User", "-")
	}
	addField("Self Perm Change", fmt.Sprintf("%t", c.AllowSelfPermissionChange))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)
	addField("Debug", fmt.Sprintf("%t", c.Debug))

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoint      string
	TimeoutSecond int
	RetryCount    int
	MaxLineBytes  int
}

// LineLimit returns the maximum accepted response line size in bytes
func (c *ClientConfig) LineLimit() int {
	if c.MaxLineBytes <= 0 {
		return DefaultMaxLineBytes
	}
	return c.MaxLineBytes
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))

	return sb.String()
}
