package models

import (
	"encoding/json"
	"time"
)

// Tool runtimes supported by the gateway.
const (
	RuntimeNative    = "native"
	RuntimeContainer = "container"
)

// Tool execution modes. Daemon mode is reserved for long-lived tool servers.
const (
	ModeLauncher = "launcher"
	ModeDaemon   = "daemon"
)

const (
	// DefaultToolTimeout applies when a tool does not set timeout_ms.
	// No tool ever runs without a deadline.
	DefaultToolTimeout = 30 * time.Second

	// DefaultMaxConcurrent is deliberately conservative: a launcher tool
	// forks one process per request.
	DefaultMaxConcurrent = 1

	// MaxAllowedConcurrent caps configs that would otherwise allow a
	// request burst to fork-bomb the host.
	MaxAllowedConcurrent = 32
)

// ToolSpec is the configured definition of a tool the gateway can launch.
type ToolSpec struct {
	Runtime string   `mapstructure:"runtime" json:"runtime"`
	Mode    string   `mapstructure:"mode" json:"mode,omitempty"`
	Cmd     string   `mapstructure:"cmd" json:"cmd,omitempty"`
	Args    []string `mapstructure:"args" json:"args,omitempty"`
	Image   string   `mapstructure:"image" json:"image,omitempty"`

	Env map[string]string `mapstructure:"env" json:"env,omitempty"`

	TimeoutMS     int `mapstructure:"timeout_ms" json:"timeout_ms,omitempty"`
	MaxConcurrent int `mapstructure:"max_concurrent" json:"max_concurrent,omitempty"`
}

// Timeout returns the effective deadline for one invocation of the tool.
func (t ToolSpec) Timeout() time.Duration {
	if t.TimeoutMS <= 0 {
		return DefaultToolTimeout
	}
	return time.Duration(t.TimeoutMS) * time.Millisecond
}

// MaxConc returns the effective concurrency limit for the tool.
func (t ToolSpec) MaxConc() int {
	if t.MaxConcurrent <= 0 {
		return DefaultMaxConcurrent
	}
	return t.MaxConcurrent
}

// ToolInfo is the public listing shape returned by the tools endpoints.
type ToolInfo struct {
	Name          string `json:"name"`
	Runtime       string `json:"runtime"`
	Mode          string `json:"mode,omitempty"`
	TimeoutMS     int    `json:"timeout_ms"`
	MaxConcurrent int    `json:"max_concurrent"`
}

// Stream event kinds shared by the stdio and WebSocket transports.
const (
	EventMessage = "message"
	EventDone    = "done"
	EventError   = "error"
)

// StreamEvent is one line of the stdio protocol and one WebSocket message:
// a tool stdout line (message), a completion marker (done) or an error.
type StreamEvent struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorData is the payload of an error StreamEvent.
type ErrorData struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
