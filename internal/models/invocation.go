package models

import (
	"time"

	"github.com/google/uuid"
)

// Invocation terminal statuses recorded in the audit trail.
const (
	InvocationOK       = "ok"
	InvocationError    = "error"
	InvocationBusy     = "busy"
	InvocationCanceled = "canceled"
)

// Transports an invocation can arrive on.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportWS    = "ws"
)

// InvocationRecord is one audited tool run.
type InvocationRecord struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Tool       string    `json:"tool" db:"tool"`
	Runtime    string    `json:"runtime" db:"runtime"`
	Transport  string    `json:"transport" db:"transport"`
	RequestID  string    `json:"request_id,omitempty" db:"request_id"`
	Status     string    `json:"status" db:"status"`
	Error      string    `json:"error,omitempty" db:"error"`
	DurationMS int64     `json:"duration_ms" db:"duration_ms"`
	LinesOut   int64     `json:"lines_out" db:"lines_out"`
	RemoteAddr string    `json:"remote_addr,omitempty" db:"remote_addr"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
