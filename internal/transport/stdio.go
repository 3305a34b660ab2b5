// Package transport implements the stdio JSON-lines protocol.
//
// One request per line on stdin:
//
//	{"id":"1","tool":"echo","input":{"hello":"world"}}
//
// Responses are JSON lines on stdout:
//
//	{"id":"1","event":"message","data":<tool stdout line>}
//	{"id":"1","event":"done","data":{"ok":true}}
//	{"id":"1","event":"error","data":{"error":"...","detail":"..."}}
package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/toolgate/toolgate/internal/models"
	"github.com/toolgate/toolgate/internal/services"
)

const (
	scanBufSize = 64 * 1024
	scanBufMax  = 4 * 1024 * 1024
)

// Stdio drives tool invocations from a JSON-lines stream. Requests are
// served one at a time in arrival order; output events for a request are
// never interleaved with another request's.
type Stdio struct {
	inv *services.Invoker
	in  io.Reader
	out io.Writer
	mu  sync.Mutex
}

type stdioRequest struct {
	ID    string          `json:"id,omitempty"`
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input,omitempty"`
}

func NewStdio(inv *services.Invoker) *Stdio {
	return &Stdio{
		inv: inv,
		in:  os.Stdin,
		out: os.Stdout,
	}
}

// Run reads requests until EOF or ctx cancellation. A malformed request
// produces an error event and the loop moves on; only a broken stdin ends
// the loop with an error.
func (t *Stdio) Run(ctx context.Context) error {
	sc := bufio.NewScanner(t.in)
	sc.Buffer(make([]byte, 0, scanBufSize), scanBufMax)

	for sc.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var req stdioRequest
		if err := json.Unmarshal(line, &req); err != nil {
			t.emitError(req.ID, "invalid_json", err.Error())
			continue
		}
		if req.Tool == "" {
			t.emitError(req.ID, "missing_tool", "")
			continue
		}

		t.serve(ctx, req)
	}

	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan stdin: %w", err)
	}
	return nil
}

func (t *Stdio) serve(ctx context.Context, req stdioRequest) {
	inv, err := t.inv.Begin(ctx, services.Request{
		Tool:      req.Tool,
		Input:     req.Input,
		Transport: models.TransportStdio,
		RequestID: req.ID,
	})
	if err != nil {
		t.emitError(req.ID, errorCode(err), err.Error())
		return
	}
	defer inv.Close()

	w := &eventWriter{id: req.ID, emit: t.emit}
	if err := inv.Stream(w); err != nil {
		t.emitError(req.ID, "tool_failed", err.Error())
		return
	}
	_ = t.emit(models.StreamEvent{
		ID:    req.ID,
		Event: models.EventDone,
		Data:  json.RawMessage(`{"ok":true}`),
	})
}

func errorCode(err error) string {
	if errors.Is(err, services.ErrToolBusy) {
		return "tool_busy"
	}
	return "tool_failed"
}

// eventWriter wraps each tool stdout line in a message event.
type eventWriter struct {
	id   string
	emit func(models.StreamEvent) error
}

func (w *eventWriter) WriteLine(line []byte) error {
	return w.emit(models.StreamEvent{
		ID:    w.id,
		Event: models.EventMessage,
		Data:  json.RawMessage(append([]byte(nil), line...)),
	})
}

func (t *Stdio) emitError(id, code, detail string) {
	data, _ := json.Marshal(models.ErrorData{Error: code, Detail: detail})
	_ = t.emit(models.StreamEvent{ID: id, Event: models.EventError, Data: data})
}

// emit writes one event as one line. The mutex keeps lines whole; each
// write reaches the consumer immediately because out is unbuffered.
func (t *Stdio) emit(ev models.StreamEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.out.Write(append(b, '\n'))
	return err
}
