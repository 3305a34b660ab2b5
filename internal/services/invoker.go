package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/models"
	"github.com/toolgate/toolgate/internal/runtime"
	"github.com/toolgate/toolgate/internal/sandbox"
)

// Invocation lifecycle errors. Transports map these onto their own wire
// shapes: HTTP status codes, stdio error events.
var (
	ErrUnknownTool  = errors.New("unknown tool")
	ErrInvalidInput = errors.New("invalid input json")
	ErrToolBusy     = errors.New("tool is busy")
)

// Scanner limits for tool stdout: a generous initial buffer and a hard cap
// so a runaway tool cannot balloon gateway memory.
const (
	scanBufSize = 64 * 1024
	scanBufMax  = 4 * 1024 * 1024
)

// Sink receives one output line at a time. Implementations flush before
// returning when their transport needs per-line delivery.
type Sink interface {
	WriteLine([]byte) error
}

// Request is one tool invocation as a transport hands it over.
type Request struct {
	Tool      string
	Input     json.RawMessage
	Transport string
	RequestID string
	Remote    string
}

// Invoker owns tool execution: lookup, concurrency limits, timeouts,
// spawning and the audit trail. Transports only shuttle bytes.
type Invoker struct {
	log *logrus.Logger
	rts *runtime.Set
	rec recorder

	cfg atomic.Pointer[config.Config]

	semMu sync.Mutex
	sems  map[string]*semaphore
}

// recorder is the slice of audit.Recorder the invoker needs.
type recorder interface {
	Record(ctx context.Context, rec *models.InvocationRecord) error
}

func NewInvoker(cfg *config.Config, rts *runtime.Set, rec recorder, log *logrus.Logger) *Invoker {
	iv := &Invoker{
		log:  log,
		rts:  rts,
		rec:  rec,
		sems: make(map[string]*semaphore),
	}
	iv.cfg.Store(cfg)
	return iv
}

// SetConfig swaps the active tool table. A tool's semaphore keeps its state
// across reloads unless its concurrency limit changed.
func (iv *Invoker) SetConfig(cfg *config.Config) {
	iv.cfg.Store(cfg)

	iv.semMu.Lock()
	defer iv.semMu.Unlock()
	for name, sem := range iv.sems {
		spec, ok := cfg.Tools[name]
		if !ok || spec.MaxConc() != sem.size {
			delete(iv.sems, name)
		}
	}
}

// Tools lists the configured tools with effective limits.
func (iv *Invoker) Tools() []models.ToolInfo {
	return iv.cfg.Load().ToolInfos()
}

// Lookup returns the spec for a tool name.
func (iv *Invoker) Lookup(name string) (models.ToolSpec, bool) {
	spec, ok := iv.cfg.Load().Tools[name]
	return spec, ok
}

// Ready reports whether every configured runtime can serve. The Docker
// daemon is only probed when a container tool is configured.
func (iv *Invoker) Ready(ctx context.Context) error {
	for _, spec := range iv.cfg.Load().Tools {
		if spec.Runtime == models.RuntimeContainer {
			return iv.rts.Ready(ctx)
		}
	}
	return nil
}

type semaphore struct {
	slots chan struct{}
	size  int
}

func (iv *Invoker) semaphoreFor(name string, spec models.ToolSpec) *semaphore {
	iv.semMu.Lock()
	defer iv.semMu.Unlock()

	if sem, ok := iv.sems[name]; ok {
		return sem
	}
	sem := &semaphore{
		slots: make(chan struct{}, spec.MaxConc()),
		size:  spec.MaxConc(),
	}
	iv.sems[name] = sem
	return sem
}

// tryAcquire is fail-fast: a full semaphore means busy, never a queue.
func (sem *semaphore) tryAcquire() bool {
	select {
	case sem.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (sem *semaphore) release() {
	select {
	case <-sem.slots:
	default:
	}
}

// Begin runs every check that must fail before any output byte is produced:
// name validation, lookup, input validation, the concurrency slot and the
// spawn itself. The caller must Close the returned Invocation.
func (iv *Invoker) Begin(ctx context.Context, req Request) (*Invocation, error) {
	if err := sandbox.ValidateToolName(req.Tool); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownTool, err)
	}
	spec, ok := iv.Lookup(req.Tool)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, req.Tool)
	}

	input := req.Input
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	if !json.Valid(input) {
		return nil, ErrInvalidInput
	}

	log := iv.log.WithFields(logrus.Fields{
		"tool":       req.Tool,
		"runtime":    spec.Runtime,
		"transport":  req.Transport,
		"request_id": req.RequestID,
	})

	sem := iv.semaphoreFor(req.Tool, spec)
	if !sem.tryAcquire() {
		log.WithField("max_concurrent", spec.MaxConc()).Warn("tool concurrency limit reached")
		iv.record(&models.InvocationRecord{
			Tool:       req.Tool,
			Runtime:    spec.Runtime,
			Transport:  req.Transport,
			RequestID:  req.RequestID,
			Status:     models.InvocationBusy,
			RemoteAddr: req.Remote,
		})
		return nil, ErrToolBusy
	}

	rt, err := iv.rts.For(spec)
	if err != nil {
		sem.release()
		return nil, err
	}

	// Every run has a deadline; there is no unlimited tool.
	tctx, cancel := context.WithTimeout(ctx, spec.Timeout())

	proc, err := rt.Spawn(tctx, req.Tool, spec)
	if err != nil {
		cancel()
		sem.release()
		return nil, fmt.Errorf("spawn %s: %w", req.Tool, err)
	}

	inv := &Invocation{
		id:      uuid.New(),
		tool:    req.Tool,
		spec:    spec,
		req:     req,
		proc:    proc,
		ctx:     tctx,
		cancel:  cancel,
		sem:     sem,
		iv:      iv,
		log:     log,
		started: time.Now(),
		done:    make(chan struct{}),
	}

	// Kill on timeout or cancel even while nobody is reading, so a blocked
	// stdin write can never wedge the gateway.
	go func() {
		select {
		case <-tctx.Done():
			proc.Kill()
		case <-inv.done:
		}
	}()

	log.WithFields(logrus.Fields{
		"mode":           spec.Mode,
		"max_concurrent": spec.MaxConc(),
	}).Info("tool execution started")

	if err := writeLineAndClose(proc.Stdin(), input); err != nil {
		werr := fmt.Errorf("write stdin: %w", err)
		inv.abort(werr)
		return nil, werr
	}

	return inv, nil
}

func (iv *Invoker) record(rec *models.InvocationRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := iv.rec.Record(ctx, rec); err != nil {
		iv.log.WithError(err).Warn("audit record failed")
	}
}

// writeLineAndClose sends the single input line and closes stdin so the
// tool sees EOF after one request.
func writeLineAndClose(w io.WriteCloser, b []byte) error {
	if b[len(b)-1] != '\n' {
		b = append(b, '\n')
	}
	if _, err := w.Write(b); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Invocation is one running tool instance. Stream may be called once;
// Close is idempotent and must always be called.
type Invocation struct {
	id      uuid.UUID
	tool    string
	spec    models.ToolSpec
	req     Request
	proc    runtime.Process
	ctx     context.Context
	cancel  context.CancelFunc
	sem     *semaphore
	iv      *Invoker
	log     *logrus.Entry
	started time.Time
	done    chan struct{}

	lines     int64
	streamed  bool
	streamErr error
	closeOnce sync.Once
}

// ID is the audit identity of this invocation.
func (inv *Invocation) ID() uuid.UUID { return inv.id }

// Tool is the configured name the invocation runs under.
func (inv *Invocation) Tool() string { return inv.tool }

// Runtime reports which runtime executes the tool.
func (inv *Invocation) Runtime() string { return inv.spec.Runtime }

// Timeout is the effective deadline applied to this run.
func (inv *Invocation) Timeout() time.Duration { return inv.spec.Timeout() }

// Stream pumps tool stdout into sink line by line until EOF, the deadline,
// or a sink failure. Blank lines are dropped. When the sink fails the tool
// is killed too; a consumer that went away must not leave work running.
func (inv *Invocation) Stream(sink Sink) error {
	inv.streamed = true
	inv.streamErr = inv.stream(sink)
	return inv.streamErr
}

func (inv *Invocation) stream(sink Sink) error {
	sc := bufio.NewScanner(inv.proc.Stdout())
	sc.Buffer(make([]byte, 0, scanBufSize), scanBufMax)

	for sc.Scan() {
		select {
		case <-inv.ctx.Done():
			return inv.ctx.Err()
		default:
		}

		line := append([]byte(nil), sc.Bytes()...)
		if len(line) == 0 {
			continue
		}
		if err := sink.WriteLine(line); err != nil {
			inv.cancel()
			return fmt.Errorf("write output: %w", err)
		}
		inv.lines++
	}

	// A kill mid-read surfaces as a scanner error; report it as the
	// deadline or cancellation it really was.
	if err := sc.Err(); err != nil {
		if cerr := inv.ctx.Err(); cerr != nil {
			return cerr
		}
		return fmt.Errorf("read stdout: %w", err)
	}
	if err := inv.proc.Wait(); err != nil {
		if cerr := inv.ctx.Err(); cerr != nil {
			return cerr
		}
		return fmt.Errorf("tool exited: %w", err)
	}
	return nil
}

// abort records err as the invocation outcome and closes.
func (inv *Invocation) abort(err error) {
	inv.streamed = true
	inv.streamErr = err
	inv.Close()
}

// Close releases the invocation: the process is killed if still running,
// the concurrency slot freed, and the audit record written.
func (inv *Invocation) Close() {
	inv.closeOnce.Do(func() {
		close(inv.done)
		inv.cancel()
		inv.proc.Kill()
		inv.sem.release()

		status, errMsg := inv.outcome()
		duration := time.Since(inv.started)

		entry := inv.log.WithFields(logrus.Fields{
			"duration_ms": duration.Milliseconds(),
			"lines_out":   inv.lines,
		})
		switch status {
		case models.InvocationOK:
			entry.Info("tool execution completed")
		case models.InvocationCanceled:
			entry.WithField("error", errMsg).Warn("tool execution canceled")
		default:
			entry.WithField("error", errMsg).Error("tool execution failed")
		}

		inv.iv.record(&models.InvocationRecord{
			ID:         inv.id,
			Tool:       inv.tool,
			Runtime:    inv.spec.Runtime,
			Transport:  inv.req.Transport,
			RequestID:  inv.req.RequestID,
			Status:     status,
			Error:      errMsg,
			DurationMS: duration.Milliseconds(),
			LinesOut:   inv.lines,
			RemoteAddr: inv.req.Remote,
		})
	})
}

func (inv *Invocation) outcome() (status, errMsg string) {
	switch {
	case !inv.streamed:
		return models.InvocationCanceled, "closed before streaming"
	case inv.streamErr == nil:
		return models.InvocationOK, ""
	case errors.Is(inv.streamErr, context.Canceled):
		return models.InvocationCanceled, inv.streamErr.Error()
	default:
		return models.InvocationError, inv.streamErr.Error()
	}
}
