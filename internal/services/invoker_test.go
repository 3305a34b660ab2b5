package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/models"
	"github.com/toolgate/toolgate/internal/runtime"
)

// The test binary doubles as the tool under test when re-invoked with
// TOOLGATE_TEST_HELPER=1.
func TestMain(m *testing.M) {
	if os.Getenv("TOOLGATE_TEST_HELPER") == "1" {
		toolHelperMain()
		return
	}
	os.Exit(m.Run())
}

func toolHelperMain() {
	if len(os.Args) < 2 {
		os.Exit(2)
	}
	switch os.Args[1] {
	case "reflect":
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			fmt.Println(sc.Text())
		}
	case "blanky":
		fmt.Println("first")
		fmt.Println()
		fmt.Println()
		fmt.Println("second")
	case "hang":
		for {
			time.Sleep(200 * time.Millisecond)
		}
	case "spam":
		for i := 0; ; i++ {
			fmt.Printf("line %d\n", i)
		}
	case "fail":
		fmt.Println("about to fail")
		os.Exit(3)
	default:
		os.Exit(2)
	}
}

type captureRecorder struct {
	mu   sync.Mutex
	recs []models.InvocationRecord
}

func (c *captureRecorder) Record(_ context.Context, rec *models.InvocationRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, *rec)
	return nil
}

func (c *captureRecorder) last(t *testing.T) models.InvocationRecord {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.recs)
	return c.recs[len(c.recs)-1]
}

func (c *captureRecorder) statuses() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.recs))
	for _, r := range c.recs {
		out = append(out, r.Status)
	}
	return out
}

type lineSink struct {
	mu        sync.Mutex
	lines     []string
	failAfter int
}

func (s *lineSink) WriteLine(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.lines) >= s.failAfter {
		return errors.New("consumer gone")
	}
	s.lines = append(s.lines, string(b))
	return nil
}

func (s *lineSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func newTestInvoker(t *testing.T, tools map[string]models.ToolSpec) (*Invoker, *captureRecorder) {
	t.Helper()
	t.Setenv("TOOLGATE_TEST_HELPER", "1")

	cfg := &config.Config{
		WorkspaceRoot: t.TempDir(),
		ToolsRoot:     t.TempDir(),
		Tools:         tools,
	}
	rec := &captureRecorder{}
	log := logrus.New()
	log.SetOutput(io.Discard)
	rts := runtime.NewSet(runtime.Options{
		WorkspaceRoot: cfg.WorkspaceRoot,
		ToolsRoot:     cfg.ToolsRoot,
	}, log)
	return NewInvoker(cfg, rts, rec, log), rec
}

func helperTool(t *testing.T, sub string, mut func(*models.ToolSpec)) models.ToolSpec {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	spec := models.ToolSpec{
		Runtime: models.RuntimeNative,
		Cmd:     exe,
		Args:    []string{sub},
	}
	if mut != nil {
		mut(&spec)
	}
	return spec
}

func TestInvoker_BeginRejectsUnknownTool(t *testing.T) {
	iv, _ := newTestInvoker(t, map[string]models.ToolSpec{
		"echo": helperTool(t, "reflect", nil),
	})

	_, err := iv.Begin(context.Background(), Request{Tool: "nope"})
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = iv.Begin(context.Background(), Request{Tool: "../etc/passwd"})
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestInvoker_BeginRejectsInvalidInput(t *testing.T) {
	iv, _ := newTestInvoker(t, map[string]models.ToolSpec{
		"echo": helperTool(t, "reflect", nil),
	})

	_, err := iv.Begin(context.Background(), Request{
		Tool:  "echo",
		Input: json.RawMessage(`{"broken":`),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestInvoker_RoundTrip(t *testing.T) {
	iv, rec := newTestInvoker(t, map[string]models.ToolSpec{
		"echo": helperTool(t, "reflect", nil),
	})

	inv, err := iv.Begin(context.Background(), Request{
		Tool:      "echo",
		Input:     json.RawMessage(`{"x":1}`),
		Transport: models.TransportStdio,
		RequestID: "r1",
	})
	require.NoError(t, err)

	sink := &lineSink{}
	require.NoError(t, inv.Stream(sink))
	inv.Close()

	assert.Equal(t, []string{`{"x":1}`}, sink.snapshot())

	last := rec.last(t)
	assert.Equal(t, models.InvocationOK, last.Status)
	assert.Equal(t, "echo", last.Tool)
	assert.Equal(t, models.TransportStdio, last.Transport)
	assert.Equal(t, "r1", last.RequestID)
	assert.Equal(t, int64(1), last.LinesOut)
}

func TestInvoker_EmptyInputDefaultsToObject(t *testing.T) {
	iv, _ := newTestInvoker(t, map[string]models.ToolSpec{
		"echo": helperTool(t, "reflect", nil),
	})

	inv, err := iv.Begin(context.Background(), Request{Tool: "echo"})
	require.NoError(t, err)
	defer inv.Close()

	sink := &lineSink{}
	require.NoError(t, inv.Stream(sink))
	assert.Equal(t, []string{`{}`}, sink.snapshot())
}

func TestInvoker_BlankOutputLinesDropped(t *testing.T) {
	iv, _ := newTestInvoker(t, map[string]models.ToolSpec{
		"blanky": helperTool(t, "blanky", nil),
	})

	inv, err := iv.Begin(context.Background(), Request{Tool: "blanky"})
	require.NoError(t, err)
	defer inv.Close()

	sink := &lineSink{}
	require.NoError(t, inv.Stream(sink))
	assert.Equal(t, []string{"first", "second"}, sink.snapshot())
}

func TestInvoker_BusyFailsFast(t *testing.T) {
	iv, rec := newTestInvoker(t, map[string]models.ToolSpec{
		"hog": helperTool(t, "hang", nil), // max_concurrent defaults to 1
	})

	first, err := iv.Begin(context.Background(), Request{Tool: "hog", Transport: models.TransportSSE})
	require.NoError(t, err)

	start := time.Now()
	_, err = iv.Begin(context.Background(), Request{Tool: "hog", Transport: models.TransportSSE})
	require.ErrorIs(t, err, ErrToolBusy)
	assert.Less(t, time.Since(start), time.Second, "busy must not queue")
	assert.Contains(t, rec.statuses(), models.InvocationBusy)

	first.Close()

	second, err := iv.Begin(context.Background(), Request{Tool: "hog"})
	require.NoError(t, err)
	second.Close()
}

func TestInvoker_TimeoutKillsTool(t *testing.T) {
	iv, rec := newTestInvoker(t, map[string]models.ToolSpec{
		"slow": helperTool(t, "hang", func(s *models.ToolSpec) { s.TimeoutMS = 300 }),
	})

	inv, err := iv.Begin(context.Background(), Request{Tool: "slow"})
	require.NoError(t, err)

	start := time.Now()
	err = inv.Stream(&lineSink{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)

	inv.Close()
	assert.Equal(t, models.InvocationError, rec.last(t).Status)
}

func TestInvoker_SinkFailureKillsTool(t *testing.T) {
	iv, _ := newTestInvoker(t, map[string]models.ToolSpec{
		"spam": helperTool(t, "spam", nil),
	})

	inv, err := iv.Begin(context.Background(), Request{Tool: "spam"})
	require.NoError(t, err)
	defer inv.Close()

	sink := &lineSink{failAfter: 3}
	start := time.Now()
	err = inv.Stream(sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write output")
	assert.Less(t, time.Since(start), 3*time.Second, "tool must die with its consumer")
	assert.Len(t, sink.snapshot(), 3)
}

func TestInvoker_ToolFailurePropagates(t *testing.T) {
	iv, rec := newTestInvoker(t, map[string]models.ToolSpec{
		"broken": helperTool(t, "fail", nil),
	})

	inv, err := iv.Begin(context.Background(), Request{Tool: "broken"})
	require.NoError(t, err)

	sink := &lineSink{}
	err = inv.Stream(sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool exited")
	assert.Equal(t, []string{"about to fail"}, sink.snapshot())

	inv.Close()
	assert.Equal(t, models.InvocationError, rec.last(t).Status)
}

func TestInvoker_SetConfigSwapsToolTable(t *testing.T) {
	iv, _ := newTestInvoker(t, map[string]models.ToolSpec{
		"hog": helperTool(t, "hang", nil),
	})

	first, err := iv.Begin(context.Background(), Request{Tool: "hog"})
	require.NoError(t, err)
	defer first.Close()

	_, err = iv.Begin(context.Background(), Request{Tool: "hog"})
	require.ErrorIs(t, err, ErrToolBusy)

	// Raising the limit rebuilds the semaphore on next use.
	iv.SetConfig(&config.Config{
		WorkspaceRoot: "/ws",
		ToolsRoot:     "/tools",
		Tools: map[string]models.ToolSpec{
			"hog": helperTool(t, "hang", func(s *models.ToolSpec) { s.MaxConcurrent = 2 }),
		},
	})

	a, err := iv.Begin(context.Background(), Request{Tool: "hog"})
	require.NoError(t, err)
	defer a.Close()
	b, err := iv.Begin(context.Background(), Request{Tool: "hog"})
	require.NoError(t, err)
	defer b.Close()

	// Dropped tools disappear from lookup.
	iv.SetConfig(&config.Config{
		WorkspaceRoot: "/ws",
		ToolsRoot:     "/tools",
		Tools: map[string]models.ToolSpec{
			"other": helperTool(t, "reflect", nil),
		},
	})
	_, err = iv.Begin(context.Background(), Request{Tool: "hog"})
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestInvoker_ReadySkipsDockerForNativeOnly(t *testing.T) {
	iv, _ := newTestInvoker(t, map[string]models.ToolSpec{
		"echo": helperTool(t, "reflect", nil),
	})
	assert.NoError(t, iv.Ready(context.Background()))
}

func TestInvoker_ToolsListing(t *testing.T) {
	iv, _ := newTestInvoker(t, map[string]models.ToolSpec{
		"echo": helperTool(t, "reflect", func(s *models.ToolSpec) { s.TimeoutMS = 1000 }),
	})

	tools := iv.Tools()
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, 1000, tools[0].TimeoutMS)
	assert.Equal(t, models.DefaultMaxConcurrent, tools[0].MaxConcurrent)
}
