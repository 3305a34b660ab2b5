package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/toolgate/toolgate/internal/api/middleware"
	"github.com/toolgate/toolgate/internal/models"
	"github.com/toolgate/toolgate/internal/sandbox"
	"github.com/toolgate/toolgate/internal/services"
)

// InvokeSSE relays one tool run as an SSE stream. Every precondition is
// checked before the first stream byte so failures map to real HTTP
// status codes; once streaming has started an error becomes a single
// error event instead.
func InvokeSSE(svc *services.Services, log *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		mediaType, _, err := mime.ParseMediaType(c.Get(fiber.HeaderContentType))
		if err != nil || mediaType != fiber.MIMEApplicationJSON {
			return fiber.NewError(fiber.StatusUnsupportedMediaType, "content type must be application/json")
		}

		tool := c.Params("tool")
		if err := sandbox.ValidateToolName(tool); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid tool name")
		}

		// The body buffer is fasthttp-owned and recycled after the handler
		// returns; the invocation keeps its own copy.
		input := append([]byte(nil), bytes.TrimSpace(c.Body())...)

		inv, err := svc.Invoker.Begin(context.Background(), services.Request{
			Tool:      tool,
			Input:     input,
			Transport: models.TransportSSE,
			RequestID: middleware.GetRequestID(c),
			Remote:    c.IP(),
		})
		if err != nil {
			return beginError(c, err)
		}

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")
		c.Set("X-Toolgate-Tool", inv.Tool())
		c.Set("X-Toolgate-Runtime", inv.Runtime())
		c.Set("X-Toolgate-Timeout", inv.Timeout().String())

		// c must not be touched inside the stream writer; fiber recycles
		// the context once this handler returns.
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer inv.Close()

			sink := &sseSink{w: w}
			if err := inv.Stream(sink); err != nil {
				if sink.dead {
					// Client is gone, nobody left to tell.
					log.WithField("tool", inv.Tool()).Debug("sse client disconnected")
					return
				}
				detail := err.Error()
				if errors.Is(err, context.DeadlineExceeded) {
					detail = "tool timed out"
				}
				writeSSEJSON(w, models.EventError, models.ErrorData{Error: "tool_failed", Detail: detail})
				_ = w.Flush()
			}
		})
		return nil
	}
}

// beginError maps invoker preflight failures onto HTTP statuses.
func beginError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrUnknownTool):
		return fiber.NewError(fiber.StatusNotFound, "unknown tool")
	case errors.Is(err, services.ErrInvalidInput):
		return fiber.NewError(fiber.StatusBadRequest, "body must be valid JSON")
	case errors.Is(err, services.ErrToolBusy):
		c.Set(fiber.HeaderRetryAfter, "1")
		return fiber.NewError(fiber.StatusTooManyRequests, "tool busy")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

// sseSink turns tool stdout lines into flushed message events. dead is
// set once the client connection fails so no further event is attempted.
type sseSink struct {
	w    *bufio.Writer
	dead bool
}

func (s *sseSink) WriteLine(line []byte) error {
	if err := writeSSE(s.w, models.EventMessage, line); err != nil {
		s.dead = true
		return err
	}
	if err := s.w.Flush(); err != nil {
		s.dead = true
		return err
	}
	return nil
}

func writeSSE(w *bufio.Writer, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", bytes.TrimSpace(data))
	return err
}

func writeSSEJSON(w *bufio.Writer, event string, payload any) {
	data, _ := json.Marshal(payload)
	_ = writeSSE(w, event, data)
}
