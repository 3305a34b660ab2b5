package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/toolgate/toolgate/internal/models"
	"github.com/toolgate/toolgate/internal/services"
)

// InvokeWS relays one tool run over a websocket. The first client
// message is the input payload; every tool stdout line comes back as a
// message event, then done (or a single error) and the connection
// closes. A write failure means the client left, which kills the tool.
func InvokeWS(svc *services.Services, log *logrus.Logger) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		defer conn.Close()

		rid, _ := conn.Locals("request_id").(string)

		var input json.RawMessage
		if err := conn.ReadJSON(&input); err != nil {
			log.WithError(err).Debug("ws input not readable")
			_ = conn.WriteJSON(errorEvent(rid, "invalid_json", err.Error()))
			return
		}

		inv, err := svc.Invoker.Begin(context.Background(), services.Request{
			Tool:      conn.Params("tool"),
			Input:     input,
			Transport: models.TransportWS,
			RequestID: rid,
			Remote:    conn.RemoteAddr().String(),
		})
		if err != nil {
			_ = conn.WriteJSON(errorEvent(rid, wsErrorCode(err), err.Error()))
			return
		}
		defer inv.Close()

		if err := inv.Stream(&wsSink{conn: conn, id: rid}); err != nil {
			_ = conn.WriteJSON(errorEvent(rid, "tool_failed", err.Error()))
			return
		}
		_ = conn.WriteJSON(models.StreamEvent{
			ID:    rid,
			Event: models.EventDone,
			Data:  json.RawMessage(`{"ok":true}`),
		})
	}
}

func wsErrorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrToolBusy):
		return "tool_busy"
	case errors.Is(err, services.ErrInvalidInput):
		return "invalid_json"
	default:
		return "tool_failed"
	}
}

type wsSink struct {
	conn *websocket.Conn
	id   string
}

func (s *wsSink) WriteLine(line []byte) error {
	return s.conn.WriteJSON(models.StreamEvent{
		ID:    s.id,
		Event: models.EventMessage,
		Data:  json.RawMessage(append([]byte(nil), line...)),
	})
}

func errorEvent(id, code, detail string) models.StreamEvent {
	data, _ := json.Marshal(models.ErrorData{Error: code, Detail: detail})
	return models.StreamEvent{ID: id, Event: models.EventError, Data: data}
}
