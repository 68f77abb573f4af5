package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/campuslink/realtime/internal/connection"
)

// eventLine is the --json shape of an event.
type eventLine struct {
	Kind    string              `json:"kind"`
	Status  connection.Status   `json:"status"`
	Error   string              `json:"error,omitempty"`
	Message *connection.Message `json:"message,omitempty"`
	At      string              `json:"at"`
}

// formatEvent renders ev as one human-readable line.
func formatEvent(ev connection.Event) string {
	ts := ev.At.Local().Format("15:04:05")

	if ev.Kind == connection.EventStatus {
		if ev.Err != "" {
			return fmt.Sprintf("[%s] status %s: %s", ts, ev.Status, ev.Err)
		}
		return fmt.Sprintf("[%s] status %s", ts, ev.Status)
	}

	msg := ev.Message
	target := msg.Type
	if msg.ChatID != nil {
		target = fmt.Sprintf("%s #%d", msg.Type, *msg.ChatID)
	}
	body := msg.Content
	if body == "" && len(msg.Data) > 0 {
		body = string(msg.Data)
	}
	return fmt.Sprintf("[%s] %s: %s", ts, target, body)
}

func writeEvent(w io.Writer, ev connection.Event, asJSON bool) error {
	if !asJSON {
		_, err := fmt.Fprintln(w, formatEvent(ev))
		return err
	}

	line := eventLine{
		Kind:   ev.Kind.String(),
		Status: ev.Status,
		Error:  ev.Err,
		At:     ev.At.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if ev.Kind == connection.EventMessage {
		msg := ev.Message
		line.Message = &msg
	}
	return json.NewEncoder(w).Encode(line)
}
