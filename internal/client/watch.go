package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/JaimeStill/attest/internal/events"
)

const maxEventSize = 16 << 20

// Event is one decoded message from the event stream.
type Event struct {
	ID      string
	Type    string
	Payload events.Payload
}

// Watch streams workflow events to fn until ctx ends, the server closes the
// stream, or fn returns an error. A context cancellation returns nil.
func (c *Client) Watch(ctx context.Context, fn func(Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives any request timeout on the configured client.
	hc := *c.httpClient
	hc.Timeout = 0

	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("open event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)

	var ev Event
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			if err := decodeEvent(&ev, data.String()); err != nil {
				return err
			}
			if err := fn(ev); err != nil {
				return err
			}
			ev = Event{}
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			ev.ID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(line, "data: "))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

func decodeEvent(ev *Event, data string) error {
	var ce cloudevents.Event
	if err := json.Unmarshal([]byte(data), &ce); err != nil {
		return fmt.Errorf("decode cloudevent: %w", err)
	}
	if err := ce.DataAs(&ev.Payload); err != nil {
		return fmt.Errorf("decode event payload: %w", err)
	}
	if ev.ID == "" {
		ev.ID = ce.ID()
	}
	if ev.Type == "" {
		ev.Type = ce.Type()
	}
	return nil
}
