package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/JaimeStill/attest/internal/orchestration"
	"github.com/JaimeStill/attest/pkg/handlers"
	"github.com/JaimeStill/attest/pkg/openapi"
	"github.com/JaimeStill/attest/pkg/routes"
)

const keepAliveInterval = 15 * time.Second

var changedType = TypePrefix + string(orchestration.EventWorkflowChanged)

// Handler streams workflow events as Server-Sent Events.
type Handler struct {
	bus    *Bus
	sys    orchestration.System
	logger *slog.Logger
}

// NewHandler creates a Handler. Each new stream starts with the current state.
func NewHandler(bus *Bus, sys orchestration.System, logger *slog.Logger) *Handler {
	return &Handler{
		bus:    bus,
		sys:    sys,
		logger: logger.With("handler", "events"),
	}
}

// Routes returns the route group for the event stream.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix:      "/events",
		Tags:        []string{"Events"},
		Description: "Workflow notifications as CloudEvents over Server-Sent Events",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.Stream, OpenAPI: streamOp},
		},
	}
}

// Stream writes one SSE message per CloudEvent until the client disconnects.
// State changes are sent in version order: one at or below the last version
// sent is skipped. Other event types are notifications and always pass.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	events, err := h.bus.Subscribe(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusServiceUnavailable, err)
		return
	}

	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("write deadline not cleared", "error", err)
	}

	w.Header().Set("Content-Type", openapi.MediaEventStream)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	st := h.sys.State()
	initial, err := ToCloudEvent(h.bus.source, orchestration.Event{
		Type:    orchestration.EventWorkflowChanged,
		Version: st.Version,
		Time:    st.UpdatedAt,
		State:   st,
	})
	if err != nil {
		h.logger.Error("initial event failed", "error", err)
		return
	}

	last := st.Version
	if err := writeEvent(w, initial); err != nil {
		return
	}
	rc.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			rc.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type() == changedType {
				if v, ok := VersionOf(ev); ok {
					if v <= last {
						continue
					}
					last = v
				}
			}
			if err := writeEvent(w, ev); err != nil {
				h.logger.Debug("event stream closed", "error", err)
				return
			}
			rc.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev cloudevents.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID(), ev.Type(), data)
	return err
}

var streamOp = &openapi.Operation{
	Summary:     "Stream workflow events",
	Description: "Server-Sent Events stream. Each message carries a structured-mode CloudEvent whose data holds the workflow state.",
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseMedia("Event stream", openapi.MediaEventStream, &openapi.Schema{Type: "string"}),
	},
}
