package events

import (
	"fmt"
	"strconv"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/JaimeStill/attest/internal/orchestration"
)

// TypePrefix namespaces workflow event types.
const TypePrefix = "io.attest."

// extVersion is the CloudEvents extension carrying the workflow state version.
const extVersion = "attestversion"

// Payload is the data of a workflow CloudEvent.
type Payload struct {
	Version    uint64               `json:"version"`
	Stage      string               `json:"stage,omitempty"`
	Regulation string               `json:"regulation,omitempty"`
	State      *orchestration.State `json:"state"`
}

// ToCloudEvent wraps a facade event. Events from one step share a version;
// the id is unique per version and type.
func ToCloudEvent(source string, ev orchestration.Event) (cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(fmt.Sprintf("%d-%s", ev.Version, ev.Type))
	ce.SetSource(source)
	ce.SetType(TypePrefix + string(ev.Type))
	ce.SetTime(ev.Time)
	ce.SetExtension(extVersion, strconv.FormatUint(ev.Version, 10))
	if ev.Stage != "" {
		ce.SetSubject(string(ev.Stage))
	}

	err := ce.SetData(cloudevents.ApplicationJSON, Payload{
		Version:    ev.Version,
		Stage:      string(ev.Stage),
		Regulation: ev.Regulation,
		State:      ev.State,
	})
	if err != nil {
		return ce, fmt.Errorf("encode event data: %w", err)
	}
	return ce, nil
}

// VersionOf returns the workflow state version carried by ce.
func VersionOf(ce cloudevents.Event) (uint64, bool) {
	v, ok := ce.Extensions()[extVersion]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(fmt.Sprint(v), 10, 64)
	return n, err == nil
}

// Forward publishes every facade event on the bus until the returned stop
// function is called.
func Forward(sys orchestration.System, bus *Bus) (stop func()) {
	return sys.Subscribe(func(ev orchestration.Event) {
		ce, err := ToCloudEvent(bus.source, ev)
		if err != nil {
			bus.logger.Error("event conversion failed", "type", ev.Type, "version", ev.Version, "error", err)
			return
		}
		if err := bus.Publish(ce); err != nil {
			bus.logger.Error("event publish failed", "type", ce.Type(), "error", err)
		}
	})
}
