package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

const EventTypeStateChanged = "state_changed"

// StateChangedEvent is the data part of Home Assistant's state_changed event.
// https://www.home-assistant.io/docs/configuration/events/#state_changed
type StateChangedEvent struct {
	EntityID string `json:"entity_id"`
	OldState *State `json:"old_state"`
	NewState *State `json:"new_state"`
}

type State struct {
	EntityID    string          `json:"entity_id"`
	State       string          `json:"state"`
	Attributes  StateAttributes `json:"attributes"`
	LastChanged time.Time       `json:"last_changed"`
	LastUpdated time.Time       `json:"last_updated"`
}

type StateAttributes struct {
	UnitOfMeasurement string `json:"unit_of_measurement"`
	FriendlyName      string `json:"friendly_name,omitempty"`
	// https://www.home-assistant.io/integrations/sensor/#device-class
	DeviceClass DeviceClass `json:"device_class,omitempty"`
}

type DeviceClass string

var (
	DeviceClassTemperature         DeviceClass = "temperature"
	DeviceClassHumidity            DeviceClass = "humidity"
	DeviceClassPressure            DeviceClass = "pressure"
	DeviceClassAtmosphericPressure DeviceClass = "atmospheric_pressure"
)

type eventEnvelope struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// DecodeEvent accepts either bare event data or the full event as sent by the websocket API / mqtt_eventstream
func DecodeEvent(b []byte) (StateChangedEvent, error) {
	var ev StateChangedEvent
	var env eventEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return ev, fmt.Errorf("error decoding event: %w", err)
	}
	data := b
	if env.EventType != "" || len(env.Data) > 0 {
		if env.EventType != EventTypeStateChanged {
			return ev, fmt.Errorf("unsupported event type [%s]", env.EventType)
		}
		data = env.Data
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("error decoding state_changed data: %w", err)
	}
	if ev.EntityID == "" {
		if ev.NewState != nil {
			ev.EntityID = ev.NewState.EntityID
		} else if ev.OldState != nil {
			ev.EntityID = ev.OldState.EntityID
		}
	}
	if ev.EntityID == "" {
		return ev, fmt.Errorf("event without entity_id")
	}
	return ev, nil
}

func (s *State) String() string {
	if s == nil {
		return "unknown"
	}
	return s.State
}
