package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event kind discriminators. These are wire identifiers persisted with every
// event record and are deliberately decoupled from Go type names.
const (
	KindIncidentRaised        = "incident-raised"
	KindIncidentStateAdvanced = "incident-state-advanced"
	KindResponderAssigned     = "responder-assigned"
	KindSeverityChanged       = "severity-changed"
)

// Event is an immutable fact about a single incident. Events are never
// revised once persisted.
type Event interface {
	IncidentID() string
	Kind() string
	OccurredAt() time.Time
}

// IncidentRaised is the first event of every incident stream.
type IncidentRaised struct {
	ID              string    `json:"id"`
	IncidentType    string    `json:"incidentType"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	Severity        Severity  `json:"severity"`
	SensorStationID string    `json:"sensorStationId"`
	At              time.Time `json:"-"`
}

func (e IncidentRaised) IncidentID() string    { return e.ID }
func (e IncidentRaised) Kind() string          { return KindIncidentRaised }
func (e IncidentRaised) OccurredAt() time.Time { return e.At }

// IncidentStateAdvanced records a single lifecycle transition.
type IncidentStateAdvanced struct {
	ID   string    `json:"id"`
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"-"`
}

func (e IncidentStateAdvanced) IncidentID() string    { return e.ID }
func (e IncidentStateAdvanced) Kind() string          { return KindIncidentStateAdvanced }
func (e IncidentStateAdvanced) OccurredAt() time.Time { return e.At }

// ResponderAssigned records the responder currently in charge.
type ResponderAssigned struct {
	ID          string    `json:"id"`
	ResponderID string    `json:"responderId"`
	At          time.Time `json:"-"`
}

func (e ResponderAssigned) IncidentID() string    { return e.ID }
func (e ResponderAssigned) Kind() string          { return KindResponderAssigned }
func (e ResponderAssigned) OccurredAt() time.Time { return e.At }

// SeverityChanged records a severity reassessment.
type SeverityChanged struct {
	ID       string    `json:"id"`
	Severity Severity  `json:"severity"`
	At       time.Time `json:"-"`
}

func (e SeverityChanged) IncidentID() string    { return e.ID }
func (e SeverityChanged) Kind() string          { return KindSeverityChanged }
func (e SeverityChanged) OccurredAt() time.Time { return e.At }

// EncodeEvent serializes an event payload for persistence. The kind
// discriminator and occurrence time travel alongside the payload in the
// event record, not inside it.
func EncodeEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeEvent resolves a kind discriminator back to a concrete event.
// Unknown discriminators fail loudly instead of being skipped so a stream
// written by a newer schema is never silently truncated.
func DecodeEvent(kind string, data []byte, at time.Time) (Event, error) {
	switch kind {
	case KindIncidentRaised:
		var e IncidentRaised
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		e.At = at
		return e, nil
	case KindIncidentStateAdvanced:
		var e IncidentStateAdvanced
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		e.At = at
		return e, nil
	case KindResponderAssigned:
		var e ResponderAssigned
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		e.At = at
		return e, nil
	case KindSeverityChanged:
		var e SeverityChanged
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		e.At = at
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}
