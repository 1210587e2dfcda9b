package domain

import (
	"fmt"
	"strings"
	"time"
)

// State is a lifecycle state of an incident. The lifecycle is linear with
// no cycles and no skips.
type State string

const (
	StateDetected   State = "Detected"
	StateValidated  State = "Validated"
	StateMitigating State = "Mitigating"
	StateMonitoring State = "Monitoring"
	StateResolved   State = "Resolved"
)

// ParseState validates a caller-supplied state label.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StateDetected, StateValidated, StateMitigating, StateMonitoring, StateResolved:
		return State(s), nil
	}
	return "", &ValidationError{Field: "state", Reason: fmt.Sprintf("unknown state %q", s)}
}

// Trigger names a lifecycle transition.
type Trigger string

const (
	TriggerValidate        Trigger = "Validate"
	TriggerBeginMitigation Trigger = "BeginMitigation"
	TriggerBeginMonitoring Trigger = "BeginMonitoring"
	TriggerResolve         Trigger = "Resolve"
)

// transitions is the full state machine: state x trigger -> next state.
// Pairs absent from the table are rejected with InvalidTransitionError.
var transitions = map[State]map[Trigger]State{
	StateDetected:   {TriggerValidate: StateValidated},
	StateValidated:  {TriggerBeginMitigation: StateMitigating},
	StateMitigating: {TriggerBeginMonitoring: StateMonitoring},
	StateMonitoring: {TriggerResolve: StateResolved},
}

// Severity classifies the operational impact of an incident.
type Severity string

const (
	SeverityMinor    Severity = "Minor"
	SeverityModerate Severity = "Moderate"
	SeverityMajor    Severity = "Major"
	SeverityCritical Severity = "Critical"
)

// ParseSeverity validates a caller-supplied severity label.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityMinor, SeverityModerate, SeverityMajor, SeverityCritical:
		return Severity(s), nil
	}
	return "", &ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown severity %q", s)}
}

// Incident is the event-sourced aggregate. Its state is fully derived from
// its ordered event stream; mutating operations emit events, and the same
// reducer applies them for live mutation and for historical replay.
type Incident struct {
	ID              string
	IncidentType    string
	Latitude        float64
	Longitude       float64
	Severity        Severity
	State           State
	ResponderID     string
	SensorStationID string
	RaisedAt        time.Time

	// Version counts applied events, including replayed history.
	Version int64

	// originalVersion is the version at the last successful persist and is
	// the expected-version token for the next append.
	originalVersion int64

	pending []Event
}

// Raise creates a new incident and emits its first event.
func Raise(id, incidentType string, lat, lon float64, severity Severity, sensorStationID string, at time.Time) (*Incident, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &ValidationError{Field: "id", Reason: "must not be blank"}
	}
	if strings.TrimSpace(incidentType) == "" {
		return nil, &ValidationError{Field: "incidentType", Reason: "must not be blank"}
	}
	if strings.TrimSpace(sensorStationID) == "" {
		return nil, &ValidationError{Field: "sensorStationId", Reason: "must not be blank"}
	}
	if _, err := ParseSeverity(string(severity)); err != nil {
		return nil, err
	}
	if lat < -90 || lat > 90 {
		return nil, &ValidationError{Field: "latitude", Reason: "must be within [-90, 90]"}
	}
	if lon < -180 || lon > 180 {
		return nil, &ValidationError{Field: "longitude", Reason: "must be within [-180, 180]"}
	}
	inc := &Incident{}
	inc.emit(IncidentRaised{
		ID:              id,
		IncidentType:    incidentType,
		Latitude:        lat,
		Longitude:       lon,
		Severity:        severity,
		SensorStationID: sensorStationID,
		At:              at,
	})
	return inc, nil
}

// FromHistory rehydrates an incident by replaying its full event stream.
func FromHistory(events []Event) (*Incident, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("empty event history")
	}
	if _, ok := events[0].(IncidentRaised); !ok {
		return nil, fmt.Errorf("malformed history: first event is %s, want %s", events[0].Kind(), KindIncidentRaised)
	}
	inc := &Incident{}
	for _, ev := range events {
		inc.apply(ev)
		inc.Version++
	}
	inc.originalVersion = inc.Version
	return inc, nil
}

// Validate advances a detected incident to Validated.
func (inc *Incident) Validate(at time.Time) ([]Event, error) {
	return inc.fire(TriggerValidate, at)
}

// AssignResponder puts a responder in charge. A detected incident is
// validated first; assigning the responder that is already in charge emits
// nothing.
func (inc *Incident) AssignResponder(responderID string, at time.Time) ([]Event, error) {
	if strings.TrimSpace(responderID) == "" {
		return nil, &ValidationError{Field: "responderId", Reason: "must not be blank"}
	}
	var emitted []Event
	if inc.State == StateDetected {
		evs, err := inc.fire(TriggerValidate, at)
		if err != nil {
			return nil, err
		}
		emitted = append(emitted, evs...)
	}
	if inc.ResponderID == responderID {
		return emitted, nil
	}
	ev := ResponderAssigned{ID: inc.ID, ResponderID: responderID, At: at}
	inc.emit(ev)
	return append(emitted, ev), nil
}

// BeginMitigation assigns the responder and starts mitigation. A responder
// must either be supplied or already assigned.
func (inc *Incident) BeginMitigation(responderID string, at time.Time) ([]Event, error) {
	var emitted []Event
	if strings.TrimSpace(responderID) != "" {
		evs, err := inc.AssignResponder(responderID, at)
		if err != nil {
			return nil, err
		}
		emitted = append(emitted, evs...)
	} else if inc.ResponderID == "" {
		return nil, &ValidationError{Field: "responderId", Reason: "a responder is required to begin mitigation"}
	}
	evs, err := inc.fire(TriggerBeginMitigation, at)
	if err != nil {
		return nil, err
	}
	return append(emitted, evs...), nil
}

// BeginMonitoring moves a mitigated incident under observation.
func (inc *Incident) BeginMonitoring(at time.Time) ([]Event, error) {
	return inc.fire(TriggerBeginMonitoring, at)
}

// Resolve closes out a monitored incident.
func (inc *Incident) Resolve(at time.Time) ([]Event, error) {
	return inc.fire(TriggerResolve, at)
}

// UpdateSeverity reassesses the incident severity. An unchanged severity
// emits nothing.
func (inc *Incident) UpdateSeverity(severity Severity, at time.Time) ([]Event, error) {
	if _, err := ParseSeverity(string(severity)); err != nil {
		return nil, err
	}
	if inc.Severity == severity {
		return nil, nil
	}
	ev := SeverityChanged{ID: inc.ID, Severity: severity, At: at}
	inc.emit(ev)
	return []Event{ev}, nil
}

func (inc *Incident) fire(tr Trigger, at time.Time) ([]Event, error) {
	next, ok := transitions[inc.State][tr]
	if !ok {
		return nil, &InvalidTransitionError{From: inc.State, Trigger: tr}
	}
	ev := IncidentStateAdvanced{ID: inc.ID, From: inc.State, To: next, At: at}
	inc.emit(ev)
	return []Event{ev}, nil
}

func (inc *Incident) emit(ev Event) {
	inc.pending = append(inc.pending, ev)
	inc.apply(ev)
	inc.Version++
}

// apply is the reducer shared by live mutation and replay. It must stay
// side-effect-free and deterministic: the same ordered event list always
// yields the same state.
func (inc *Incident) apply(ev Event) {
	switch e := ev.(type) {
	case IncidentRaised:
		inc.ID = e.ID
		inc.IncidentType = e.IncidentType
		inc.Latitude = e.Latitude
		inc.Longitude = e.Longitude
		inc.Severity = e.Severity
		inc.SensorStationID = e.SensorStationID
		inc.RaisedAt = e.At
		inc.State = StateDetected
	case IncidentStateAdvanced:
		inc.State = e.To
	case ResponderAssigned:
		inc.ResponderID = e.ResponderID
	case SeverityChanged:
		inc.Severity = e.Severity
	}
}

// Pending returns the events produced since the last drain, in emission
// order.
func (inc *Incident) Pending() []Event {
	out := make([]Event, len(inc.pending))
	copy(out, inc.pending)
	return out
}

// OriginalVersion returns the expected-version token for the next append.
func (inc *Incident) OriginalVersion() int64 { return inc.originalVersion }

// MarkPersisted records a successful append of all pending events.
func (inc *Incident) MarkPersisted() { inc.originalVersion = inc.Version }

// Drain hands off the pending events and clears the queue. Callers drain
// only after a successful persist.
func (inc *Incident) Drain() []Event {
	out := inc.pending
	inc.pending = nil
	return out
}

// Summarize projects current aggregate state into the read-model shape.
func (inc *Incident) Summarize(updatedAt time.Time) Summary {
	return Summary{
		ID:              inc.ID,
		IncidentType:    inc.IncidentType,
		State:           inc.State,
		Severity:        inc.Severity,
		Latitude:        inc.Latitude,
		Longitude:       inc.Longitude,
		SensorStationID: inc.SensorStationID,
		ResponderID:     inc.ResponderID,
		RaisedAt:        inc.RaisedAt,
		UpdatedAt:       updatedAt,
	}
}
