package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventStore persists and rehydrates incident event streams.
type EventStore interface {
	// Get rehydrates the incident from its full stream. ErrNotFound when no
	// stream exists for the id.
	Get(ctx context.Context, id string) (*Incident, error)
	// History returns the decoded event stream ordered by version.
	History(ctx context.Context, id string) ([]Event, error)
	// Save appends all pending events with an optimistic version check.
	// ErrConcurrencyConflict when another writer appended first; nothing is
	// written in that case.
	Save(ctx context.Context, inc *Incident) error
}

// EventPublisher fans freshly committed events out to the derived views.
type EventPublisher interface {
	Publish(ctx context.Context, events []Event) error
}

// SummaryReader answers direct queries against the read model.
type SummaryReader interface {
	// GetSummary returns nil when no row exists for the id.
	GetSummary(ctx context.Context, id string) (*Summary, error)
	ListActive(ctx context.Context) ([]Summary, error)
}

// Action names an incident advancement requested by a caller.
type Action string

const (
	ActionValidate        Action = "Validate"
	ActionAssignResponder Action = "AssignResponder"
	ActionBeginMitigation Action = "BeginMitigation"
	ActionBeginMonitoring Action = "BeginMonitoring"
	ActionResolve         Action = "Resolve"
)

// ParseAction validates a caller-supplied action label.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionValidate, ActionAssignResponder, ActionBeginMitigation, ActionBeginMonitoring, ActionResolve:
		return Action(s), nil
	}
	return "", &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", s)}
}

// RaiseCommand carries the fields needed to open a new incident.
type RaiseCommand struct {
	IncidentType    string
	Latitude        float64
	Longitude       float64
	Severity        Severity
	SensorStationID string
}

// IncidentService is the command and query surface over the aggregate. A
// command loads the incident, mutates it, persists the new events with a
// version-checked append, then hands the drained events to the publisher.
type IncidentService struct {
	store     EventStore
	publisher EventPublisher
	summaries SummaryReader
	now       func() time.Time
	newID     func() string
}

func NewIncidentService(store EventStore, publisher EventPublisher, summaries SummaryReader) *IncidentService {
	return &IncidentService{
		store:     store,
		publisher: publisher,
		summaries: summaries,
		now:       NextEventTime,
		newID:     uuid.NewString,
	}
}

// RaiseIncident opens a new incident and returns its id.
func (s *IncidentService) RaiseIncident(ctx context.Context, cmd RaiseCommand) (string, error) {
	inc, err := Raise(s.newID(), cmd.IncidentType, cmd.Latitude, cmd.Longitude, cmd.Severity, cmd.SensorStationID, s.now())
	if err != nil {
		return "", err
	}
	if err := s.commit(ctx, inc); err != nil {
		return "", err
	}
	return inc.ID, nil
}

// AdvanceIncident fires the requested lifecycle action. responderID is
// consulted only by AssignResponder and BeginMitigation.
func (s *IncidentService) AdvanceIncident(ctx context.Context, id string, action Action, responderID string) error {
	inc, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	at := s.now()
	switch action {
	case ActionValidate:
		_, err = inc.Validate(at)
	case ActionAssignResponder:
		_, err = inc.AssignResponder(responderID, at)
	case ActionBeginMitigation:
		_, err = inc.BeginMitigation(responderID, at)
	case ActionBeginMonitoring:
		_, err = inc.BeginMonitoring(at)
	case ActionResolve:
		_, err = inc.Resolve(at)
	default:
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", action)}
	}
	if err != nil {
		return err
	}
	return s.commit(ctx, inc)
}

// UpdateSeverity reassesses the severity of an incident.
func (s *IncidentService) UpdateSeverity(ctx context.Context, id string, severity Severity) error {
	inc, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := inc.UpdateSeverity(severity, s.now()); err != nil {
		return err
	}
	return s.commit(ctx, inc)
}

func (s *IncidentService) commit(ctx context.Context, inc *Incident) error {
	if len(inc.Pending()) == 0 {
		return nil
	}
	if err := s.store.Save(ctx, inc); err != nil {
		return err
	}
	return s.publisher.Publish(ctx, inc.Drain())
}

// GetSummary returns the read-model row for an incident. ErrNotFound when
// no row exists.
func (s *IncidentService) GetSummary(ctx context.Context, id string) (*Summary, error) {
	sum, err := s.summaries.GetSummary(ctx, id)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		return nil, ErrNotFound
	}
	return sum, nil
}

// ListActive returns all incidents that are not yet resolved.
func (s *IncidentService) ListActive(ctx context.Context) ([]Summary, error) {
	return s.summaries.ListActive(ctx)
}

// GetHistory returns an incident's ordered event stream.
func (s *IncidentService) GetHistory(ctx context.Context, id string) ([]Event, error) {
	return s.store.History(ctx, id)
}
