package projection

import "roadwatch/domain"

// ApplySummary folds one event into the read-model row. Every branch is an
// idempotent overwrite (set-to-X, never add-N) so at-least-once redelivery
// yields the same row as exactly-once delivery. cur may be nil when no row
// exists yet.
func ApplySummary(cur *domain.Summary, ev domain.Event) domain.Summary {
	var next domain.Summary
	if cur != nil {
		next = *cur
	}
	switch e := ev.(type) {
	case domain.IncidentRaised:
		next = domain.Summary{
			ID:              e.ID,
			IncidentType:    e.IncidentType,
			State:           domain.StateDetected,
			Severity:        e.Severity,
			Latitude:        e.Latitude,
			Longitude:       e.Longitude,
			SensorStationID: e.SensorStationID,
			RaisedAt:        e.At,
		}
	case domain.IncidentStateAdvanced:
		next.ID = e.ID
		next.State = e.To
	case domain.ResponderAssigned:
		next.ID = e.ID
		next.ResponderID = e.ResponderID
	case domain.SeverityChanged:
		next.ID = e.ID
		next.Severity = e.Severity
	}
	next.UpdatedAt = ev.OccurredAt()
	return next
}
