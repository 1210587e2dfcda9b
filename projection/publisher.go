package projection

import (
	"context"

	log "github.com/sirupsen/logrus"

	"roadwatch/domain"
)

// SummaryStore persists read-model rows.
type SummaryStore interface {
	// GetSummary returns nil when no row exists.
	GetSummary(ctx context.Context, id string) (*domain.Summary, error)
	UpsertSummary(ctx context.Context, sum domain.Summary) error
}

// Bus forwards committed domain events to external consumers.
type Bus interface {
	ForwardEvents(ctx context.Context, events []domain.Event) error
}

// SummarySink is a best-effort secondary projection fed with the updated
// snapshot after the read model committed. Failures are logged, never
// propagated, so consumers of these sinks must tolerate staleness.
type SummarySink interface {
	Name() string
	Apply(ctx context.Context, sum domain.Summary) error
}

// Publisher sequences the projection fan-out for a drained batch of one
// incident's freshly committed events: mandatory read-model fold first,
// then the secondary sinks and bus forwarding opportunistically.
type Publisher struct {
	summaries SummaryStore
	sinks     []SummarySink
	bus       Bus
	logger    *log.Logger
}

func NewPublisher(summaries SummaryStore, bus Bus, logger *log.Logger, sinks ...SummarySink) *Publisher {
	if summaries == nil {
		panic("projection.NewPublisher: summary store is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Publisher{summaries: summaries, sinks: sinks, bus: bus, logger: logger}
}

// Publish folds events into the read model and refreshes the secondary
// sinks. A read-model failure fails the whole publish with a
// ProjectionError; the event store append has already committed at that
// point, and the next successful publish for the incident repairs the row.
func (p *Publisher) Publish(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	latest := make(map[string]domain.Summary)
	var order []string
	for _, ev := range events {
		id := ev.IncidentID()
		cur, err := p.summaries.GetSummary(ctx, id)
		if err != nil {
			return &domain.ProjectionError{Sink: "read-model", Err: err}
		}
		next := ApplySummary(cur, ev)
		if err := p.summaries.UpsertSummary(ctx, next); err != nil {
			return &domain.ProjectionError{Sink: "read-model", Err: err}
		}
		if _, seen := latest[id]; !seen {
			order = append(order, id)
		}
		latest[id] = next
	}

	for _, id := range order {
		sum := latest[id]
		for _, sink := range p.sinks {
			if err := sink.Apply(ctx, sum); err != nil {
				p.logger.WithError(err).WithFields(log.Fields{
					"sink":     sink.Name(),
					"incident": id,
				}).Error("secondary projection failed")
			}
		}
	}

	if p.bus != nil {
		if err := p.bus.ForwardEvents(ctx, events); err != nil {
			p.logger.WithError(err).WithField("events", len(events)).Error("event bus forwarding failed")
		}
	}
	return nil
}

// Rebuild re-publishes a full event stream to repair the derived views for
// one incident, e.g. after a read-model failure left the row behind the
// stream. Publishing is idempotent, so replaying over current rows is safe.
func (p *Publisher) Rebuild(ctx context.Context, history []domain.Event) error {
	return p.Publish(ctx, history)
}
