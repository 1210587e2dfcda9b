package api

import (
	"context"

	"roadwatch/domain"
	"roadwatch/search"
)

// IncidentCommands is the command surface consumed by the handlers.
type IncidentCommands interface {
	RaiseIncident(ctx context.Context, cmd domain.RaiseCommand) (string, error)
	AdvanceIncident(ctx context.Context, id string, action domain.Action, responderID string) error
	UpdateSeverity(ctx context.Context, id string, severity domain.Severity) error
}

// IncidentQueries is the query surface consumed by the handlers.
type IncidentQueries interface {
	GetSummary(ctx context.Context, id string) (*domain.Summary, error)
	ListActive(ctx context.Context) ([]domain.Summary, error)
	GetHistory(ctx context.Context, id string) ([]domain.Event, error)
}

// Searcher answers filtered incident searches.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (search.Result, error)
}
