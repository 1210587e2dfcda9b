package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"roadwatch/domain"
)

// summaryPartition holds every read-model row in one partition so the
// whole table can be scanned with a single partition filter.
const summaryPartition = "incident"

const edmInt64 = "Edm.Int64"

// Storage provides access to the event stream table, the read-model
// summary table, and the outgoing event bus queue.
type Storage struct {
	eventTable   *aztables.Client
	summaryTable *aztables.Client
	busQueue     *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, eventsTable, summariesTable, busQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	et := svc.NewClient(eventsTable)
	st := svc.NewClient(summariesTable)
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	bq, err := azqueue.NewQueueClientFromConnectionString(connStr, busQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{eventTable: et, summaryTable: st, busQueue: bq}, nil
}

// Provision creates the tables and queue when they do not exist yet.
func (s *Storage) Provision(ctx context.Context) error {
	for _, t := range []*aztables.Client{s.eventTable, s.summaryTable} {
		if _, err := t.CreateTable(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
	}
	if _, err := s.busQueue.Create(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists") {
			return err
		}
	}
	return nil
}

// eventEntity is one persisted event record. PartitionKey is the incident
// id and RowKey the zero-padded version, so (incident, version) uniqueness
// is enforced by the table itself and rows list in version order.
type eventEntity struct {
	aztables.Entity
	EventType      string `json:"EventType"`
	Data           string `json:"Data"`
	OccurredAt     int64  `json:"OccurredAt,string"`
	OccurredAtType string `json:"OccurredAt@odata.type"`
}

func rowKeyForVersion(v int64) string {
	return fmt.Sprintf("%012d", v)
}

func encodeEventEntity(id string, version int64, ev domain.Event) ([]byte, error) {
	payload, err := domain.EncodeEvent(ev)
	if err != nil {
		return nil, err
	}
	ent := eventEntity{
		Entity:         aztables.Entity{PartitionKey: id, RowKey: rowKeyForVersion(version)},
		EventType:      ev.Kind(),
		Data:           string(payload),
		OccurredAt:     ev.OccurredAt().UnixMilli(),
		OccurredAtType: edmInt64,
	}
	return json.Marshal(ent)
}

func decodeEventEntity(data []byte) (domain.Event, error) {
	var ent eventEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	return domain.DecodeEvent(ent.EventType, []byte(ent.Data), time.UnixMilli(ent.OccurredAt).UTC())
}

// History returns the decoded event stream for an incident ordered by
// version. ErrNotFound when no records exist.
func (s *Storage) History(ctx context.Context, id string) ([]domain.Event, error) {
	filter := "PartitionKey eq '" + id + "'"
	pager := s.eventTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	var events []domain.Event
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			ev, err := decodeEventEntity(raw)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
	}
	if len(events) == 0 {
		return nil, domain.ErrNotFound
	}
	return events, nil
}

// Get rehydrates an incident from its event stream.
func (s *Storage) Get(ctx context.Context, id string) (*domain.Incident, error) {
	events, err := s.History(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.FromHistory(events)
}

// Save appends the incident's pending events in a single same-partition
// transaction so an append either fully commits or writes nothing. The
// version probe is an optimization; the (incident, version) row uniqueness
// is the authoritative race guard and maps to ErrConcurrencyConflict.
func (s *Storage) Save(ctx context.Context, inc *domain.Incident) error {
	pending := inc.Pending()
	if len(pending) == 0 {
		return nil
	}

	nextVersion := inc.OriginalVersion() + 1
	if _, err := s.eventTable.GetEntity(ctx, inc.ID, rowKeyForVersion(nextVersion), nil); err == nil {
		return domain.ErrConcurrencyConflict
	} else if !hasStatusCode(err, 404) {
		return err
	}

	actions := make([]aztables.TransactionAction, 0, len(pending))
	version := inc.OriginalVersion()
	for _, ev := range pending {
		version++
		body, err := encodeEventEntity(inc.ID, version, ev)
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeAdd,
			Entity:     body,
		})
	}
	if _, err := s.eventTable.SubmitTransaction(ctx, actions, nil); err != nil {
		if hasStatusCode(err, 409) {
			return domain.ErrConcurrencyConflict
		}
		return err
	}
	inc.MarkPersisted()
	return nil
}

// summaryEntity is the persisted read-model row.
type summaryEntity struct {
	aztables.Entity
	IncidentType    string  `json:"IncidentType"`
	State           string  `json:"State"`
	Severity        string  `json:"Severity"`
	Latitude        float64 `json:"Latitude"`
	Longitude       float64 `json:"Longitude"`
	SensorStationID string  `json:"SensorStationId"`
	ResponderID     string  `json:"ResponderId"`
	RaisedAt        int64   `json:"RaisedAt,string"`
	RaisedAtType    string  `json:"RaisedAt@odata.type"`
	UpdatedAt       int64   `json:"UpdatedAt,string"`
	UpdatedAtType   string  `json:"UpdatedAt@odata.type"`
}

func summaryFromEntity(ent summaryEntity) domain.Summary {
	return domain.Summary{
		ID:              ent.RowKey,
		IncidentType:    ent.IncidentType,
		State:           domain.State(ent.State),
		Severity:        domain.Severity(ent.Severity),
		Latitude:        ent.Latitude,
		Longitude:       ent.Longitude,
		SensorStationID: ent.SensorStationID,
		ResponderID:     ent.ResponderID,
		RaisedAt:        time.UnixMilli(ent.RaisedAt).UTC(),
		UpdatedAt:       time.UnixMilli(ent.UpdatedAt).UTC(),
	}
}

// GetSummary retrieves a read-model row if present.
func (s *Storage) GetSummary(ctx context.Context, id string) (*domain.Summary, error) {
	resp, err := s.summaryTable.GetEntity(ctx, summaryPartition, id, nil)
	if err != nil {
		if hasStatusCode(err, 404) {
			return nil, nil
		}
		return nil, err
	}
	var ent summaryEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	sum := summaryFromEntity(ent)
	return &sum, nil
}

// UpsertSummary creates or fully overwrites a read-model row. Re-applying
// the same event therefore yields the same row.
func (s *Storage) UpsertSummary(ctx context.Context, sum domain.Summary) error {
	ent := summaryEntity{
		Entity:          aztables.Entity{PartitionKey: summaryPartition, RowKey: sum.ID},
		IncidentType:    sum.IncidentType,
		State:           string(sum.State),
		Severity:        string(sum.Severity),
		Latitude:        sum.Latitude,
		Longitude:       sum.Longitude,
		SensorStationID: sum.SensorStationID,
		ResponderID:     sum.ResponderID,
		RaisedAt:        sum.RaisedAt.UnixMilli(),
		RaisedAtType:    edmInt64,
		UpdatedAt:       sum.UpdatedAt.UnixMilli(),
		UpdatedAtType:   edmInt64,
	}
	payload, err := json.Marshal(ent)
	if err == nil {
		_, err = s.summaryTable.UpsertEntity(ctx, payload, nil)
	}
	return err
}

func (s *Storage) listSummaries(ctx context.Context, filter string) ([]domain.Summary, error) {
	pager := s.summaryTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	summaries := []domain.Summary{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent summaryEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			summaries = append(summaries, summaryFromEntity(ent))
		}
	}
	return summaries, nil
}

// ListSummaries returns every read-model row.
func (s *Storage) ListSummaries(ctx context.Context) ([]domain.Summary, error) {
	return s.listSummaries(ctx, "PartitionKey eq '"+summaryPartition+"'")
}

// ListActive returns all rows whose lifecycle is not yet Resolved.
func (s *Storage) ListActive(ctx context.Context) ([]domain.Summary, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s' and State ne '%s'", summaryPartition, domain.StateResolved)
	return s.listSummaries(ctx, filter)
}

// busEnvelope wraps a domain event for external consumers.
type busEnvelope struct {
	IncidentID string          `json:"incidentId"`
	Kind       string          `json:"kind"`
	OccurredAt int64           `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// ForwardEvents sends each committed domain event to the bus queue, in
// commit order.
func (s *Storage) ForwardEvents(ctx context.Context, events []domain.Event) error {
	for _, ev := range events {
		payload, err := domain.EncodeEvent(ev)
		if err != nil {
			return err
		}
		env := busEnvelope{
			IncidentID: ev.IncidentID(),
			Kind:       ev.Kind(),
			OccurredAt: ev.OccurredAt().UnixMilli(),
			Data:       payload,
		}
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if _, err := s.busQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}

func hasStatusCode(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}
