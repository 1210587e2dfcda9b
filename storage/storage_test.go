package storage

import (
	"encoding/json"
	"testing"
	"time"

	"roadwatch/domain"
)

func TestRowKeyForVersionPadsAndOrders(t *testing.T) {
	if got := rowKeyForVersion(1); got != "000000000001" {
		t.Fatalf("rowKey(1) = %q", got)
	}
	// lexicographic row order must equal numeric version order
	if rowKeyForVersion(9) >= rowKeyForVersion(10) {
		t.Fatalf("rowKey(9)=%q not before rowKey(10)=%q", rowKeyForVersion(9), rowKeyForVersion(10))
	}
	if rowKeyForVersion(999) >= rowKeyForVersion(1000) {
		t.Fatal("padding too narrow for four digit versions")
	}
}

func TestEventEntityRoundTrip(t *testing.T) {
	ts := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	ev := domain.IncidentRaised{
		ID:              "inc-1",
		IncidentType:    "StreetFlooding",
		Latitude:        51.5,
		Longitude:       -0.1,
		Severity:        domain.SeverityModerate,
		SensorStationID: "SENS-001",
		At:              ts,
	}

	body, err := encodeEventEntity("inc-1", 1, ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var ent eventEntity
	if err := json.Unmarshal(body, &ent); err != nil {
		t.Fatalf("unmarshal entity: %v", err)
	}
	if ent.PartitionKey != "inc-1" || ent.RowKey != "000000000001" {
		t.Fatalf("keys = %s / %s", ent.PartitionKey, ent.RowKey)
	}
	if ent.EventType != domain.KindIncidentRaised {
		t.Fatalf("event type = %s", ent.EventType)
	}
	if ent.OccurredAtType != edmInt64 {
		t.Fatalf("odata annotation = %q", ent.OccurredAtType)
	}

	decoded, err := decodeEventEntity(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != domain.Event(ev) {
		t.Fatalf("round trip:\nin:  %+v\nout: %+v", ev, decoded)
	}
}

func TestDecodeEventEntityRejectsUnknownType(t *testing.T) {
	body := []byte(`{"PartitionKey":"inc-1","RowKey":"000000000001","EventType":"incident-teleported","Data":"{}","OccurredAt":"0"}`)
	if _, err := decodeEventEntity(body); err == nil {
		t.Fatal("unknown event type decoded without error")
	}
}

func TestSummaryEntityMapping(t *testing.T) {
	ts := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	ent := summaryEntity{
		IncidentType:    "StreetFlooding",
		State:           "Mitigating",
		Severity:        "Major",
		Latitude:        51.5,
		Longitude:       -0.1,
		SensorStationID: "SENS-001",
		ResponderID:     "RESP-001",
		RaisedAt:        ts.UnixMilli(),
		UpdatedAt:       ts.Add(time.Minute).UnixMilli(),
	}
	ent.PartitionKey = summaryPartition
	ent.RowKey = "inc-1"

	sum := summaryFromEntity(ent)
	if sum.ID != "inc-1" || sum.State != domain.StateMitigating || sum.Severity != domain.SeverityMajor {
		t.Fatalf("summary = %+v", sum)
	}
	if !sum.RaisedAt.Equal(ts) || !sum.UpdatedAt.Equal(ts.Add(time.Minute)) {
		t.Fatalf("timestamps = %v / %v", sum.RaisedAt, sum.UpdatedAt)
	}
}

func TestBusEnvelopeShape(t *testing.T) {
	ts := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	ev := domain.SeverityChanged{ID: "inc-1", Severity: domain.SeverityCritical, At: ts}
	payload, err := domain.EncodeEvent(ev)
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	env := busEnvelope{
		IncidentID: ev.IncidentID(),
		Kind:       ev.Kind(),
		OccurredAt: ev.OccurredAt().UnixMilli(),
		Data:       payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	var got struct {
		IncidentID string          `json:"incidentId"`
		Kind       string          `json:"kind"`
		OccurredAt int64           `json:"occurredAt"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if got.IncidentID != "inc-1" || got.Kind != domain.KindSeverityChanged || got.OccurredAt != ts.UnixMilli() {
		t.Fatalf("envelope = %+v", got)
	}
	decoded, err := domain.DecodeEvent(got.Kind, got.Data, time.UnixMilli(got.OccurredAt).UTC())
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.IncidentID() != "inc-1" {
		t.Fatalf("decoded = %+v", decoded)
	}
}
