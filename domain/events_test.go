package domain

import (
	"testing"
	"time"
)

func TestEventCodecRoundTrip(t *testing.T) {
	ts := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		IncidentRaised{
			ID:              "inc-1",
			IncidentType:    "StreetFlooding",
			Latitude:        51.5,
			Longitude:       -0.1,
			Severity:        SeverityModerate,
			SensorStationID: "SENS-001",
			At:              ts,
		},
		IncidentStateAdvanced{ID: "inc-1", From: StateDetected, To: StateValidated, At: ts},
		ResponderAssigned{ID: "inc-1", ResponderID: "RESP-001", At: ts},
		SeverityChanged{ID: "inc-1", Severity: SeverityCritical, At: ts},
	}
	for _, ev := range events {
		data, err := EncodeEvent(ev)
		if err != nil {
			t.Fatalf("encode %s: %v", ev.Kind(), err)
		}
		decoded, err := DecodeEvent(ev.Kind(), data, ts)
		if err != nil {
			t.Fatalf("decode %s: %v", ev.Kind(), err)
		}
		if decoded != ev {
			t.Fatalf("round trip %s:\nin:  %+v\nout: %+v", ev.Kind(), ev, decoded)
		}
	}
}

func TestDecodeUnknownKindFails(t *testing.T) {
	if _, err := DecodeEvent("incident-teleported", []byte(`{}`), time.Now()); err == nil {
		t.Fatal("unknown kind decoded without error")
	}
}

func TestDecodeMalformedPayloadFails(t *testing.T) {
	if _, err := DecodeEvent(KindIncidentRaised, []byte(`{"latitude":"north"}`), time.Now()); err == nil {
		t.Fatal("malformed payload decoded without error")
	}
}
