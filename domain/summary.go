package domain

import "time"

// Summary is the denormalized read-model row for one incident. It is
// overwritten idempotently on every relevant event.
type Summary struct {
	ID              string    `json:"id"`
	IncidentType    string    `json:"incidentType"`
	State           State     `json:"state"`
	Severity        Severity  `json:"severity"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	SensorStationID string    `json:"sensorStationId"`
	ResponderID     string    `json:"responderId,omitempty"`
	RaisedAt        time.Time `json:"raisedAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
