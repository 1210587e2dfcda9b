package projection

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"roadwatch/domain"
)

// IndexName is the RediSearch index over incident summary documents.
const IndexName = "idx:incidents"

const searchDocPrefix = "search:incident:"

// SearchDocKey returns the hash key of an incident's search document.
func SearchDocKey(id string) string {
	return searchDocPrefix + id
}

// SearchIndexer mirrors read-model snapshots into a RediSearch index. It is
// a best-effort sink; the query service falls back to the read model when
// the index is unavailable.
type SearchIndexer struct {
	redis *redis.Client
}

func NewSearchIndexer(client *redis.Client) *SearchIndexer {
	return &SearchIndexer{redis: client}
}

func (s *SearchIndexer) Name() string { return "search" }

// EnsureIndex creates the search index when it does not exist yet.
func (s *SearchIndexer) EnsureIndex(ctx context.Context) error {
	err := s.redis.FTCreate(ctx, IndexName,
		&redis.FTCreateOptions{
			OnHash: true,
			Prefix: []interface{}{searchDocPrefix},
		},
		&redis.FieldSchema{FieldName: "text", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "type", FieldType: redis.SearchFieldTypeTag},
		&redis.FieldSchema{FieldName: "state", FieldType: redis.SearchFieldTypeTag},
		&redis.FieldSchema{FieldName: "severity", FieldType: redis.SearchFieldTypeTag},
		&redis.FieldSchema{FieldName: "raisedAt", FieldType: redis.SearchFieldTypeNumeric, Sortable: true},
	).Err()
	if err != nil && strings.Contains(err.Error(), "Index already exists") {
		return nil
	}
	return err
}

// Apply re-indexes the updated snapshot. The full document is rewritten so
// redelivery cannot corrupt the index.
func (s *SearchIndexer) Apply(ctx context.Context, sum domain.Summary) error {
	doc := map[string]interface{}{
		"id":              sum.ID,
		"text":            strings.Join([]string{sum.IncidentType, sum.SensorStationID, sum.ResponderID}, " "),
		"type":            sum.IncidentType,
		"state":           string(sum.State),
		"severity":        string(sum.Severity),
		"latitude":        sum.Latitude,
		"longitude":       sum.Longitude,
		"sensorStationId": sum.SensorStationID,
		"responderId":     sum.ResponderID,
		"raisedAt":        sum.RaisedAt.UnixMilli(),
		"updatedAt":       sum.UpdatedAt.UnixMilli(),
	}
	return s.redis.HSet(ctx, SearchDocKey(sum.ID), doc).Err()
}
