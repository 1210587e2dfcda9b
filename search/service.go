// Package search answers filtered, paginated incident queries against the
// RediSearch index, falling back to an in-memory scan of the read model
// when the index is unavailable. Both paths return the same result shape.
package search

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"roadwatch/domain"
	"roadwatch/projection"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// FallbackStore scans the read model when the search engine is down.
type FallbackStore interface {
	ListSummaries(ctx context.Context) ([]domain.Summary, error)
}

// Query carries the search parameters. Zero values mean "no filter".
type Query struct {
	Term         string
	Severity     domain.Severity
	State        domain.State
	IncidentType string
	Page         int
	PageSize     int
}

// Result is the paginated answer, identical for the primary and fallback
// paths.
type Result struct {
	Items      []domain.Summary `json:"items"`
	TotalCount int              `json:"totalCount"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
}

// Service answers incident searches.
type Service struct {
	redis    *redis.Client
	fallback FallbackStore
	logger   *log.Logger
}

func NewService(client *redis.Client, fallback FallbackStore, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{redis: client, fallback: fallback, logger: logger}
}

// Search runs the query against the index, sorted by raise time descending.
// Resolved incidents are excluded unless the state filter names a state.
// Engine errors degrade to the read-model scan; callers only notice via
// latency and logs.
func (s *Service) Search(ctx context.Context, q Query) (Result, error) {
	q = normalize(q)

	res, err := s.searchIndex(ctx, q)
	if err == nil {
		return res, nil
	}
	s.logger.WithError(err).Warn("search index unavailable, falling back to read model scan")
	return s.searchFallback(ctx, q)
}

func normalize(q Query) Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	return q
}

func (s *Service) searchIndex(ctx context.Context, q Query) (Result, error) {
	query := buildQuery(q)
	offset := (q.Page - 1) * q.PageSize
	resp, err := s.redis.FTSearchWithArgs(ctx, projection.IndexName, query, &redis.FTSearchOptions{
		SortBy:      []redis.FTSearchSortBy{{FieldName: "raisedAt", Desc: true}},
		LimitOffset: offset,
		Limit:       q.PageSize,
	}).Result()
	if err != nil {
		return Result{}, err
	}

	items := make([]domain.Summary, 0, len(resp.Docs))
	for _, doc := range resp.Docs {
		sum, err := summaryFromDoc(doc)
		if err != nil {
			return Result{}, fmt.Errorf("malformed search document %s: %w", doc.ID, err)
		}
		items = append(items, sum)
	}
	return Result{Items: items, TotalCount: int(resp.Total), Page: q.Page, PageSize: q.PageSize}, nil
}

// buildQuery assembles a RediSearch query string from the filters.
func buildQuery(q Query) string {
	var parts []string
	if term := sanitizeTerm(q.Term); term != "" {
		parts = append(parts, term)
	}
	if q.Severity != "" {
		parts = append(parts, "@severity:{"+string(q.Severity)+"}")
	}
	if q.State != "" {
		parts = append(parts, "@state:{"+string(q.State)+"}")
	} else {
		parts = append(parts, "-@state:{"+string(domain.StateResolved)+"}")
	}
	if q.IncidentType != "" {
		parts = append(parts, "@type:{"+escapeTag(q.IncidentType)+"}")
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

// sanitizeTerm strips RediSearch syntax characters from free text so user
// input cannot alter the query structure.
func sanitizeTerm(term string) string {
	var b strings.Builder
	for _, r := range term {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func escapeTag(tag string) string {
	replacer := strings.NewReplacer(" ", "\\ ", ",", "\\,", "{", "\\{", "}", "\\}")
	return replacer.Replace(tag)
}

func summaryFromDoc(doc redis.Document) (domain.Summary, error) {
	lat, err := strconv.ParseFloat(doc.Fields["latitude"], 64)
	if err != nil {
		return domain.Summary{}, err
	}
	lon, err := strconv.ParseFloat(doc.Fields["longitude"], 64)
	if err != nil {
		return domain.Summary{}, err
	}
	raisedAt, err := strconv.ParseInt(doc.Fields["raisedAt"], 10, 64)
	if err != nil {
		return domain.Summary{}, err
	}
	updatedAt, err := strconv.ParseInt(doc.Fields["updatedAt"], 10, 64)
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.Summary{
		ID:              doc.Fields["id"],
		IncidentType:    doc.Fields["type"],
		State:           domain.State(doc.Fields["state"]),
		Severity:        domain.Severity(doc.Fields["severity"]),
		Latitude:        lat,
		Longitude:       lon,
		SensorStationID: doc.Fields["sensorStationId"],
		ResponderID:     doc.Fields["responderId"],
		RaisedAt:        msToTime(raisedAt),
		UpdatedAt:       msToTime(updatedAt),
	}, nil
}

func msToTime(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// searchFallback applies the same predicates and pagination over the
// read-model rows in memory.
func (s *Service) searchFallback(ctx context.Context, q Query) (Result, error) {
	summaries, err := s.fallback.ListSummaries(ctx)
	if err != nil {
		return Result{}, err
	}

	filtered := summaries[:0:0]
	for _, sum := range summaries {
		if matches(sum, q) {
			filtered = append(filtered, sum)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].RaisedAt.After(filtered[j].RaisedAt)
	})

	total := len(filtered)
	start := (q.Page - 1) * q.PageSize
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}
	return Result{Items: filtered[start:end], TotalCount: total, Page: q.Page, PageSize: q.PageSize}, nil
}

func matches(sum domain.Summary, q Query) bool {
	if q.State != "" {
		if sum.State != q.State {
			return false
		}
	} else if sum.State == domain.StateResolved {
		return false
	}
	if q.Severity != "" && sum.Severity != q.Severity {
		return false
	}
	if q.IncidentType != "" && sum.IncidentType != q.IncidentType {
		return false
	}
	if term := sanitizeTerm(q.Term); term != "" {
		needle := strings.ToLower(term)
		haystack := strings.ToLower(strings.Join([]string{
			sum.ID, sum.IncidentType, sum.SensorStationID, sum.ResponderID,
		}, " "))
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
