package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"roadwatch/domain"
)

type fakeFallback struct {
	rows []domain.Summary
	err  error
}

func (f *fakeFallback) ListSummaries(ctx context.Context) ([]domain.Summary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fallbackService returns a service whose redis endpoint has no search
// module, so every query degrades to the read-model scan.
func fallbackService(t *testing.T, fallback *fakeFallback) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), UnstableResp3: true})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(client, fallback, quietLogger())
}

func row(n int, state domain.State, severity domain.Severity) domain.Summary {
	return domain.Summary{
		ID:              fmt.Sprintf("inc-%d", n),
		IncidentType:    "StreetFlooding",
		State:           state,
		Severity:        severity,
		Latitude:        51.5,
		Longitude:       -0.1,
		SensorStationID: fmt.Sprintf("SENS-%03d", n),
		RaisedAt:        time.Date(2025, time.March, 1, 12, 0, n, 0, time.UTC),
	}
}

func TestSearchFallbackExcludesResolvedByDefault(t *testing.T) {
	fallback := &fakeFallback{rows: []domain.Summary{
		row(1, domain.StateDetected, domain.SeverityModerate),
		row(2, domain.StateResolved, domain.SeverityModerate),
		row(3, domain.StateMitigating, domain.SeverityMajor),
	}}
	svc := fallbackService(t, fallback)

	res, err := svc.Search(context.Background(), Query{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.TotalCount != 2 {
		t.Fatalf("total = %d, want 2", res.TotalCount)
	}
	for _, item := range res.Items {
		if item.State == domain.StateResolved {
			t.Fatalf("resolved incident %s in default results", item.ID)
		}
	}
}

func TestSearchFallbackStateFilterIncludesResolved(t *testing.T) {
	fallback := &fakeFallback{rows: []domain.Summary{
		row(1, domain.StateDetected, domain.SeverityModerate),
		row(2, domain.StateResolved, domain.SeverityModerate),
	}}
	svc := fallbackService(t, fallback)

	res, err := svc.Search(context.Background(), Query{State: domain.StateResolved})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.TotalCount != 1 || res.Items[0].ID != "inc-2" {
		t.Fatalf("result = %+v", res)
	}
}

func TestSearchFallbackFilters(t *testing.T) {
	rows := []domain.Summary{
		row(1, domain.StateDetected, domain.SeverityMinor),
		row(2, domain.StateDetected, domain.SeverityCritical),
		row(3, domain.StateMonitoring, domain.SeverityCritical),
	}
	rows[2].IncidentType = "Landslide"
	fallback := &fakeFallback{rows: rows}
	svc := fallbackService(t, fallback)
	ctx := context.Background()

	res, err := svc.Search(ctx, Query{Severity: domain.SeverityCritical})
	if err != nil {
		t.Fatalf("severity filter: %v", err)
	}
	if res.TotalCount != 2 {
		t.Fatalf("severity filter total = %d", res.TotalCount)
	}

	res, err = svc.Search(ctx, Query{IncidentType: "Landslide"})
	if err != nil {
		t.Fatalf("type filter: %v", err)
	}
	if res.TotalCount != 1 || res.Items[0].ID != "inc-3" {
		t.Fatalf("type filter result = %+v", res)
	}

	res, err = svc.Search(ctx, Query{Term: "SENS-002"})
	if err != nil {
		t.Fatalf("term filter: %v", err)
	}
	if res.TotalCount != 1 || res.Items[0].ID != "inc-2" {
		t.Fatalf("term filter result = %+v", res)
	}
}

func TestSearchFallbackSortAndPagination(t *testing.T) {
	var rows []domain.Summary
	for n := 1; n <= 5; n++ {
		rows = append(rows, row(n, domain.StateDetected, domain.SeverityModerate))
	}
	fallback := &fakeFallback{rows: rows}
	svc := fallbackService(t, fallback)
	ctx := context.Background()

	res, err := svc.Search(ctx, Query{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if res.TotalCount != 5 || len(res.Items) != 2 {
		t.Fatalf("page 1 = %+v", res)
	}
	// newest raise first
	if res.Items[0].ID != "inc-5" || res.Items[1].ID != "inc-4" {
		t.Fatalf("page 1 order = %s, %s", res.Items[0].ID, res.Items[1].ID)
	}

	res, err = svc.Search(ctx, Query{Page: 3, PageSize: 2})
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "inc-1" {
		t.Fatalf("page 3 = %+v", res)
	}

	res, err = svc.Search(ctx, Query{Page: 9, PageSize: 2})
	if err != nil {
		t.Fatalf("page past end: %v", err)
	}
	if len(res.Items) != 0 || res.TotalCount != 5 {
		t.Fatalf("page past end = %+v", res)
	}
}

func TestSearchFallbackErrorSurfaces(t *testing.T) {
	fallback := &fakeFallback{err: errors.New("table down")}
	svc := fallbackService(t, fallback)
	if _, err := svc.Search(context.Background(), Query{}); err == nil {
		t.Fatal("fallback error swallowed")
	}
}

func TestNormalizeClampsPaging(t *testing.T) {
	q := normalize(Query{Page: 0, PageSize: 0})
	if q.Page != 1 || q.PageSize != defaultPageSize {
		t.Fatalf("normalized = %+v", q)
	}
	q = normalize(Query{Page: 2, PageSize: 10_000})
	if q.PageSize != maxPageSize {
		t.Fatalf("pageSize = %d", q.PageSize)
	}
}

func TestBuildQuery(t *testing.T) {
	cases := []struct {
		name string
		q    Query
		want string
	}{
		{"default excludes resolved", Query{}, "-@state:{Resolved}"},
		{"state filter", Query{State: domain.StateMitigating}, "@state:{Mitigating}"},
		{
			"all filters",
			Query{Term: "flood", Severity: domain.SeverityMajor, State: domain.StateDetected, IncidentType: "Street Flooding"},
			"flood @severity:{Major} @state:{Detected} @type:{Street\\ Flooding}",
		},
		{"syntax stripped from term", Query{Term: `@id:{*} "flood"`}, "id flood -@state:{Resolved}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := buildQuery(tc.q); got != tc.want {
				t.Fatalf("buildQuery = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSummaryFromDoc(t *testing.T) {
	doc := redis.Document{
		ID: "search:incident:inc-1",
		Fields: map[string]string{
			"id":              "inc-1",
			"type":            "StreetFlooding",
			"state":           "Mitigating",
			"severity":        "Major",
			"latitude":        "51.5",
			"longitude":       "-0.1",
			"sensorStationId": "SENS-001",
			"responderId":     "RESP-001",
			"raisedAt":        "1740830400000",
			"updatedAt":       "1740830460000",
		},
	}
	sum, err := summaryFromDoc(doc)
	if err != nil {
		t.Fatalf("summaryFromDoc: %v", err)
	}
	if sum.ID != "inc-1" || sum.State != domain.StateMitigating || sum.Latitude != 51.5 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.RaisedAt.UnixMilli() != 1740830400000 {
		t.Fatalf("raisedAt = %v", sum.RaisedAt)
	}

	doc.Fields["latitude"] = "north"
	if _, err := summaryFromDoc(doc); err == nil {
		t.Fatal("malformed document accepted")
	}
}
