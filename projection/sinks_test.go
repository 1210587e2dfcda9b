package projection

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"roadwatch/domain"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func sampleSummary() domain.Summary {
	return domain.Summary{
		ID:              "inc-1",
		IncidentType:    "StreetFlooding",
		State:           domain.StateValidated,
		Severity:        domain.SeverityModerate,
		Latitude:        51.5,
		Longitude:       -0.1,
		SensorStationID: "SENS-001",
		ResponderID:     "RESP-001",
		RaisedAt:        raisedAt(0),
		UpdatedAt:       raisedAt(1),
	}
}

func TestCacheRefresherWritesEnvelope(t *testing.T) {
	mr, client := testRedis(t)
	refresher := NewCacheRefresher(client, time.Hour)
	cachedAt := raisedAt(5)
	refresher.now = func() time.Time { return cachedAt }

	sum := sampleSummary()
	if err := refresher.Apply(context.Background(), sum); err != nil {
		t.Fatalf("apply: %v", err)
	}

	raw, err := mr.Get(CacheKey("inc-1"))
	if err != nil {
		t.Fatalf("cache key missing: %v", err)
	}
	var payload CachedSummary
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if payload.Summary != sum {
		t.Fatalf("cached summary = %+v", payload.Summary)
	}
	if !payload.CachedAt.Equal(cachedAt) {
		t.Fatalf("cachedAt = %v", payload.CachedAt)
	}
	if ttl := mr.TTL(CacheKey("inc-1")); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestCacheRefresherDefaultTTL(t *testing.T) {
	_, client := testRedis(t)
	refresher := NewCacheRefresher(client, 0)
	if refresher.ttl != 12*time.Hour {
		t.Fatalf("default ttl = %v", refresher.ttl)
	}
}

func TestSearchIndexerWritesDocument(t *testing.T) {
	mr, client := testRedis(t)
	indexer := NewSearchIndexer(client)

	if err := indexer.Apply(context.Background(), sampleSummary()); err != nil {
		t.Fatalf("apply: %v", err)
	}

	key := SearchDocKey("inc-1")
	if got := mr.HGet(key, "state"); got != "Validated" {
		t.Fatalf("state field = %q", got)
	}
	if got := mr.HGet(key, "severity"); got != "Moderate" {
		t.Fatalf("severity field = %q", got)
	}
	if got := mr.HGet(key, "text"); got != "StreetFlooding SENS-001 RESP-001" {
		t.Fatalf("text field = %q", got)
	}
	if got := mr.HGet(key, "raisedAt"); got != strconv.FormatInt(raisedAt(0).UnixMilli(), 10) {
		t.Fatalf("raisedAt field = %q", got)
	}
}

func TestBroadcasterPublishesSnapshot(t *testing.T) {
	_, client := testRedis(t)
	broadcaster := NewBroadcaster(client, "incident-updates")
	ctx := context.Background()

	sub := client.Subscribe(ctx, "incident-updates")
	t.Cleanup(func() { _ = sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sum := sampleSummary()
	if err := broadcaster.Apply(ctx, sum); err != nil {
		t.Fatalf("apply: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var got domain.Summary
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got != sum {
		t.Fatalf("broadcast payload = %+v", got)
	}
}
