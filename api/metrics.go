package api

import (
	"time"

	log "github.com/sirupsen/logrus"
)

type searchRequestMetrics struct {
	logger         *log.Logger
	start          time.Time
	searchDuration time.Duration
	itemsReturned  int
	errorStage     string
}

func newSearchRequestMetrics(logger *log.Logger) *searchRequestMetrics {
	return &searchRequestMetrics{
		logger: logger,
		start:  time.Now(),
	}
}

func (m *searchRequestMetrics) ObserveSearch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.searchDuration = duration
}

func (m *searchRequestMetrics) SetItemsReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.itemsReturned = count
}

func (m *searchRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *searchRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":          "/api/search",
		"status":         status,
		"total_ms":       durationToMillis(time.Since(m.start)),
		"items_returned": m.itemsReturned,
	}

	if m.searchDuration > 0 {
		fields["search_ms"] = durationToMillis(m.searchDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("search.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
