package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paris-agenda/service-promotion/internal/domain"
)

// EngagementCounts holds the window-scoped counters the partner stats page
// renders.
type EngagementCounts struct {
	ClickCount         int64 `json:"click_count"`
	OutboundClickCount int64 `json:"outbound_click_count"`
	CalendarSyncCount  int64 `json:"calendar_sync_count"`
	UniqueSessionCount int64 `json:"unique_session_count"`
}

// EngagementSource is the Anti-Corruption Layer interface for the external
// engagement-counter collaborator.
type EngagementSource interface {
	// WindowCounts returns counters for an event key within [start, end).
	WindowCounts(ctx context.Context, eventKey, tier string, start, end time.Time) (*EngagementCounts, error)
}

// HTTPEngagementSource queries the analytics service's REST API.
type HTTPEngagementSource struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPEngagementSource creates an engagement client for the given base URL.
func NewHTTPEngagementSource(baseURL string, logger *zap.Logger) *HTTPEngagementSource {
	return &HTTPEngagementSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
	}
}

// WindowCounts fetches GET <base>/api/v1/engagement/<key>?tier=&from=&to=.
func (s *HTTPEngagementSource) WindowCounts(ctx context.Context, eventKey, tier string, start, end time.Time) (*EngagementCounts, error) {
	endpoint := fmt.Sprintf("%s/api/v1/engagement/%s?tier=%s&from=%s&to=%s",
		s.baseURL,
		url.PathEscape(eventKey),
		url.QueryEscape(tier),
		url.QueryEscape(start.UTC().Format(time.RFC3339)),
		url.QueryEscape(end.UTC().Format(time.RFC3339)),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.NewUnavailableError("engagement source", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("unexpected engagement response",
			zap.String("event_key", eventKey),
			zap.Int("status", resp.StatusCode),
		)
		return nil, domain.NewUnavailableError("engagement source", fmt.Errorf("status %d", resp.StatusCode))
	}

	var counts EngagementCounts
	if err := json.NewDecoder(resp.Body).Decode(&counts); err != nil {
		return nil, domain.NewUnavailableError("engagement source", err)
	}
	return &counts, nil
}

// StaticEngagementSource serves fixed counters for development and tests.
type StaticEngagementSource struct {
	mu     sync.RWMutex
	counts map[string]EngagementCounts
	err    error
}

// NewStaticEngagementSource creates an empty static source. Unknown keys
// resolve to zero counters, matching a freshly promoted event.
func NewStaticEngagementSource() *StaticEngagementSource {
	return &StaticEngagementSource{counts: map[string]EngagementCounts{}}
}

// Set installs counters for an event key.
func (s *StaticEngagementSource) Set(eventKey string, counts EngagementCounts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[eventKey] = counts
}

// Fail makes every subsequent call return err (tests).
func (s *StaticEngagementSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// WindowCounts returns the stored counters for eventKey.
func (s *StaticEngagementSource) WindowCounts(_ context.Context, eventKey, _ string, _, _ time.Time) (*EngagementCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	counts := s.counts[eventKey]
	return &counts, nil
}
