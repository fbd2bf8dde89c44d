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

// CatalogEvent is the slice of event-catalog metadata this service needs.
type CatalogEvent struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// EventCatalog is the Anti-Corruption Layer interface for the external event
// catalog. The catalog itself (listings, maps, admin forms) lives in another
// service; this module only resolves keys.
type EventCatalog interface {
	// Resolve returns the catalog event for key, or a not_found domain error.
	Resolve(ctx context.Context, key string) (*CatalogEvent, error)
}

// HTTPEventCatalog resolves event keys against the catalog service's REST API.
type HTTPEventCatalog struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPEventCatalog creates a catalog client for the given base URL.
func NewHTTPEventCatalog(baseURL string, logger *zap.Logger) *HTTPEventCatalog {
	return &HTTPEventCatalog{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
	}
}

// Resolve fetches GET <base>/api/v1/events/<key>.
func (c *HTTPEventCatalog) Resolve(ctx context.Context, key string) (*CatalogEvent, error) {
	endpoint := fmt.Sprintf("%s/api/v1/events/%s", c.baseURL, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.NewUnavailableError("event catalog", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var event CatalogEvent
		if err := json.NewDecoder(resp.Body).Decode(&event); err != nil {
			return nil, domain.NewUnavailableError("event catalog", err)
		}
		return &event, nil
	case http.StatusNotFound:
		return nil, domain.NewNotFoundError("catalog event", key)
	default:
		c.logger.Warn("unexpected catalog response",
			zap.String("event_key", key),
			zap.Int("status", resp.StatusCode),
		)
		return nil, domain.NewUnavailableError("event catalog", fmt.Errorf("status %d", resp.StatusCode))
	}
}

// StaticEventCatalog is an in-memory catalog for development and tests.
type StaticEventCatalog struct {
	mu     sync.RWMutex
	events map[string]CatalogEvent
}

// NewStaticEventCatalog creates a catalog pre-populated with the given events.
func NewStaticEventCatalog(events ...CatalogEvent) *StaticEventCatalog {
	m := make(map[string]CatalogEvent, len(events))
	for _, e := range events {
		m[e.Key] = e
	}
	return &StaticEventCatalog{events: m}
}

// Add registers an event under its key.
func (c *StaticEventCatalog) Add(event CatalogEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[event.Key] = event
}

// Resolve returns the stored event or a not_found domain error.
func (c *StaticEventCatalog) Resolve(_ context.Context, key string) (*CatalogEvent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	event, ok := c.events[key]
	if !ok {
		return nil, domain.NewNotFoundError("catalog event", key)
	}
	return &event, nil
}
