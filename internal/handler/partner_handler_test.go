package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paris-agenda/service-promotion/internal/adapter"
	"github.com/paris-agenda/service-promotion/internal/application"
	activationDomain "github.com/paris-agenda/service-promotion/internal/domain/activation"
	"github.com/paris-agenda/service-promotion/internal/handler"
	"github.com/paris-agenda/service-promotion/internal/repository"
)

func newPartnerRouter(t *testing.T) (*gin.Engine, uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryActivationRepository()
	now := time.Now().UTC()
	start := now.Add(-48 * time.Hour)
	record := activationDomain.Reconstitute(
		uuid.New(),
		"evt_p1", "spotlight-week", "", "partner@example.com", "", "Nuit Electro", "",
		4900, "eur", nil,
		activationDomain.StatusFulfilled,
		"event-a", "spotlight",
		&start, &now, &start,
		"token-p1", "",
		start, start,
	)
	inserted, err := repo.InsertPending(context.Background(), record)
	require.NoError(t, err)
	require.True(t, inserted)

	engagement := adapter.NewStaticEngagementSource()
	engagement.Set("event-a", adapter.EngagementCounts{ClickCount: 100, OutboundClickCount: 25})

	stats := application.NewStatsService(repo, adapter.NewStaticEventCatalog(), engagement, zap.NewNop())

	r := gin.New()
	api := r.Group("/api/v1")
	handler.NewPartnerHandler(stats).RegisterRoutes(api)
	return r, record.ID()
}

func getStats(t *testing.T, r *gin.Engine, query string) application.StatsResult {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/partner/stats"+query, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// The partner page always gets a 200 and branches on the code.
	require.Equal(t, http.StatusOK, w.Code)
	var result application.StatsResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	return result
}

func TestPartnerStats_Success(t *testing.T) {
	router, id := newPartnerRouter(t)

	result := getStats(t, router, "?activation="+id.String()+"&token=token-p1")
	require.True(t, result.Success)
	require.NotNil(t, result.Snapshot)
	assert.Equal(t, "Nuit Electro", result.Snapshot.EventName)
	assert.InDelta(t, 25.0, result.Snapshot.OutboundRate, 0.001)
}

func TestPartnerStats_FailureCodes(t *testing.T) {
	router, id := newPartnerRouter(t)

	cases := []struct {
		name  string
		query string
		code  string
	}{
		{"unparsable id", "?activation=not-a-uuid&token=x", application.StatsCodeNotFound},
		{"unknown id", "?activation=" + uuid.New().String() + "&token=token-p1", application.StatsCodeNotFound},
		{"wrong token", "?activation=" + id.String() + "&token=nope", application.StatsCodeInvalidToken},
		{"missing token", "?activation=" + id.String(), application.StatsCodeInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := getStats(t, router, tc.query)
			assert.False(t, result.Success)
			assert.Equal(t, tc.code, result.Code)
			assert.Nil(t, result.Snapshot)
		})
	}
}
