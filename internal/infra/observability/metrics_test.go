package observability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/boddenberg/finanzen-bfa-go/internal/infra/observability"
)

func TestMetrics_ModelSnapshot(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrModelRequest("extract", "success")
	m.IncrModelRequest("extract", "success")
	m.IncrModelRequest("insights", "error")
	m.IncrModelRequest("shopping", "success")
	m.RecordTokens(300, 100)
	m.IncrCacheHit("session")
	m.IncrCacheHit("session")
	m.IncrCacheHit("session")
	m.IncrCacheMiss("session")
	m.IncrSnapshotDelivered()

	snap := m.GetModelSnapshot()

	assert.Equal(t, int64(4), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.FailedRequests)
	assert.InDelta(t, 0.25, snap.ErrorRate, 1e-9)
	assert.InDelta(t, 100.0, snap.AvgTokensPerRequest, 1e-9)
	assert.InDelta(t, 0.75, snap.SessionCacheHitRate, 1e-9)
	assert.Equal(t, int64(1), snap.SnapshotsDelivered)
}

func TestMetrics_EmptySnapshot(t *testing.T) {
	snap := observability.NewMetrics().GetModelSnapshot()

	assert.Zero(t, snap.TotalRequests)
	assert.Zero(t, snap.ErrorRate)
	assert.Zero(t, snap.SessionCacheHitRate)
}

func TestNewLogger_UnknownLevelFallsBack(t *testing.T) {
	logger := observability.NewLogger("chatty")

	assert.True(t, logger.Core().Enabled(0), "info enabled")
	assert.False(t, logger.Core().Enabled(-1), "debug disabled")
}
