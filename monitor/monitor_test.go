package monitor

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_NilIsNoop(t *testing.T) {
	var m *Monitor
	m.IncOnlineSessions()
	m.DecOnlineSessions()
	m.SetActiveRooms(3)
	m.IncMessagesReceived("make_guess")
	m.ObserveMessageLatency(time.Millisecond)
	m.IncGuess("hit")
	m.IncTurnSkip("applied")
	m.IncStrategyConflict()
	m.ObserveGameFinished(time.Minute)
	assert.Nil(t, m.Metrics())
}

func TestMonitor_Counters(t *testing.T) {
	m := NewMonitor("test")

	m.IncGuess("miss")
	m.IncGuess("miss")
	m.IncGuess("hit")
	m.IncTurnSkip("aborted")
	m.IncStrategyConflict()
	m.IncOnlineSessions()
	m.IncOnlineSessions()
	m.DecOnlineSessions()

	metrics := m.Metrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Guesses.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Guesses.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TurnSkips.WithLabelValues("aborted")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.TurnSkips.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StrategyConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OnlineSessions))
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor("bullscows")
	m.IncMessagesReceived("get_room_state")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `bullscows_messages_received_total{type="get_room_state"} 1`))
}

func TestNewMetrics_WithoutRegisterer(t *testing.T) {
	m := NewMetrics("x", nil)
	m.StrategyConflicts.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StrategyConflicts))

	reg := prometheus.NewRegistry()
	NewMetrics("y", reg)
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
