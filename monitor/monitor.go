// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlineSessions    prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	MessagesReceived  *prometheus.CounterVec
	MessageLatency    prometheus.Histogram
	Guesses           *prometheus.CounterVec
	TurnSkips         *prometheus.CounterVec
	StrategyConflicts prometheus.Counter
	GamesFinished     prometheus.Counter
	GameDuration      prometheus.Histogram
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlineSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_sessions",
			Help:      "Number of connected websocket sessions",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of rooms with at least one connected session",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of client messages received",
		}, []string{"type"}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		Guesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guesses_total",
			Help:      "Guesses by outcome",
		}, []string{"outcome"}),
		TurnSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_skips_total",
			Help:      "Timeout skips by result (applied or aborted)",
		}, []string{"result"}),
		StrategyConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_conflicts_total",
			Help:      "Strategy board updates rejected for a stale version",
		}),
		GamesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Games that reached the finished state",
		}),
		GameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "game_duration_seconds",
			Help:      "Wall time from room creation to finish",
			Buckets:   prometheus.ExponentialBuckets(30, 2, 8),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.OnlineSessions,
			m.ActiveRooms,
			m.MessagesReceived,
			m.MessageLatency,
			m.Guesses,
			m.TurnSkips,
			m.StrategyConflicts,
			m.GamesFinished,
			m.GameDuration,
		)
	}

	return m
}

// Monitor 指标入口。nil *Monitor 的所有方法都是空操作
type Monitor struct {
	metrics      *Metrics
	gatherer     prometheus.Gatherer
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
}

// NewMonitor registers its metrics on a fresh registry.
func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Monitor{
		metrics:   NewMetrics(namespace, reg),
		gatherer:  reg,
		startTime: time.Now(),
	}
}

var publishOnce sync.Once

// Handler 返回 /metrics 处理器，并发布 expvar 指标
func (m *Monitor) Handler() http.Handler {
	// 添加expvar指标
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))

		expvar.Publish("requests", expvar.Func(func() interface{} {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			return m.requestCount
		}))
	})
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Metrics exposes the collectors, mainly for tests.
func (m *Monitor) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

func (m *Monitor) IncOnlineSessions() {
	if m == nil {
		return
	}
	m.metrics.OnlineSessions.Inc()
}

func (m *Monitor) DecOnlineSessions() {
	if m == nil {
		return
	}
	m.metrics.OnlineSessions.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	if m == nil {
		return
	}
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) IncMessagesReceived(msgType string) {
	if m == nil {
		return
	}
	m.metrics.MessagesReceived.WithLabelValues(msgType).Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	if m == nil {
		return
	}
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

// IncGuess records a committed guess; outcome is "hit" or "miss".
func (m *Monitor) IncGuess(outcome string) {
	if m == nil {
		return
	}
	m.metrics.Guesses.WithLabelValues(outcome).Inc()
}

// IncTurnSkip records a fenced skip; result is "applied" or "aborted".
func (m *Monitor) IncTurnSkip(result string) {
	if m == nil {
		return
	}
	m.metrics.TurnSkips.WithLabelValues(result).Inc()
}

func (m *Monitor) IncStrategyConflict() {
	if m == nil {
		return
	}
	m.metrics.StrategyConflicts.Inc()
}

func (m *Monitor) ObserveGameFinished(duration time.Duration) {
	if m == nil {
		return
	}
	m.metrics.GamesFinished.Inc()
	m.metrics.GameDuration.Observe(duration.Seconds())
}
