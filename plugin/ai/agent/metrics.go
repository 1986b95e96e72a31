package agent

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/officialmortgage/livbridge/plugin/ai"
)

// TurnMetrics collects turn, chat and tool metrics.
// All operations are safe for concurrent use.
type TurnMetrics struct {
	mu sync.RWMutex

	turnDuration       []time.Duration
	roundCount         []int
	maxDurationSamples int

	turnsByOutcome map[OutcomeKind]*atomic.Int64
	turnsByChannel map[string]*atomic.Int64

	toolCalls    map[string]*atomic.Int64
	toolFailures map[string]*atomic.Int64
	toolLatency  map[string][]time.Duration

	transientErrors atomic.Int64
	permanentErrors atomic.Int64

	clipHits     atomic.Int64
	clipMisses   atomic.Int64
	sayFallbacks atomic.Int64
}

// NewTurnMetrics creates a new metrics collector.
func NewTurnMetrics() *TurnMetrics {
	return &TurnMetrics{
		turnDuration:       make([]time.Duration, 0, 100),
		roundCount:         make([]int, 0, 100),
		maxDurationSamples: 100,
		turnsByOutcome:     make(map[OutcomeKind]*atomic.Int64),
		turnsByChannel:     make(map[string]*atomic.Int64),
		toolCalls:          make(map[string]*atomic.Int64),
		toolFailures:       make(map[string]*atomic.Int64),
		toolLatency:        make(map[string][]time.Duration),
	}
}

// RecordTurn records a completed turn.
func (m *TurnMetrics) RecordTurn(channel string, kind OutcomeKind, duration time.Duration, rounds int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counter(m.turnsByOutcome, kind).Add(1)
	counter(m.turnsByChannel, channel).Add(1)

	// Keep only the last N samples
	if len(m.turnDuration) >= m.maxDurationSamples {
		m.turnDuration = m.turnDuration[1:]
		m.roundCount = m.roundCount[1:]
	}
	m.turnDuration = append(m.turnDuration, duration)
	m.roundCount = append(m.roundCount, rounds)
}

// RecordToolCall records a tool execution attempt.
func (m *TurnMetrics) RecordToolCall(tool string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counter(m.toolCalls, tool).Add(1)
	if !success {
		counter(m.toolFailures, tool).Add(1)
	}

	// Track latency (keep last 50 samples)
	if len(m.toolLatency[tool]) >= 50 {
		m.toolLatency[tool] = m.toolLatency[tool][1:]
	}
	m.toolLatency[tool] = append(m.toolLatency[tool], duration)
}

// RecordChatFailure records a failed model round by its error class.
func (m *TurnMetrics) RecordChatFailure(err error) {
	if err == nil {
		return
	}
	switch ai.ClassifyError(err).Class {
	case ai.ErrorClassTransient:
		m.transientErrors.Add(1)
	default:
		m.permanentErrors.Add(1)
	}
}

// RecordClip records whether rendered speech was served from a synthesized clip.
func (m *TurnMetrics) RecordClip(synthesized bool) {
	if synthesized {
		m.clipHits.Add(1)
	} else {
		m.clipMisses.Add(1)
	}
}

// RecordSayFallback records a reply spoken with the built-in voice because synthesis failed.
func (m *TurnMetrics) RecordSayFallback() {
	m.sayFallbacks.Add(1)
}

func counter[K comparable](m map[K]*atomic.Int64, key K) *atomic.Int64 {
	c := m[key]
	if c == nil {
		c = &atomic.Int64{}
		m[key] = c
	}
	return c
}

// ToolStats represents statistics for a single tool.
type ToolStats struct {
	Name           string        `json:"name"`
	TotalCalls     int64         `json:"totalCalls"`
	Failures       int64         `json:"failures"`
	SuccessRate    float64       `json:"successRate"`
	AverageLatency time.Duration `json:"averageLatency"`
}

// MetricsSummary represents a summary of all metrics.
type MetricsSummary struct {
	Turns           int64            `json:"turns"`
	TurnsByOutcome  map[string]int64 `json:"turnsByOutcome"`
	TurnsByChannel  map[string]int64 `json:"turnsByChannel"`
	AverageDuration time.Duration    `json:"averageDuration"`
	P95Duration     time.Duration    `json:"p95Duration"`
	AverageRounds   float64          `json:"averageRounds"`
	Tools           []ToolStats      `json:"tools"`
	TransientErrors int64            `json:"transientErrors"`
	PermanentErrors int64            `json:"permanentErrors"`
	ClipHits        int64            `json:"clipHits"`
	ClipMisses      int64            `json:"clipMisses"`
	SayFallbacks    int64            `json:"sayFallbacks"`
}

// GetSummary returns a summary of all metrics.
func (m *TurnMetrics) GetSummary() MetricsSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := MetricsSummary{
		TurnsByOutcome:  make(map[string]int64, len(m.turnsByOutcome)),
		TurnsByChannel:  make(map[string]int64, len(m.turnsByChannel)),
		TransientErrors: m.transientErrors.Load(),
		PermanentErrors: m.permanentErrors.Load(),
		ClipHits:        m.clipHits.Load(),
		ClipMisses:      m.clipMisses.Load(),
		SayFallbacks:    m.sayFallbacks.Load(),
	}
	for k, c := range m.turnsByOutcome {
		s.TurnsByOutcome[string(k)] = c.Load()
		s.Turns += c.Load()
	}
	for k, c := range m.turnsByChannel {
		s.TurnsByChannel[k] = c.Load()
	}

	if n := len(m.turnDuration); n > 0 {
		var sum time.Duration
		var rounds int
		for i, d := range m.turnDuration {
			sum += d
			rounds += m.roundCount[i]
		}
		s.AverageDuration = sum / time.Duration(n)
		s.AverageRounds = float64(rounds) / float64(n)

		sorted := append([]time.Duration(nil), m.turnDuration...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		idx := int(float64(n) * 0.95)
		if idx >= n {
			idx = n - 1
		}
		s.P95Duration = sorted[idx]
	}

	s.Tools = make([]ToolStats, 0, len(m.toolCalls))
	for tool, calls := range m.toolCalls {
		stats := ToolStats{Name: tool, TotalCalls: calls.Load()}
		if f := m.toolFailures[tool]; f != nil {
			stats.Failures = f.Load()
		}
		if stats.TotalCalls > 0 {
			stats.SuccessRate = 100 - (float64(stats.Failures) / float64(stats.TotalCalls) * 100)
		}
		if latencies := m.toolLatency[tool]; len(latencies) > 0 {
			var sum time.Duration
			for _, l := range latencies {
				sum += l
			}
			stats.AverageLatency = sum / time.Duration(len(latencies))
		}
		s.Tools = append(s.Tools, stats)
	}
	sort.Slice(s.Tools, func(i, j int) bool { return s.Tools[i].Name < s.Tools[j].Name })

	return s
}

// LogSummary logs the current metrics summary.
func (m *TurnMetrics) LogSummary() {
	summary := m.GetSummary()
	slog.Info("turn_metrics_summary",
		"turns", summary.Turns,
		"avg_duration_ms", summary.AverageDuration.Milliseconds(),
		"p95_duration_ms", summary.P95Duration.Milliseconds(),
		"avg_rounds", fmtFloat(summary.AverageRounds),
		"transient_errors", summary.TransientErrors,
		"permanent_errors", summary.PermanentErrors,
		"say_fallbacks", summary.SayFallbacks,
	)
}

// fmtFloat formats a float value with 2 decimal places.
func fmtFloat(f float64) string {
	return fmt.Sprintf("%.2f", f)
}
