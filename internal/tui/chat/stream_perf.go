package chat

import (
	"log/slog"
	"math"
	"os"
	"slices"
	"time"

	"github.com/samsaffron/gemchat/internal/ui"
)

const (
	streamPerfEnvSummary = "GEMCHAT_DEBUG_STREAM_PERF"
	streamPerfEnvTrace   = "GEMCHAT_DEBUG_STREAM_TRACE"
)

type streamPerfConfig struct {
	enabled bool
	trace   bool
}

func loadStreamPerfConfigFromEnv(getenv func(string) string) streamPerfConfig {
	trace := ui.EnvFlag(getenv, streamPerfEnvTrace)
	return streamPerfConfig{
		enabled: trace || ui.EnvFlag(getenv, streamPerfEnvSummary),
		trace:   trace,
	}
}

// durationCollector keeps every sample so percentiles are exact.
type durationCollector struct {
	samplesMicros []int64
	totalMicros   int64
	maxMicros     int64
}

type durationSummary struct {
	Count int
	Mean  time.Duration
	P50   time.Duration
	P95   time.Duration
	Max   time.Duration
}

func (c *durationCollector) Add(d time.Duration) {
	if d < 0 {
		return
	}
	micros := d.Microseconds()
	c.samplesMicros = append(c.samplesMicros, micros)
	c.totalMicros += micros
	c.maxMicros = max(c.maxMicros, micros)
}

func (c durationCollector) Summary() durationSummary {
	if len(c.samplesMicros) == 0 {
		return durationSummary{}
	}
	sorted := slices.Clone(c.samplesMicros)
	slices.Sort(sorted)
	return durationSummary{
		Count: len(sorted),
		Mean:  time.Duration(c.totalMicros/int64(len(sorted))) * time.Microsecond,
		P50:   time.Duration(percentileFromSortedMicros(sorted, 0.50)) * time.Microsecond,
		P95:   time.Duration(percentileFromSortedMicros(sorted, 0.95)) * time.Microsecond,
		Max:   time.Duration(c.maxMicros) * time.Microsecond,
	}
}

func percentileFromSortedMicros(sorted []int64, pct float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return sorted[0]
	}
	if pct >= 1 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(pct*float64(len(sorted)))) - 1
	rank = min(max(rank, 0), len(sorted)-1)
	return sorted[rank]
}

// streamPerfTelemetry measures how the TUI keeps up with one streamed reply.
// A nil telemetry is valid and records nothing.
type streamPerfTelemetry struct {
	cfg    streamPerfConfig
	logger *slog.Logger

	active      bool
	replies     int
	entryID     string
	startedAt   time.Time
	lastFrameAt time.Time

	updates   int
	textBytes int
	maxGap    time.Duration
	renders   durationCollector
}

func newStreamPerfTelemetry(cfg streamPerfConfig, logger *slog.Logger) *streamPerfTelemetry {
	if logger == nil {
		logger = slog.Default()
	}
	return &streamPerfTelemetry{cfg: cfg, logger: logger}
}

func newStreamPerfTelemetryFromEnv() *streamPerfTelemetry {
	cfg := loadStreamPerfConfigFromEnv(os.Getenv)
	if !cfg.enabled {
		return nil
	}
	return newStreamPerfTelemetry(cfg, nil)
}

func (t *streamPerfTelemetry) Enabled() bool {
	return t != nil && t.cfg.enabled
}

func (t *streamPerfTelemetry) Active() bool {
	return t.Enabled() && t.active
}

// StartReply begins measuring the streaming entry id.
func (t *streamPerfTelemetry) StartReply(entryID string, startedAt time.Time) {
	if !t.Enabled() {
		return
	}
	t.replies++
	t.active = true
	t.entryID = entryID
	t.startedAt = startedAt
	t.lastFrameAt = startedAt
	t.updates = 0
	t.textBytes = 0
	t.maxGap = 0
	t.renders = durationCollector{}
}

// RecordUpdate notes one update of the streaming entry.
func (t *streamPerfTelemetry) RecordUpdate(textLen int, at time.Time) {
	if !t.Active() {
		return
	}
	t.updates++
	t.textBytes = textLen
	t.maxGap = max(t.maxGap, at.Sub(t.lastFrameAt))
	t.lastFrameAt = at
	if t.cfg.trace {
		t.logger.Debug("stream update", "entry", t.entryID, "updates", t.updates, "bytes", textLen)
	}
}

// RecordRender notes how long rebuilding the viewport content took.
func (t *streamPerfTelemetry) RecordRender(d time.Duration) {
	if !t.Active() {
		return
	}
	t.renders.Add(d)
}

// EmitSummaryIfActive logs the reply summary and stops measuring.
func (t *streamPerfTelemetry) EmitSummaryIfActive(endedAt time.Time) {
	if !t.Active() {
		return
	}
	renders := t.renders.Summary()
	t.logger.Info("stream perf",
		"reply", t.replies,
		"entry", t.entryID,
		"duration", endedAt.Sub(t.startedAt).Round(time.Millisecond),
		"updates", t.updates,
		"text_bytes", t.textBytes,
		"max_gap", t.maxGap.Round(time.Millisecond),
		"renders", renders.Count,
		"render_p50", renders.P50,
		"render_p95", renders.P95,
		"render_max", renders.Max,
	)
	t.active = false
}
