package middleware

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/uxnareal/audit-api/internal/domain/audits"
)

// Metrics holds process-wide request and pipeline counters.
type Metrics struct {
	requestsTotal      atomic.Uint64
	requestsInProgress atomic.Int64
	requestsSuccess    atomic.Uint64
	requestsFailed     atomic.Uint64
	analysesTotal      atomic.Uint64
	analysesRunning    atomic.Int64
	analysesCompleted  atomic.Uint64
	analysesFailed     atomic.Uint64
	startTime          time.Time
}

var globalMetrics = &Metrics{startTime: time.Now()}

// Snapshot is the /metrics payload.
type Snapshot struct {
	RequestsTotal      uint64     `json:"requests_total"`
	RequestsInProgress int64      `json:"requests_in_progress"`
	RequestsSuccess    uint64     `json:"requests_success"`
	RequestsFailed     uint64     `json:"requests_failed"`
	AnalysesTotal      uint64     `json:"analyses_total"`
	AnalysesRunning    int64      `json:"analyses_running"`
	AnalysesCompleted  uint64     `json:"analyses_completed"`
	AnalysesFailed     uint64     `json:"analyses_failed"`
	UptimeSeconds      float64    `json:"uptime_seconds"`
	Memory             MemorySnap `json:"memory"`
	Goroutines         int        `json:"goroutines"`
}

type MemorySnap struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
}

// AnalysisRecorder feeds pipeline lifecycle events into the global counters.
type AnalysisRecorder struct{}

func (AnalysisRecorder) AnalysisStarted() {
	globalMetrics.analysesTotal.Add(1)
	globalMetrics.analysesRunning.Add(1)
}

func (AnalysisRecorder) AnalysisFinished(s audits.Status) {
	globalMetrics.analysesRunning.Add(-1)
	switch s {
	case audits.StatusCompleted:
		globalMetrics.analysesCompleted.Add(1)
	case audits.StatusFailed:
		globalMetrics.analysesFailed.Add(1)
	}
}

// GetMetrics returns current metrics
func GetMetrics() Snapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	g := globalMetrics
	return Snapshot{
		RequestsTotal:      g.requestsTotal.Load(),
		RequestsInProgress: g.requestsInProgress.Load(),
		RequestsSuccess:    g.requestsSuccess.Load(),
		RequestsFailed:     g.requestsFailed.Load(),
		AnalysesTotal:      g.analysesTotal.Load(),
		AnalysesRunning:    g.analysesRunning.Load(),
		AnalysesCompleted:  g.analysesCompleted.Load(),
		AnalysesFailed:     g.analysesFailed.Load(),
		UptimeSeconds:      time.Since(g.startTime).Seconds(),
		Memory: MemorySnap{
			AllocBytes:      m.Alloc,
			TotalAllocBytes: m.TotalAlloc,
			SysBytes:        m.Sys,
			NumGC:           m.NumGC,
		},
		Goroutines: runtime.NumGoroutine(),
	}
}

// MetricsMiddleware counts requests; 4xx and 5xx responses are failures.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g := globalMetrics
		g.requestsTotal.Add(1)
		g.requestsInProgress.Add(1)
		defer g.requestsInProgress.Add(-1)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode < 400 {
			g.requestsSuccess.Add(1)
		} else {
			g.requestsFailed.Add(1)
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, GetMetrics())
}
