// Package metrics keeps pipeline counters and exports them to Prometheus
// and as a JSON snapshot.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Internal counters, the source of truth for the JSON snapshot.
var (
	received     int64
	dropped      int64
	gated        int64
	matched      int64
	spoken       int64
	deduplicated int64
	speakFailed  int64
	lastSpoken   int64
)

var (
	promReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartnotifier_notifications_received_total",
		Help: "Notifications posted to the listener",
	})
	promDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartnotifier_notifications_dropped_total",
		Help: "Notifications dropped because the app label could not be resolved",
	})
	promGated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartnotifier_notifications_gated_total",
		Help: "Notifications not announced because of ringer mode, do-not-disturb or quiet hours",
	})
	promMatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smartnotifier_rule_matches_total",
		Help: "Notifications that matched a rule",
	})
	promSpeech = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smartnotifier_speech_total",
		Help: "Speech queue outcomes",
	}, []string{"outcome"})
	promSpeakDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "smartnotifier_speak_duration_seconds",
		Help:    "Time spent speaking one message",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
	})
)

func init() {
	prometheus.MustRegister(
		promReceived,
		promDropped,
		promGated,
		promMatched,
		promSpeech,
		promSpeakDuration,
	)
}

// IncReceived counts a notification posted to the listener.
func IncReceived() {
	atomic.AddInt64(&received, 1)
	promReceived.Inc()
}

// IncDropped counts a notification that could not be attributed to an app.
func IncDropped() {
	atomic.AddInt64(&dropped, 1)
	promDropped.Inc()
}

// IncGated counts a notification the gate kept silent.
func IncGated() {
	atomic.AddInt64(&gated, 1)
	promGated.Inc()
}

// IncMatched counts a rule match.
func IncMatched() {
	atomic.AddInt64(&matched, 1)
	promMatched.Inc()
}

// IncSpoken counts a message handed to the speaker and records how long it took.
func IncSpoken(d time.Duration) {
	atomic.AddInt64(&spoken, 1)
	atomic.StoreInt64(&lastSpoken, time.Now().Unix())
	promSpeech.WithLabelValues("spoken").Inc()
	promSpeakDuration.Observe(d.Seconds())
}

// IncDeduplicated counts a message skipped because it was already pending.
func IncDeduplicated() {
	atomic.AddInt64(&deduplicated, 1)
	promSpeech.WithLabelValues("deduplicated").Inc()
}

// IncSpeakFailed counts a speaker error or a speaker that never became ready.
func IncSpeakFailed() {
	atomic.AddInt64(&speakFailed, 1)
	promSpeech.WithLabelValues("failed").Inc()
}

// StatsSnapshot is a snapshot of the counters for JSON encoding.
type StatsSnapshot struct {
	Received     int64 `json:"received"`
	Dropped      int64 `json:"dropped"`
	Gated        int64 `json:"gated"`
	Matched      int64 `json:"matched"`
	Spoken       int64 `json:"spoken"`
	Deduplicated int64 `json:"deduplicated"`
	SpeakFailed  int64 `json:"speak_failed"`
	LastSpoken   int64 `json:"last_spoken_timestamp"`
}

// GetSnapshot returns the current counter values.
func GetSnapshot() StatsSnapshot {
	return StatsSnapshot{
		Received:     atomic.LoadInt64(&received),
		Dropped:      atomic.LoadInt64(&dropped),
		Gated:        atomic.LoadInt64(&gated),
		Matched:      atomic.LoadInt64(&matched),
		Spoken:       atomic.LoadInt64(&spoken),
		Deduplicated: atomic.LoadInt64(&deduplicated),
		SpeakFailed:  atomic.LoadInt64(&speakFailed),
		LastSpoken:   atomic.LoadInt64(&lastSpoken),
	}
}

// PromHandler exposes the Prometheus registry.
func PromHandler() http.Handler { return promhttp.Handler() }

// JSONHandler serves GetSnapshot as JSON.
func JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GetSnapshot())
	})
}
