package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_runs_started_total",
			Help: "Total number of research runs started",
		},
		[]string{"mode"},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_runs_completed_total",
			Help: "Total number of research runs completed",
		},
		[]string{"mode", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepresearch_run_duration_seconds",
			Help:    "Research run duration in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"mode"},
	)

	// Topic metrics
	TopicsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_topics_completed_total",
			Help: "Total number of topics that reached a terminal state",
		},
		[]string{"outcome"},
	)

	TopicDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepresearch_topic_duration_seconds",
			Help:    "Per-topic research duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	SubTopicsSpawned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepresearch_subtopics_spawned_total",
			Help: "Total number of sub-topics spawned by workers",
		},
	)

	QueuePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deepresearch_queue_pending",
			Help: "Pending topics in the queue",
		},
	)

	QueueActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deepresearch_queue_active",
			Help: "Topics currently held by workers",
		},
	)

	// Citation metrics
	CitationsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_citations_recorded_total",
			Help: "Total raw citation uses recorded",
		},
		[]string{"phase"},
	)

	CitationSources = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepresearch_citation_sources_per_run",
			Help:    "Deduplicated source count per run",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		},
	)

	// Tool metrics
	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_tool_invocations_total",
			Help: "Tool adapter invocations",
		},
		[]string{"tool", "status"},
	)

	// LLM metrics
	LLMInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_llm_invocations_total",
			Help: "Model service invocations",
		},
		[]string{"status"},
	)

	LLMLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepresearch_llm_latency_seconds",
			Help:    "Model service call latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Streaming metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_events_published_total",
			Help: "Progress events published to the streaming manager",
		},
		[]string{"type"},
	)
)
