package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timeline_sessions_active",
		Help: "Currently open generation session channels",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_sessions_total",
		Help: "Total session channels opened",
	})

	FramesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_frames_routed_total",
		Help: "Inbound frames by routed envelope kind (raw = generic log append)",
	}, []string{"kind"})

	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_frames_dropped_total",
		Help: "Inbound frames discarded without state changes",
	}, []string{"reason"})

	ChannelFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_channel_failures_total",
		Help: "Push channels that ended in a transport error",
	})

	ExportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_exports_total",
		Help: "Raw-log export downloads served",
	})

	ArchiveWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_archive_writes_total",
		Help: "Archive persistence attempts by outcome",
	}, []string{"status"})
)
