package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BridgeFramesLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_frames_lost_total",
		Help: "Inbound phone frames replaced with silence",
	})

	BridgeJitterDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_jitter_dropped_total",
		Help: "Outbound frames dropped by the jitter buffer over its threshold",
	})

	BridgeResubscribes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_room_resubscribes_total",
		Help: "Room subscription recoveries after a room-side fault",
	})

	ActiveBridges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_sessions_active",
		Help: "Bridge sessions currently pairing a phone leg to a room",
	})

	MixerClippedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mixer_clipped_frames_total",
		Help: "Master bus frames that hit the compressor ceiling",
	})

	ReconcileRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_repairs_total",
		Help: "Drift repairs applied by the reconciliation sweep",
	})

	ReconcileFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_failures_total",
		Help: "Reconciliation repairs that did not succeed",
	})
)
