/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ExecutionsTotal counts executions entering each terminal or
	// intermediate status.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_executions_total",
		Help: "Executions by status transition.",
	}, []string{"status"})

	// ConnectedStreams tracks relayer streams owned by this pod.
	ConnectedStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connected_streams",
		Help: "Relayer streams currently registered on this pod.",
	})

	// QueueDepth mirrors redis list lengths, refreshed by the maintenance
	// cron.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_queue_depth",
		Help: "Depth of each work queue.",
	}, []string{"queue"})

	// InboundFramesTotal counts frames received from relayers.
	InboundFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_inbound_frames_total",
		Help: "Frames received from relayers by type.",
	}, []string{"type"})
)

// Handler exposes the default registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
