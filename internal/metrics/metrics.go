// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntriesIngested counts entries accepted into the buffer, by path ("tcp", "stream").
	EntriesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logdeck_entries_ingested_total",
			Help: "Total number of entries appended to the buffer",
		},
		[]string{"path"},
	)

	EntriesEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logdeck_entries_evicted_total",
			Help: "Total number of entries evicted by the retention bound",
		},
	)

	BufferEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logdeck_buffer_entries",
			Help: "Current number of entries in the buffer",
		},
	)

	// DecodeFailures counts documents or lines skipped during decoding, by path.
	DecodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logdeck_decode_failures_total",
			Help: "Total number of entry documents that failed to decode",
		},
		[]string{"path"},
	)

	// ProtocolErrors counts malformed or unknown socket envelopes.
	ProtocolErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logdeck_protocol_errors_total",
			Help: "Total number of ignored socket envelopes",
		},
	)

	// DeliveriesDropped counts observer events discarded on queue overflow.
	DeliveriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logdeck_observer_events_dropped_total",
			Help: "Total number of observer events dropped because a subscriber queue was full",
		},
	)

	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logdeck_subscribers",
			Help: "Current number of engine subscribers",
		},
	)

	TCPConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logdeck_tcp_connections",
			Help: "Current number of open socket listener connections",
		},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logdeck_websocket_clients",
			Help: "Current number of live stream websocket clients",
		},
	)
)
