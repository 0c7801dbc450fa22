package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	txFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hcilink",
			Subsystem: "tx",
			Name:      "frames_total",
			Help:      "Command frames written to the transport.",
		},
		[]string{"opcode"},
	)
	txErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hcilink",
			Subsystem: "tx",
			Name:      "errors_total",
			Help:      "Command frames rejected or failed on write.",
		},
	)
	rxEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hcilink",
			Subsystem: "rx",
			Name:      "events_total",
			Help:      "Event frames delivered to the receive queue.",
		},
		[]string{"event"},
	)
	rxMalformed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hcilink",
			Subsystem: "rx",
			Name:      "malformed_total",
			Help:      "Inbound bytes or frames discarded by the feeder.",
		},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hcilink",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Events buffered in the receive queue.",
		},
	)
	queueWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hcilink",
			Subsystem: "queue",
			Name:      "wait_seconds",
			Help:      "Time spent in wait-and-pop by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)
)

// Wait outcomes recorded by RecordQueueWait.
const (
	WaitDelivered = "delivered"
	WaitTimeout   = "timeout"
	WaitClosed    = "closed"
	WaitCanceled  = "canceled"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(txFrames, txErrors, rxEvents, rxMalformed, queueDepth, queueWait)
	})
}

func RecordTxFrame(opcode uint16) {
	RegisterMetrics()
	txFrames.WithLabelValues(fmt.Sprintf("0x%04x", opcode)).Inc()
}

func RecordTxError() {
	RegisterMetrics()
	txErrors.Inc()
}

func RecordRxEvent(code uint8) {
	RegisterMetrics()
	rxEvents.WithLabelValues(fmt.Sprintf("0x%02x", code)).Inc()
}

func RecordRxMalformed() {
	RegisterMetrics()
	rxMalformed.Inc()
}

func SetQueueDepth(n int) {
	RegisterMetrics()
	queueDepth.Set(float64(n))
}

func RecordQueueWait(result string, d time.Duration) {
	RegisterMetrics()
	queueWait.WithLabelValues(result).Observe(d.Seconds())
}
