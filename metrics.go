package jdfs

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for a Connection. A nil *Metrics
// records nothing.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	bytesUploaded   prometheus.Counter
	bytesDownloaded prometheus.Counter
	promptsTotal    *prometheus.CounterVec
	orphansTotal    prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jdfs_store_requests_total",
				Help: "Total number of object store requests",
			},
			[]string{"method", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jdfs_store_request_duration_seconds",
				Help:    "Object store request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		bytesUploaded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jdfs_content_bytes_uploaded_total",
				Help: "Total plaintext bytes written to file content objects",
			},
		),
		bytesDownloaded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jdfs_content_bytes_downloaded_total",
				Help: "Total plaintext bytes read from file content objects",
			},
		),
		promptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jdfs_password_prompts_total",
				Help: "Password callback invocations by outcome",
			},
			[]string{"result"},
		),
		orphansTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jdfs_orphaned_pointers_total",
				Help: "Pointer objects left behind by failed uploads",
			},
		),
	}
}

// recordRequest records one store round trip. status 0 means the transport
// failed before a response arrived.
func (m *Metrics) recordRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.requestsTotal.WithLabelValues(method, code).Inc()
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) recordUpload(n int64) {
	if m == nil {
		return
	}
	m.bytesUploaded.Add(float64(n))
}

func (m *Metrics) recordDownload(n int64) {
	if m == nil {
		return
	}
	m.bytesDownloaded.Add(float64(n))
}

// recordPrompt records a password callback: "supplied" or "declined".
func (m *Metrics) recordPrompt(result string) {
	if m == nil {
		return
	}
	m.promptsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) recordOrphan() {
	if m == nil {
		return
	}
	m.orphansTotal.Inc()
}
