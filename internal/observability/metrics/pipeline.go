package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/assistant-files/internal/core/domain"
)

// PipelineMetrics records attachment decoding and preview outcomes.
type PipelineMetrics struct {
	service string

	decodedTotal   *prometheus.CounterVec
	decodeDuration *prometheus.HistogramVec
	archiveMembers *prometheus.HistogramVec
	previewsTotal  *prometheus.CounterVec
	reissuesTotal  *prometheus.CounterVec
}

func NewPipelineMetrics(registerer prometheus.Registerer, service string) *PipelineMetrics {
	decodedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "attachments_decoded_total",
			Help:      "Total decode attempts by decoder and status.",
		},
		[]string{"service", "decoder", "status"},
	)
	decodeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "attachment_decode_duration_seconds",
			Help:      "Decode duration in seconds by decoder.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "decoder"},
	)
	archiveMembers := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "archive_members",
			Help:      "Non-directory members per expanded archive.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
		[]string{"service"},
	)
	previewsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "previews_total",
			Help:      "Rendered previews by kind and state.",
		},
		[]string{"service", "kind", "state"},
	)
	reissuesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "access_url_reissues_total",
			Help:      "Access URL reissue attempts by status.",
		},
		[]string{"service", "status"},
	)

	registerer.MustRegister(decodedTotal, decodeDuration, archiveMembers, previewsTotal, reissuesTotal)

	return &PipelineMetrics{
		service:        service,
		decodedTotal:   decodedTotal,
		decodeDuration: decodeDuration,
		archiveMembers: archiveMembers,
		previewsTotal:  previewsTotal,
		reissuesTotal:  reissuesTotal,
	}
}

func (m *PipelineMetrics) ObserveDecode(decoder string, duration time.Duration, err error) {
	if decoder == "" {
		decoder = "unknown"
	}
	m.decodedTotal.WithLabelValues(m.service, decoder, statusOf(err)).Inc()
	m.decodeDuration.WithLabelValues(m.service, decoder).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveArchive(members int) {
	m.archiveMembers.WithLabelValues(m.service).Observe(float64(members))
}

func (m *PipelineMetrics) ObservePreview(kind domain.PreviewKind, state domain.PreviewState) {
	m.previewsTotal.WithLabelValues(m.service, string(kind), string(state)).Inc()
}

func (m *PipelineMetrics) ObserveReissue(err error) {
	m.reissuesTotal.WithLabelValues(m.service, statusOf(err)).Inc()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
