// Package metrics holds the Prometheus collectors for the document, notification and CRM paths.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PipelineOutcomes       *prometheus.CounterVec
	ExtractionConfidence   prometheus.Histogram
	OCRDuration            *prometheus.HistogramVec
	NotificationsGenerated *prometheus.CounterVec
	DispatchResults        *prometheus.CounterVec
	CRMSyncs               *prometheus.CounterVec
	JobRuns                *prometheus.CounterVec
}

// New registers every collector on reg. Tests pass prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PipelineOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_documents_processed_total",
			Help: "Documents that reached a terminal state, by status",
		}, []string{"status"}),
		ExtractionConfidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "compliance_extraction_confidence",
			Help:    "Overall extraction confidence per processed document",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		OCRDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compliance_ocr_duration_seconds",
			Help:    "OCR duration per document",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"backend"}),
		NotificationsGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_notifications_generated_total",
			Help: "Notifications inserted by the generator, by type",
		}, []string{"type"}),
		DispatchResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_notifications_dispatched_total",
			Help: "Notification delivery attempts, by result",
		}, []string{"result"}),
		CRMSyncs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_crm_sync_total",
			Help: "CRM sync attempts",
		}, []string{"provider", "operation", "status"}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_scheduler_job_runs_total",
			Help: "Scheduler job runs, by job and result (ran, skipped, failed)",
		}, []string{"job", "result"}),
	}
}

func (m *Metrics) DocumentProcessed(status string, confidence *float64) {
	if m == nil {
		return
	}
	m.PipelineOutcomes.WithLabelValues(status).Inc()
	if confidence != nil {
		m.ExtractionConfidence.Observe(*confidence)
	}
}

// ObserveOCR records the duration of one OCR run started at start.
func (m *Metrics) ObserveOCR(backend string, start time.Time) {
	if m == nil {
		return
	}
	m.OCRDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}

func (m *Metrics) NotificationGenerated(notificationType string) {
	if m == nil {
		return
	}
	m.NotificationsGenerated.WithLabelValues(notificationType).Inc()
}

func (m *Metrics) Dispatched(result string) {
	if m == nil {
		return
	}
	m.DispatchResults.WithLabelValues(result).Inc()
}

func (m *Metrics) CRMSync(provider, operation, status string) {
	if m == nil {
		return
	}
	m.CRMSyncs.WithLabelValues(provider, operation, status).Inc()
}

func (m *Metrics) JobRun(job, result string) {
	if m == nil {
		return
	}
	m.JobRuns.WithLabelValues(job, result).Inc()
}
