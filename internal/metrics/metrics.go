// Package metrics holds the Prometheus collectors for the ingestion pipeline.
// All methods are safe on a nil *Registry, which records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Registry struct {
	Created        *prometheus.CounterVec
	Failed         *prometheus.CounterVec
	QueueDropped   *prometheus.CounterVec
	Nulled         *prometheus.CounterVec
	URLsIssued     *prometheus.CounterVec
	OrphanCleanups *prometheus.CounterVec
}

// NewRegistry creates the collectors and registers them with reg.
func NewRegistry(reg prometheus.Registerer) (*Registry, error) {
	r := &Registry{
		Created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_entities_created_total",
			Help: "Entities created, by kind and entry point.",
		}, []string{"kind", "source"}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_failures_total",
			Help: "Failed create attempts, by kind, entry point and error class.",
		}, []string{"kind", "source", "reason"}),
		QueueDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_messages_dropped_total",
			Help: "Queue messages logged and dropped without creating an entity.",
		}, []string{"kind", "reason"}),
		Nulled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrichment_refs_nulled_total",
			Help: "Attachment references found dangling during enrichment.",
		}, []string{"kind"}),
		URLsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrichment_urls_issued_total",
			Help: "Read URLs issued for attachments.",
		}, []string{"kind"}),
		OrphanCleanups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_attachment_cleanups_total",
			Help: "Compensating attachment deletions after a failed create, by outcome.",
		}, []string{"kind", "outcome"}),
	}
	for _, c := range []prometheus.Collector{r.Created, r.Failed, r.QueueDropped, r.Nulled, r.URLsIssued, r.OrphanCleanups} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) EntityCreated(kind, source string) {
	if r == nil {
		return
	}
	r.Created.WithLabelValues(kind, source).Inc()
}

func (r *Registry) CreateFailed(kind, source, reason string) {
	if r == nil {
		return
	}
	r.Failed.WithLabelValues(kind, source, reason).Inc()
}

func (r *Registry) MessageDropped(kind, reason string) {
	if r == nil {
		return
	}
	r.QueueDropped.WithLabelValues(kind, reason).Inc()
}

func (r *Registry) RefNulled(kind string) {
	if r == nil {
		return
	}
	r.Nulled.WithLabelValues(kind).Inc()
}

func (r *Registry) URLIssued(kind string) {
	if r == nil {
		return
	}
	r.URLsIssued.WithLabelValues(kind).Inc()
}

func (r *Registry) AttachmentCleanup(kind string, ok bool) {
	if r == nil {
		return
	}
	outcome := "deleted"
	if !ok {
		outcome = "failed"
	}
	r.OrphanCleanups.WithLabelValues(kind, outcome).Inc()
}
