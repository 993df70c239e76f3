package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "imagetolink"

var (
	// PasteSessions counts settled paste sessions by outcome.
	PasteSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "paste_sessions_total",
		Help:      "Paste sessions by final outcome.",
	}, []string{"outcome"})

	// UploadsInFlight tracks uploads whose placeholder is still pending.
	UploadsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uploads_in_flight",
		Help:      "Uploads started but not yet settled.",
	})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Upload requests by outcome.",
	}, []string{"outcome"})

	UploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upload_duration_seconds",
		Help:      "Round trip time of upload requests.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	// HostUploads counts images received by the bundled image host.
	HostUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "host_uploads_total",
		Help:      "Images received by the image host by result.",
	}, []string{"result"})

	HostStoredBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "host_stored_bytes_total",
		Help:      "Bytes written to the blob directory (deduplicated blobs excluded).",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
