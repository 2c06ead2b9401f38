package monitoring

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// KubernetesLabels holds Kubernetes metadata labels
var (
	kubernetesNamespace = os.Getenv("KUBERNETES_NAMESPACE")
	kubernetesPodName   = os.Getenv("KUBERNETES_POD_NAME")
	helmReleaseName     = os.Getenv("HELM_RELEASE_NAME")
	helmChartVersion    = os.Getenv("HELM_CHART_VERSION")
)

// getKubernetesLabels returns the Kubernetes labels for metrics
func getKubernetesLabels() prometheus.Labels {
	labels := prometheus.Labels{}

	if kubernetesNamespace != "" {
		labels["kubernetes_namespace"] = kubernetesNamespace
	}
	if kubernetesPodName != "" {
		labels["kubernetes_pod_name"] = kubernetesPodName
	}
	if helmReleaseName != "" {
		labels["helm_release"] = helmReleaseName
	}
	if helmChartVersion != "" {
		labels["helm_chart_version"] = helmChartVersion
	}

	return labels
}

// factory registers on the default registry so promhttp.Handler exposes everything
var factory = promauto.With(prometheus.WrapRegistererWith(getKubernetesLabels(), prometheus.DefaultRegisterer))

// Prometheus metrics for the payload gateway
var (
	// HTTP Request metrics
	RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgw_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgw_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	ActiveConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgw_active_connections",
			Help: "Number of active connections",
		},
	)

	// Payload metrics
	PayloadsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgw_payloads_total",
			Help: "Total number of request payloads read, by output mode, mime and outcome",
		},
		[]string{"output", "mime", "outcome"},
	)

	PayloadDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgw_payload_duration_seconds",
			Help:    "Time spent reading and materializing request payloads",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 60},
		},
		[]string{"output"},
	)

	// Data transfer metrics
	BytesTransferred = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgw_bytes_transferred_total",
			Help: "Total decoded payload bytes",
		},
		[]string{"direction", "output"},
	)

	// Persistence metrics
	FilesPersistedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgw_files_persisted_total",
			Help: "Total number of payload files written",
		},
		[]string{"status"},
	)

	FileBytesWritten = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pgw_file_bytes_written_total",
			Help: "Total bytes written to payload files",
		},
	)

	// Multipart metrics
	MultipartPartsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgw_multipart_parts_total",
			Help: "Total number of multipart parts and fields consumed",
		},
		[]string{"kind"},
	)

	MultipartPendingWrites = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgw_multipart_pending_writes",
			Help: "Number of multipart part writes in flight",
		},
	)

	// Fail action metrics
	FailActionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgw_fail_actions_total",
			Help: "Total number of payload failures routed through the fail action",
		},
		[]string{"action", "kind"},
	)

	// Server metrics
	ServerInfo = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pgw_server_info",
			Help: "Server build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetServerInfo sets server build information
func SetServerInfo(version, commit, buildTime string) {
	ServerInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// RecordPayload records the outcome of reading one request payload
func RecordPayload(output, mime, outcome string, duration time.Duration) {
	if mime == "" {
		mime = "none"
	}
	PayloadsTotal.WithLabelValues(output, mime, outcome).Inc()
	PayloadDuration.WithLabelValues(output).Observe(duration.Seconds())
}

// RecordBytesTransferred records data transfer metrics
func RecordBytesTransferred(direction, output string, bytes int64) {
	BytesTransferred.WithLabelValues(direction, output).Add(float64(bytes))
}

// RecordFilePersisted records one completed file write
func RecordFilePersisted(status string, bytes int64) {
	FilesPersistedTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		FileBytesWritten.Add(float64(bytes))
	}
}

// RecordMultipartPart records a consumed part or field
func RecordMultipartPart(kind string) {
	MultipartPartsTotal.WithLabelValues(kind).Inc()
}

// RecordFailAction records a failure handled by the fail action policy
func RecordFailAction(action, kind string) {
	FailActionsTotal.WithLabelValues(action, kind).Inc()
}

// BytesWriter counts every byte written to it as transferred in direction
type BytesWriter struct {
	Direction string
	Output    string
}

// Write implements io.Writer
func (w BytesWriter) Write(p []byte) (int, error) {
	RecordBytesTransferred(w.Direction, w.Output, int64(len(p)))
	return len(p), nil
}
