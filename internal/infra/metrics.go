package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Process-wide collectors, registered on the default registry and served at /metrics.
var (
	// TransicionesTotal counts committed status changes.
	// Labels: entidad (concentrado|liquidacion), estado (new status)
	TransicionesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concentra_transiciones_total",
			Help: "Total number of committed status transitions",
		},
		[]string{"entidad", "estado"},
	)

	// CotizacionLecturasTotal counts quotation cache reads by how they were served.
	// Labels: resultado (hit|miss|obsoleto|predeterminado)
	CotizacionLecturasTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concentra_cotizacion_lecturas_total",
			Help: "Quotation cache reads by result",
		},
		[]string{"resultado"},
	)

	CotizacionFetchDuracion = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "concentra_cotizacion_fetch_duration_seconds",
			Help:    "Latency of live pricing provider calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	// EmisionFallidaTotal counts side effects that failed after commit.
	// Labels: sink (notificacion|broadcast|auditoria|documento)
	EmisionFallidaTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concentra_emision_fallida_total",
			Help: "Post-commit emissions that failed and were only logged",
		},
		[]string{"sink"},
	)

	// JobsProcesadosTotal counts worker jobs. Labels: queue, resultado (ok|dlq)
	JobsProcesadosTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concentra_jobs_procesados_total",
			Help: "Async jobs processed by the worker pool",
		},
		[]string{"queue", "resultado"},
	)

	DLQLongitud = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "concentra_dlq_length",
			Help: "Entries waiting in each dead letter queue",
		},
		[]string{"queue"},
	)
)
