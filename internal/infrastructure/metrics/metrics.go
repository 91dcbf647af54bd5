package metrics

import (
	"net/http"

	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "photorelay"

// Collector 订阅任务事件并转换成 Prometheus 指标
type Collector struct {
	registry *prometheus.Registry

	events       *prometheus.CounterVec
	downloads    *prometheus.CounterVec
	bytes        prometheus.Counter
	itemsFound   prometheus.Counter
	itemsNew     prometheus.Counter
	cycles       prometheus.Counter
	cycleSeconds prometheus.Histogram
	recoveries   *prometheus.CounterVec
	taskErrors   *prometheus.CounterVec
	running      prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Task lifecycle events emitted, by type.",
		}, []string{"type"}),
		downloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Photos relayed to storage, by result.",
		}, []string{"status"}),
		bytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes uploaded to the storage provider.",
		}),
		itemsFound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_found_total",
			Help:      "Items seen by discovery passes.",
		}),
		itemsNew: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_new_total",
			Help:      "Items not yet recorded when discovered.",
		}),
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed task cycles.",
		}),
		cycleSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of completed task cycles.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		recoveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_attempts_total",
			Help:      "Recovery attempts, by error category.",
		}, []string{"category"}),
		taskErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_errors_total",
			Help:      "Tasks stopped by a terminal error, by category.",
		}, []string{"category"}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_tasks",
			Help:      "Tasks currently running.",
		}),
	}
}

// Handle 事件订阅回调
func (c *Collector) Handle(ev entities.Event) {
	c.events.WithLabelValues(string(ev.Type)).Inc()

	switch p := ev.Payload.(type) {
	case entities.StartedPayload:
		c.running.Inc()
	case entities.StoppedPayload:
		c.running.Dec()
	case entities.DownloadCompletedPayload:
		c.downloads.WithLabelValues(string(entities.RecordStatusSuccess)).Inc()
		c.bytes.Add(float64(p.Size))
	case entities.DownloadFailedPayload:
		c.downloads.WithLabelValues(string(entities.RecordStatusFailed)).Inc()
	case entities.ScanCompletedPayload:
		c.itemsFound.Add(float64(p.Found))
		c.itemsNew.Add(float64(p.New))
	case entities.CycleCompletedPayload:
		c.cycles.Inc()
		c.cycleSeconds.Observe(float64(p.DurationMs) / 1000)
	case entities.RecoveringPayload:
		c.recoveries.WithLabelValues(p.Category).Inc()
	case entities.ErrorPayload:
		c.taskErrors.WithLabelValues(p.Category).Inc()
	}
}

// Handler /metrics 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry 供测试和额外指标注册使用
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
