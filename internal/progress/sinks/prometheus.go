package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/docmeta-crawler/internal/progress"
)

// PrometheusSink exports run progress via Prometheus collectors. When a
// textfile path is configured the registry is written there on Close so
// node_exporter's textfile collector can pick up one-shot runs.
type PrometheusSink struct {
	registry *prometheus.Registry
	textfile string

	runsStarted   prometheus.Counter
	runsRunning   prometheus.Gauge
	runDuration   prometheus.Histogram
	runRecords    prometheus.Gauge
	runDiscovered prometheus.Gauge

	pages        *prometheus.CounterVec
	pageDuration *prometheus.HistogramVec
	batches      prometheus.Counter
}

// NewPrometheusSink registers the collectors against reg. A nil registry
// gets a private one.
func NewPrometheusSink(reg *prometheus.Registry, textfile string) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &PrometheusSink{
		registry: reg,
		textfile: textfile,
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docmeta_runs_started_total",
			Help: "Total pipeline runs that have started.",
		}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docmeta_runs_running",
			Help: "Current number of running pipeline runs.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docmeta_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}),
		runRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docmeta_run_records",
			Help: "Records extracted by the most recent run.",
		}),
		runDiscovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docmeta_run_discovered_urls",
			Help: "Document URLs discovered by the most recent run.",
		}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docmeta_pages_total",
			Help: "Page outcomes partitioned by site, result, and failure kind.",
		}, []string{"site", "result", "kind"}),
		pageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docmeta_page_duration_seconds",
			Help:    "Fetch plus extraction time per page.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"result"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docmeta_batches_total",
			Help: "Batches that reached their barrier.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsRunning,
		s.runDuration,
		s.runRecords,
		s.runDiscovered,
		s.pages,
		s.pageDuration,
		s.batches,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		s.runsRunning.Inc()
		s.runDiscovered.Set(float64(evt.Total))
	case progress.StageRunDone:
		s.runsRunning.Dec()
		s.runRecords.Set(float64(evt.Records))
		if evt.Dur > 0 {
			s.runDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageBatchDone:
		s.batches.Inc()
	case progress.StagePageDone:
		s.pages.WithLabelValues(siteLabel(evt.Site), "success", "").Inc()
		s.observePage(evt, "success")
	case progress.StagePageFailed:
		s.pages.WithLabelValues(siteLabel(evt.Site), "failure", evt.Failure).Inc()
		s.observePage(evt, "failure")
	}
}

func (s *PrometheusSink) observePage(evt progress.Event, result string) {
	if evt.Dur > 0 {
		s.pageDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

func siteLabel(site string) string {
	if site == "" {
		return "unknown"
	}
	return site
}

// Close writes the registry to the configured textfile, if any.
func (s *PrometheusSink) Close(context.Context) error {
	if s.textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(s.textfile, s.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
