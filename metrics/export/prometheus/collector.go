// Package prometheus bridges engine metric snapshots into a Prometheus
// collector, so goWarden counters appear alongside the host's metrics on
// its existing registry.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	goWarden "github.com/MrEthical07/goWarden"
)

const namespace = "gowarden"

// Collector exposes the engine's counters as Prometheus counter metrics
// named gowarden_<counter>_total. Collect reads a fresh snapshot each
// scrape; nothing is cached between scrapes.
type Collector struct {
	engine *goWarden.Engine
	descs  map[string]*prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector over the engine. Register it on any
// prometheus.Registerer.
func NewCollector(engine *goWarden.Engine) *Collector {
	c := &Collector{
		engine: engine,
		descs:  make(map[string]*prometheus.Desc),
	}
	for name := range engine.MetricsSnapshot().Counters {
		c.descs[name] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", name+"_total"),
			"goWarden engine counter "+name,
			nil, nil,
		)
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.descs {
		ch <- desc
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.engine.MetricsSnapshot()
	for name, value := range snap.Counters {
		desc, ok := c.descs[name]
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value))
	}
}
