// Package metrics exports bus and pool statistics to Prometheus.
package metrics

import (
	"net/http"
	"sort"
	"sync"

	"github.com/dshills/typebus"
	"github.com/dshills/typebus/internal/busid"
	"github.com/dshills/typebus/internal/dispatch"
	"github.com/dshills/typebus/internal/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "typebus"

// BusSource reports bus statistics. *typebus.Bus implements it.
type BusSource interface {
	Stats() typebus.Stats
}

// PoolSource reports worker pool statistics. *dispatch.Pool implements it.
type PoolSource interface {
	Stats() dispatch.PoolStats
}

var (
	publishedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "published_total"),
		"Total Publish calls.", []string{"bus"}, nil)
	deliveredDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "delivered_total"),
		"Total callback invocations started by Publish.", []string{"bus"}, nil)
	subscriptionsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "subscriptions"),
		"Live subscriptions.", []string{"bus"}, nil)
	panicsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "callback_panics_total"),
		"Asynchronous callbacks that panicked.", []string{"bus"}, nil)

	poolSubmittedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "submitted_total"),
		"Tasks handed to the pool.", []string{"pool"}, nil)
	poolProcessedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "processed_total"),
		"Tasks that have run.", []string{"pool"}, nil)
	poolPanickedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "panicked_total"),
		"Tasks that panicked.", []string{"pool"}, nil)
	poolOverflowedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "overflowed_total"),
		"Tasks that ran outside the workers because the queue was full.", []string{"pool"}, nil)
	poolQueueDepthDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "queue_depth"),
		"Tasks waiting in the queue.", []string{"pool"}, nil)
	poolWorkersDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "workers"),
		"Configured worker goroutines.", []string{"pool"}, nil)
	poolBusyDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "task_seconds_total"),
		"Cumulative time spent running tasks.", []string{"pool"}, nil)

	registriesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "registries"),
		"Payload types with a dispatch registry.", nil, nil)
	busIDsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "bus_ids_outstanding"),
		"Bus identifiers currently in use.", nil, nil)
)

// Collector is a prometheus.Collector reading its values from buses and
// pools at scrape time.
type Collector struct {
	mu    sync.RWMutex
	buses map[string]BusSource
	pools map[string]PoolSource
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		buses: make(map[string]BusSource),
		pools: make(map[string]PoolSource),
	}
}

// AddBus reports src under the bus label name, replacing any previous source
// with that name.
func (c *Collector) AddBus(name string, src BusSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buses[name] = src
}

// RemoveBus stops reporting the bus called name.
func (c *Collector) RemoveBus(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buses, name)
}

// AddPool reports src under the pool label name.
func (c *Collector) AddPool(name string, src PoolSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pools[name] = src
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		publishedDesc, deliveredDesc, subscriptionsDesc, panicsDesc,
		poolSubmittedDesc, poolProcessedDesc, poolPanickedDesc, poolOverflowedDesc,
		poolQueueDepthDesc, poolWorkersDesc, poolBusyDesc,
		registriesDesc, busIDsDesc,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, name := range sortedKeys(c.buses) {
		s := c.buses[name].Stats()
		ch <- prometheus.MustNewConstMetric(publishedDesc, prometheus.CounterValue, float64(s.Published), name)
		ch <- prometheus.MustNewConstMetric(deliveredDesc, prometheus.CounterValue, float64(s.Delivered), name)
		ch <- prometheus.MustNewConstMetric(subscriptionsDesc, prometheus.GaugeValue, float64(s.Subscriptions), name)
		ch <- prometheus.MustNewConstMetric(panicsDesc, prometheus.CounterValue, float64(s.Panics), name)
	}

	for _, name := range sortedKeys(c.pools) {
		s := c.pools[name].Stats()
		ch <- prometheus.MustNewConstMetric(poolSubmittedDesc, prometheus.CounterValue, float64(s.Submitted), name)
		ch <- prometheus.MustNewConstMetric(poolProcessedDesc, prometheus.CounterValue, float64(s.Processed), name)
		ch <- prometheus.MustNewConstMetric(poolPanickedDesc, prometheus.CounterValue, float64(s.Panicked), name)
		ch <- prometheus.MustNewConstMetric(poolOverflowedDesc, prometheus.CounterValue, float64(s.Overflowed), name)
		ch <- prometheus.MustNewConstMetric(poolQueueDepthDesc, prometheus.GaugeValue, float64(s.QueueDepth), name)
		ch <- prometheus.MustNewConstMetric(poolWorkersDesc, prometheus.GaugeValue, float64(s.Workers), name)
		ch <- prometheus.MustNewConstMetric(poolBusyDesc, prometheus.CounterValue, s.TotalDuration.Seconds(), name)
	}

	ch <- prometheus.MustNewConstMetric(registriesDesc, prometheus.GaugeValue, float64(relay.Len()))
	ch <- prometheus.MustNewConstMetric(busIDsDesc, prometheus.GaugeValue, float64(busid.Default.Outstanding()))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Prom owns a Prometheus registry holding a Collector.
type Prom struct {
	reg       *prometheus.Registry
	Collector *Collector
}

// NewProm creates a registry with a new Collector registered on it.
func NewProm() *Prom {
	reg := prometheus.NewRegistry()
	p := &Prom{
		reg:       reg,
		Collector: NewCollector(),
	}
	reg.MustRegister(p.Collector)
	return p
}

// Registry returns the underlying registry.
func (p *Prom) Registry() *prometheus.Registry { return p.reg }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prom) Handler() http.Handler { return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{}) }
