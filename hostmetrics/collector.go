// Package hostmetrics exports the cluster's per-host state as Prometheus
// metrics. The collector reads a fresh snapshot of the host list on every
// scrape, so hosts that leave the cluster disappear from the export
// automatically.
package hostmetrics

import (
	"strconv"

	"github.com/cqlkit/hoststate"
	"github.com/prometheus/client_golang/prometheus"
)

// FetchHosts returns the current cluster view to collect metrics from.
type FetchHosts func() hoststate.HostList

// collector exports host state using const metrics built per scrape. A
// custom collector is used rather than gauge vectors so that stale label
// sets do not linger after a host is removed.
type collector struct {
	fetchHosts FetchHosts

	countDesc *prometheus.Desc

	// By host (address), plus shard for connection counts.
	latencyDesc       *prometheus.Desc
	unpooledConnsDesc *prometheus.Desc
	versionDesc       *prometheus.Desc
}

// NewCollector creates a prometheus collector exporting the state of the
// hosts returned by fetchHosts.
func NewCollector(fetchHosts FetchHosts) prometheus.Collector {
	labels := []string{"host"}
	return &collector{
		fetchHosts: fetchHosts,
		countDesc: prometheus.NewDesc(
			"hoststate_host_count",
			"Number of hosts in the cluster view.",
			nil,
			nil),
		latencyDesc: prometheus.NewDesc(
			"hoststate_host_latency_ns",
			"Current average request latency in nanoseconds "+
				"by host. Absent until the host's latency "+
				"tracker has warmed up.",
			labels,
			nil),
		unpooledConnsDesc: prometheus.NewDesc(
			"hoststate_host_unpooled_connections",
			"Number of connections held for later adoption by "+
				"host and shard.",
			[]string{"host", "shard"},
			nil),
		versionDesc: prometheus.NewDesc(
			"hoststate_host_server_version_info",
			"Constant 1 carrying the host's server version as a "+
				"label.",
			[]string{"host", "version"},
			nil),
	}
}

// Describe sends the collector's metric descriptors.
//
// NOTE: Part of the prometheus.Collector interface.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.countDesc
	ch <- c.latencyDesc
	ch <- c.unpooledConnsDesc
	ch <- c.versionDesc
}

// Collect reads the current cluster view and exports each host's state.
//
// NOTE: Part of the prometheus.Collector interface.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	hosts := c.fetchHosts()

	ch <- prometheus.MustNewConstMetric(
		c.countDesc, prometheus.GaugeValue, float64(len(hosts)),
	)

	for _, host := range hosts {
		addr := host.Address().String()

		avg := host.LatencyAverage()
		if avg.Average != hoststate.UndefinedAverage {
			ch <- prometheus.MustNewConstMetric(
				c.latencyDesc, prometheus.GaugeValue,
				float64(avg.Average), addr,
			)
		}

		for shard, count := range host.UnpooledConnCounts() {
			ch <- prometheus.MustNewConstMetric(
				c.unpooledConnsDesc, prometheus.GaugeValue,
				float64(count), addr,
				strconv.FormatUint(uint64(shard), 10),
			)
		}

		ch <- prometheus.MustNewConstMetric(
			c.versionDesc, prometheus.GaugeValue, 1, addr,
			host.ServerVersion().String(),
		)
	}
}

// Register registers a host state collector with the global prometheus
// registry.
func Register(fetchHosts FetchHosts) error {
	log.Info("Registering host state prometheus collector")

	return prometheus.Register(NewCollector(fetchHosts))
}
