package metrics

import (
	"github.com/armon/go-metrics"
	"github.com/armon/go-metrics/prometheus"
)

var (
	ProvisioningSessions = []string{"provisioning_sessions"}
	Certificates         = []string{"certificates"}
	ProxyRestarts        = []string{"proxy_restarts"}
	ProxyConfigWrites    = []string{"proxy_config_writes"}
	CachePurgedEntries   = []string{"cache_purged_entries"}
)

var Registry metrics.MetricSink

func init() {
	sink, err := prometheus.NewPrometheusSinkFrom(prometheus.PrometheusOpts{
		GaugeDefinitions: []prometheus.GaugeDefinition{{
			Name: ProvisioningSessions,
			Help: "The number of provisioning sessions in the control store",
		}, {
			Name: Certificates,
			Help: "The number of certificates in the certificate cache",
		}},
		CounterDefinitions: []prometheus.CounterDefinition{{
			Name: ProxyRestarts,
			Help: "The total number of data-plane proxy restarts",
		}, {
			Name: ProxyConfigWrites,
			Help: "The total number of proxy configuration files written",
		}, {
			Name: CachePurgedEntries,
			Help: "The total number of cache entries deleted by purge requests",
		}},
	})
	if err != nil {
		panic(err)
	}
	Registry = sink
}
