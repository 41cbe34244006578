package tarantool

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes client and transport statistics as Prometheus
// metrics. Register it once per client:
//
//	registry.MustRegister(tarantool.NewCollector(client))
type Collector struct {
	client *Client

	requestsSent      *prometheus.Desc
	responsesReceived *prometheus.Desc
	timeouts          *prometheus.Desc
	unknownSyncs      *prometheus.Desc
	connects          *prometheus.Desc
	disconnects       *prometheus.Desc
	reconnectAttempts *prometheus.Desc
	connectErrors     *prometheus.Desc
	authErrors        *prometheus.Desc

	operations    *prometheus.Desc
	errors        *prometheus.Desc
	schemaLoads   *prometheus.Desc
	schemaRetries *prometheus.Desc
}

// NewCollector creates a collector for the given client. The endpoint
// address is attached as the "addr" label on every metric.
func NewCollector(client *Client) *Collector {
	labels := prometheus.Labels{"addr": client.cfg.Addr()}

	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc("tarantool_"+name, help, variable, labels)
	}

	return &Collector{
		client: client,

		requestsSent:      desc("requests_sent_total", "Requests accepted and written to the send queue"),
		responsesReceived: desc("responses_received_total", "Replies matched to a pending request"),
		timeouts:          desc("request_timeouts_total", "Requests expired by the per-request deadline"),
		unknownSyncs:      desc("unknown_syncs_total", "Replies dropped for an unknown request id"),
		connects:          desc("connects_total", "Successful connects, including reconnects"),
		disconnects:       desc("disconnects_total", "Connection losses and closes"),
		reconnectAttempts: desc("reconnect_attempts_total", "Reconnect attempts after a connection loss"),
		connectErrors:     desc("connect_errors_total", "Failed connect attempts"),
		authErrors:        desc("auth_errors_total", "Rejected authentication exchanges"),

		operations:    desc("operations_total", "Completed operations", "op"),
		errors:        desc("operation_errors_total", "Operations that completed with an error"),
		schemaLoads:   desc("schema_loads_total", "Discovery runs against the metadata spaces"),
		schemaRetries: desc("schema_retries_total", "Requests re-issued after a stale-schema reply"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	conn := c.client.Connection().Stats()
	counter := func(desc *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), labels...)
	}

	counter(c.requestsSent, conn.RequestsSent)
	counter(c.responsesReceived, conn.ResponsesReceived)
	counter(c.timeouts, conn.Timeouts)
	counter(c.unknownSyncs, conn.UnknownSyncs)
	counter(c.connects, conn.Connects)
	counter(c.disconnects, conn.Disconnects)
	counter(c.reconnectAttempts, conn.ReconnectAttempts)
	counter(c.connectErrors, conn.ConnectErrors)
	counter(c.authErrors, conn.AuthErrors)

	stats := c.client.Stats()
	counter(c.operations, stats.Pings, "ping")
	counter(c.operations, stats.Inserts, "insert")
	counter(c.operations, stats.Replaces, "replace")
	counter(c.operations, stats.Deletes, "delete")
	counter(c.operations, stats.Selects, "select")
	counter(c.operations, stats.Updates, "update")
	counter(c.operations, stats.Upserts, "upsert")
	counter(c.operations, stats.Calls, "call")
	counter(c.errors, stats.Errors)
	counter(c.schemaLoads, stats.SchemaLoads)
	counter(c.schemaRetries, stats.SchemaRetries)
}

var _ prometheus.Collector = (*Collector)(nil)
