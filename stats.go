package tarantool

import "sync/atomic"

// ConnectionStats contains statistics about the transport.
// All fields are safe for concurrent access.
//
// For Prometheus integration, expose these as counters; see Collector.
type ConnectionStats struct {
	RequestsSent      uint64 // Requests accepted and written to the queue
	ResponsesReceived uint64 // Replies matched to a pending request
	Timeouts          uint64 // Requests expired by the per-request deadline
	UnknownSyncs      uint64 // Replies dropped for an unknown request id
	Connects          uint64 // Successful connects, including reconnects
	Disconnects       uint64 // Connection losses and closes
	ReconnectAttempts uint64 // Reconnect attempts scheduled after a loss
	ConnectErrors     uint64 // Failed connect attempts
	AuthErrors        uint64 // Rejected authentication exchanges
}

// ClientStats contains statistics about client operations.
// All fields are safe for concurrent access.
type ClientStats struct {
	Pings         uint64 // Ping operations
	Inserts       uint64 // Insert operations
	Replaces      uint64 // Replace operations
	Deletes       uint64 // Delete operations
	Selects       uint64 // Select operations
	Updates       uint64 // Update operations
	Upserts       uint64 // Upsert operations
	Calls         uint64 // Call operations
	Errors        uint64 // Operations that completed with an error
	SchemaLoads   uint64 // Discovery runs against the metadata spaces
	SchemaRetries uint64 // Requests re-issued after a stale-schema reply
}

// connStatsCollector provides internal methods for updating transport
// stats. Not exported - the connection updates its own stats.
type connStatsCollector struct {
	stats *ConnectionStats
}

func newConnStatsCollector() *connStatsCollector {
	return &connStatsCollector{stats: &ConnectionStats{}}
}

func (c *connStatsCollector) recordSent()       { atomic.AddUint64(&c.stats.RequestsSent, 1) }
func (c *connStatsCollector) recordReceived()   { atomic.AddUint64(&c.stats.ResponsesReceived, 1) }
func (c *connStatsCollector) recordTimeout()    { atomic.AddUint64(&c.stats.Timeouts, 1) }
func (c *connStatsCollector) recordUnknownSync() {
	atomic.AddUint64(&c.stats.UnknownSyncs, 1)
}
func (c *connStatsCollector) recordConnect()    { atomic.AddUint64(&c.stats.Connects, 1) }
func (c *connStatsCollector) recordDisconnect() { atomic.AddUint64(&c.stats.Disconnects, 1) }
func (c *connStatsCollector) recordReconnectAttempt() {
	atomic.AddUint64(&c.stats.ReconnectAttempts, 1)
}
func (c *connStatsCollector) recordConnectError() {
	atomic.AddUint64(&c.stats.ConnectErrors, 1)
}
func (c *connStatsCollector) recordAuthError() { atomic.AddUint64(&c.stats.AuthErrors, 1) }

func (c *connStatsCollector) snapshot() ConnectionStats {
	return ConnectionStats{
		RequestsSent:      atomic.LoadUint64(&c.stats.RequestsSent),
		ResponsesReceived: atomic.LoadUint64(&c.stats.ResponsesReceived),
		Timeouts:          atomic.LoadUint64(&c.stats.Timeouts),
		UnknownSyncs:      atomic.LoadUint64(&c.stats.UnknownSyncs),
		Connects:          atomic.LoadUint64(&c.stats.Connects),
		Disconnects:       atomic.LoadUint64(&c.stats.Disconnects),
		ReconnectAttempts: atomic.LoadUint64(&c.stats.ReconnectAttempts),
		ConnectErrors:     atomic.LoadUint64(&c.stats.ConnectErrors),
		AuthErrors:        atomic.LoadUint64(&c.stats.AuthErrors),
	}
}

// clientStatsCollector provides internal methods for updating client
// stats. Not exported - the client updates its own stats.
type clientStatsCollector struct {
	stats *ClientStats
}

func newClientStatsCollector() *clientStatsCollector {
	return &clientStatsCollector{stats: &ClientStats{}}
}

func (c *clientStatsCollector) recordOp(counter *uint64) {
	atomic.AddUint64(counter, 1)
}

func (c *clientStatsCollector) recordError()      { atomic.AddUint64(&c.stats.Errors, 1) }
func (c *clientStatsCollector) recordSchemaLoad() { atomic.AddUint64(&c.stats.SchemaLoads, 1) }
func (c *clientStatsCollector) recordSchemaRetry() {
	atomic.AddUint64(&c.stats.SchemaRetries, 1)
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Pings:         atomic.LoadUint64(&c.stats.Pings),
		Inserts:       atomic.LoadUint64(&c.stats.Inserts),
		Replaces:      atomic.LoadUint64(&c.stats.Replaces),
		Deletes:       atomic.LoadUint64(&c.stats.Deletes),
		Selects:       atomic.LoadUint64(&c.stats.Selects),
		Updates:       atomic.LoadUint64(&c.stats.Updates),
		Upserts:       atomic.LoadUint64(&c.stats.Upserts),
		Calls:         atomic.LoadUint64(&c.stats.Calls),
		Errors:        atomic.LoadUint64(&c.stats.Errors),
		SchemaLoads:   atomic.LoadUint64(&c.stats.SchemaLoads),
		SchemaRetries: atomic.LoadUint64(&c.stats.SchemaRetries),
	}
}
