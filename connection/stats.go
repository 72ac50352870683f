package connection

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of a connection's counters.
type Stats struct {
	MessagesIn  uint64
	MessagesOut uint64
	BytesIn     uint64
	BytesOut    uint64
	Errors      uint64
	Dropped     uint64
	QueueSize   int
	QueueCap    int
	LatencyMs   int64
}

type counters struct {
	messagesIn  uint64
	messagesOut uint64
	bytesIn     uint64
	bytesOut    uint64
	errors      uint64
	dropped     uint64
	latencyMs   int64
}

func (c *counters) onRecv(n int) {
	atomic.AddUint64(&c.messagesIn, 1)
	atomic.AddUint64(&c.bytesIn, uint64(n))
}

func (c *counters) onSend(n int) {
	atomic.AddUint64(&c.messagesOut, 1)
	atomic.AddUint64(&c.bytesOut, uint64(n))
}

func (c *counters) onError() {
	atomic.AddUint64(&c.errors, 1)
}

func (c *counters) onDrop() {
	atomic.AddUint64(&c.dropped, 1)
}

func (c *counters) setLatency(d time.Duration) {
	atomic.StoreInt64(&c.latencyMs, d.Milliseconds())
}

func (c *counters) snapshot(queueSize, queueCap int) Stats {
	return Stats{
		MessagesIn:  atomic.LoadUint64(&c.messagesIn),
		MessagesOut: atomic.LoadUint64(&c.messagesOut),
		BytesIn:     atomic.LoadUint64(&c.bytesIn),
		BytesOut:    atomic.LoadUint64(&c.bytesOut),
		Errors:      atomic.LoadUint64(&c.errors),
		Dropped:     atomic.LoadUint64(&c.dropped),
		QueueSize:   queueSize,
		QueueCap:    queueCap,
		LatencyMs:   atomic.LoadInt64(&c.latencyMs),
	}
}
