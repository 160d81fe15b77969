package ircpool

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flrl/goat/ircnet"
)

// Collector exposes a Pool's occupancy and per-connection state as
// Prometheus metrics, hand-written the way runZeroInc-conniver's
// TCPInfoCollector wraps net.Conn state: a fixed slice of *Desc built
// once, and a Collect pass that walks live state under the pool's own
// lock rather than caching counters.
type Collector struct {
	pool *Pool

	slotsDesc      *prometheus.Desc
	occupiedDesc   *prometheus.Desc
	stateDesc      *prometheus.Desc
	malformedDesc  *prometheus.Desc
	pendingMsgDesc *prometheus.Desc
}

// NewCollector builds a Collector over pool. Register it with a
// prometheus.Registry the way a caller would register any other
// Collector; goat does not reach for a global default registry.
func NewCollector(pool *Pool) *Collector {
	return &Collector{
		pool: pool,
		slotsDesc: prometheus.NewDesc(
			"goat_pool_slots_total",
			"Total slots currently allocated in the connection pool, including free ones.",
			nil, nil,
		),
		occupiedDesc: prometheus.NewDesc(
			"goat_pool_slots_occupied",
			"Slots currently holding a live connection.",
			nil, nil,
		),
		stateDesc: prometheus.NewDesc(
			"goat_connection_state",
			"1 for the connection's current FSM state, 0 otherwise.",
			[]string{"handle", "state"}, nil,
		),
		malformedDesc: prometheus.NewDesc(
			"goat_connection_malformed_lines_total",
			"Malformed lines discarded on this connection since it was created.",
			[]string{"handle"}, nil,
		),
		pendingMsgDesc: prometheus.NewDesc(
			"goat_connection_pending_messages",
			"Complete lines received but not yet dispatched.",
			[]string{"handle"}, nil,
		),
	}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.slotsDesc
	descs <- c.occupiedDesc
	descs <- c.stateDesc
	descs <- c.malformedDesc
	descs <- c.pendingMsgDesc
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	handles := c.pool.Connections()

	c.pool.mu.RLock()
	total := len(c.pool.slots)
	c.pool.mu.RUnlock()

	metrics <- prometheus.MustNewConstMetric(c.slotsDesc, prometheus.GaugeValue, float64(total))
	metrics <- prometheus.MustNewConstMetric(c.occupiedDesc, prometheus.GaugeValue, float64(len(handles)))

	for _, h := range handles {
		conn, err := c.pool.Get(h)
		if err != nil {
			continue
		}
		label := handleLabel(h)

		for _, s := range allStates {
			v := 0.0
			if conn.State() == s {
				v = 1.0
			}
			metrics <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, v, label, s.String())
		}

		metrics <- prometheus.MustNewConstMetric(c.malformedDesc, prometheus.CounterValue, float64(conn.MalformedCount()), label)
		metrics <- prometheus.MustNewConstMetric(c.pendingMsgDesc, prometheus.GaugeValue, float64(conn.PendingMessageCount()), label)
	}
}

var allStates = []ircnet.State{
	ircnet.Disconnected,
	ircnet.Resolving,
	ircnet.Connecting,
	ircnet.Connected,
	ircnet.Disconnecting,
	ircnet.Error,
}

func handleLabel(h Handle) string {
	return strconv.Itoa(int(h))
}
