package api

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/mysa-core/internal/realtime"
)

const metricsNamespace = "mysa"

func desc(name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, labels, nil)
}

var (
	descDevices       = desc("devices", "Devices in the registry.")
	descGhosts        = desc("ghost_devices", "Devices dropped at discovery for belonging to no home.")
	descDiscovered    = desc("discovered", "1 once discovery has listed the account's devices.")
	descPolls         = desc("polls_total", "HTTP state polls attempted.")
	descPollFailures  = desc("poll_failures_total", "HTTP state polls that failed.")
	descCommands      = desc("commands_total", "Commands published.")
	descLastPoll      = desc("last_poll_timestamp_seconds", "Unix time of the last successful poll.")
	descStateUpdates  = desc("state_updates_total", "Field observations by outcome.", "result")
	descDroppedEvents = desc("state_events_dropped_total", "State change events dropped for a full buffer.")
	descConnState     = desc("realtime_state", "Realtime channel connection state (1 for the current state).", "state")
	descRealtime      = desc("realtime_events_total", "Realtime channel counters.", "kind")
	descSubscribed    = desc("realtime_subscribed_devices", "Devices with live topic subscriptions.")
	descWSClients     = desc("websocket_clients", "Connected state stream clients.")
	descWSFrames      = desc("websocket_frames_total", "State stream frames by outcome.", "result")
)

// collector reads the engine, store and channel counters at scrape time.
type collector struct {
	s *Server
}

func (c collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		descDevices, descGhosts, descDiscovered, descPolls, descPollFailures,
		descCommands, descLastPoll, descStateUpdates, descDroppedEvents,
		descConnState, descRealtime, descSubscribed, descWSClients, descWSFrames,
	} {
		ch <- d
	}
}

func (c collector) Collect(ch chan<- prometheus.Metric) {
	es := c.s.engine.Stats()
	ch <- prometheus.MustNewConstMetric(descDevices, prometheus.GaugeValue, float64(es.Devices))
	ch <- prometheus.MustNewConstMetric(descGhosts, prometheus.GaugeValue, float64(es.Ghosts))
	ch <- prometheus.MustNewConstMetric(descDiscovered, prometheus.GaugeValue, boolGauge(es.Discovered))
	ch <- prometheus.MustNewConstMetric(descPolls, prometheus.CounterValue, float64(es.Polls))
	ch <- prometheus.MustNewConstMetric(descPollFailures, prometheus.CounterValue, float64(es.PollFailures))
	ch <- prometheus.MustNewConstMetric(descCommands, prometheus.CounterValue, float64(es.Commands))
	if !es.LastPoll.IsZero() {
		ch <- prometheus.MustNewConstMetric(descLastPoll, prometheus.GaugeValue, float64(es.LastPoll.Unix()))
	}

	ss := c.s.store.Stats()
	ch <- prometheus.MustNewConstMetric(descStateUpdates, prometheus.CounterValue, float64(ss.Accepted), "accepted")
	ch <- prometheus.MustNewConstMetric(descStateUpdates, prometheus.CounterValue, float64(ss.Stale), "stale")
	ch <- prometheus.MustNewConstMetric(descStateUpdates, prometheus.CounterValue, float64(ss.Guarded), "guarded")
	ch <- prometheus.MustNewConstMetric(descDroppedEvents, prometheus.CounterValue, float64(ss.DroppedEvents))

	hs := c.s.hub.Stats()
	ch <- prometheus.MustNewConstMetric(descWSClients, prometheus.GaugeValue, float64(hs.Clients))
	ch <- prometheus.MustNewConstMetric(descWSFrames, prometheus.CounterValue, float64(hs.Delivered), "delivered")
	ch <- prometheus.MustNewConstMetric(descWSFrames, prometheus.CounterValue, float64(hs.Dropped), "dropped")

	if c.s.channel == nil {
		return
	}
	rs := c.s.channel.Stats()
	for _, st := range []realtime.ConnState{
		realtime.StateDisconnected, realtime.StateConnecting,
		realtime.StateConnected, realtime.StateReAuthenticating,
	} {
		ch <- prometheus.MustNewConstMetric(descConnState, prometheus.GaugeValue, boolGauge(rs.State == st), st.String())
	}
	for kind, n := range map[string]uint64{
		"connects":        rs.Connects,
		"failures":        rs.Failures,
		"renewals":        rs.Renewals,
		"messages":        rs.Messages,
		"malformed":       rs.Malformed,
		"ignored":         rs.Ignored,
		"checksum_errors": rs.Checksums,
		"readings":        rs.Readings,
		"published":       rs.Published,
	} {
		ch <- prometheus.MustNewConstMetric(descRealtime, prometheus.CounterValue, float64(n), kind)
	}
	ch <- prometheus.MustNewConstMetric(descSubscribed, prometheus.GaugeValue, float64(rs.Subscribed))
}

// registerMetrics builds the server's metrics registry.
func (s *Server) registerMetrics() error {
	s.metrics = prometheus.NewRegistry()
	s.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Local API requests by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		s.requests,
		collector{s: s},
	} {
		if err := s.metrics.Register(c); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
	}
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
