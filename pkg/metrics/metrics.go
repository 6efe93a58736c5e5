// Package metrics holds the Prometheus collectors for the bot. Each Collector
// owns its registry so tests can build independent instances.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "planbot"

type Collector struct {
	registry *prometheus.Registry

	InboundMessages  *prometheus.CounterVec
	OutboundMessages *prometheus.CounterVec
	TurnDuration     *prometheus.HistogramVec
	TurnPanics       prometheus.Counter

	EventsCreated prometheus.Counter
	EventsDeleted prometheus.Counter

	RemindersSent   *prometheus.CounterVec
	SchedulerPasses *prometheus.CounterVec
	LedgerEvicted   prometheus.Counter
}

// New builds a collector with process and Go runtime metrics registered
// alongside the bot's own.
func New() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		InboundMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbound_messages_total",
				Help:      "User turns received, by channel.",
			},
			[]string{"channel"},
		),
		OutboundMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbound_messages_total",
				Help:      "Replies sent, by channel and result.",
			},
			[]string{"channel", "result"},
		),
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Time to handle one user turn.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"state"},
		),
		TurnPanics: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turn_panics_total",
				Help:      "Turns aborted by a recovered panic.",
			},
		),
		EventsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_created_total",
				Help:      "Plan lines written, recurrences included.",
			},
		),
		EventsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_deleted_total",
				Help:      "Plan lines removed or completed.",
			},
		),
		RemindersSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_sent_total",
				Help:      "Reminder messages delivered, by cadence and result.",
			},
			[]string{"cadence", "result"},
		),
		SchedulerPasses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_passes_total",
				Help:      "Scheduler passes run, by cadence.",
			},
			[]string{"cadence"},
		),
		LedgerEvicted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_evicted_total",
				Help:      "Sent-reminder keys removed by retention cleanup.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.InboundMessages,
		c.OutboundMessages,
		c.TurnDuration,
		c.TurnPanics,
		c.EventsCreated,
		c.EventsDeleted,
		c.RemindersSent,
		c.SchedulerPasses,
		c.LedgerEvicted,
	)

	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RegisterGauge exposes fn as a gauge, for values owned elsewhere such as
// the bus backlog.
func (c *Collector) RegisterGauge(name, help string, fn func() float64) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
		fn,
	))
}

// ObserveTurn records how long a turn that started in state took.
func (c *Collector) ObserveTurn(state string, started time.Time) {
	c.TurnDuration.WithLabelValues(state).Observe(time.Since(started).Seconds())
}
