package metrics

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clob-engine/src/engine"
)

// Metrics holds the dispatch-layer collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Instructions       *prometheus.CounterVec
	InstructionLatency *prometheus.HistogramVec
	Fills              prometheus.Counter
	MatchedBaseLots    prometheus.Counter
	TakerFees          prometheus.Counter
	EventsConsumed     prometheus.Counter
	EventsEvicted      prometheus.Counter
	FeesSwept          prometheus.Counter
	EventQueueDepth    *prometheus.GaugeVec
	RestingOrders      *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Instructions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clob_instructions_total",
				Help: "Instructions processed, by instruction and result code",
			},
			[]string{"instruction", "code"},
		),
		InstructionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clob_instruction_duration_seconds",
				Help:    "Time spent executing instructions",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"instruction"},
		),
		Fills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clob_fills_total",
			Help: "Fill events produced by matching",
		}),
		MatchedBaseLots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clob_matched_base_lots_total",
			Help: "Base lots matched",
		}),
		TakerFees: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clob_taker_fees_native_total",
			Help: "Taker fees charged, in native quote units",
		}),
		EventsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clob_events_consumed_total",
			Help: "Queue events applied to positions",
		}),
		EventsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clob_events_evicted_total",
			Help: "Queue events evicted before consumption",
		}),
		FeesSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clob_fees_swept_native_total",
			Help: "Protocol fees swept to fee admins, in native quote units",
		}),
		EventQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "clob_event_queue_depth",
				Help: "Events waiting in each market's queue",
			},
			[]string{"market"},
		),
		RestingOrders: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "clob_resting_orders",
				Help: "Resting orders per market and side",
			},
			[]string{"market", "side"},
		),
	}
	m.Registry.MustRegister(
		m.Instructions,
		m.InstructionLatency,
		m.Fills,
		m.MatchedBaseLots,
		m.TakerFees,
		m.EventsConsumed,
		m.EventsEvicted,
		m.FeesSwept,
		m.EventQueueDepth,
		m.RestingOrders,
	)
	return m
}

// ObserveInstruction counts one instruction under its result code.
func (m *Metrics) ObserveInstruction(name string, start time.Time, err error) {
	m.InstructionLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	m.Instructions.WithLabelValues(name, ResultCode(err)).Inc()
}

func (m *Metrics) ObservePlacement(out engine.PlacementOutcome) {
	m.Fills.Add(float64(out.Fills))
	m.MatchedBaseLots.Add(float64(out.BaseLotsMatched))
	m.TakerFees.Add(out.TakerFees.InexactFloat64())
	m.EventsEvicted.Add(float64(out.EventsEvicted))
}

// ObserveMarket refreshes the per-market gauges.
func (m *Metrics) ObserveMarket(mk *engine.Market) {
	id := mk.ID.String()
	m.EventQueueDepth.WithLabelValues(id).Set(float64(mk.Events.Len()))
	m.RestingOrders.WithLabelValues(id, string(engine.SideBid)).Set(float64(mk.Bids.Len()))
	m.RestingOrders.WithLabelValues(id, string(engine.SideAsk)).Set(float64(mk.Asks.Len()))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}

// ResultCode is "OK" for nil, the engine code for engine errors and
// "INTERNAL" otherwise.
func ResultCode(err error) string {
	if err == nil {
		return "OK"
	}
	var e *engine.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}
