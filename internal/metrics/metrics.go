package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is implemented by the Prometheus collector and by Nop.
type Recorder interface {
	RecordDispatch(channel string, ok bool)
	RecordVerification(stage, outcome string)
	RecordLogin(outcome string)
	RecordLockout()
	RecordStockMovement(kind string, quantity int64)
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordDispatch(string, bool)       {}
func (Nop) RecordVerification(string, string) {}
func (Nop) RecordLogin(string)                {}
func (Nop) RecordLockout()                    {}
func (Nop) RecordStockMovement(string, int64) {}

// Collector records application metrics in Prometheus.
type Collector struct {
	dispatches    *prometheus.CounterVec
	verifications *prometheus.CounterVec
	logins        *prometheus.CounterVec
	lockouts      prometheus.Counter
	stockMoved    *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aquadrop_verification_dispatch_total",
			Help: "Verification messages sent, by channel and success.",
		}, []string{"channel", "success"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aquadrop_verification_total",
			Help: "Verification flow outcomes by stage (request, confirm).",
		}, []string{"stage", "outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aquadrop_pin_login_total",
			Help: "PIN login attempts by outcome.",
		}, []string{"outcome"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aquadrop_pin_lockouts_total",
			Help: "Accounts locked after repeated PIN failures.",
		}),
		stockMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aquadrop_stock_units_moved_total",
			Help: "Units moved through the stock ledger by movement kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(c.dispatches, c.verifications, c.logins, c.lockouts, c.stockMoved)
	return c
}

// RecordDispatch counts a dispatch attempt.
func (c *Collector) RecordDispatch(channel string, ok bool) {
	c.dispatches.WithLabelValues(channel, strconv.FormatBool(ok)).Inc()
}

// RecordVerification counts a request or confirm outcome.
func (c *Collector) RecordVerification(stage, outcome string) {
	c.verifications.WithLabelValues(stage, outcome).Inc()
}

// RecordLogin counts a login outcome.
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordLockout counts a lockout.
func (c *Collector) RecordLockout() {
	c.lockouts.Inc()
}

// RecordStockMovement adds quantity to the moved-units counter.
func (c *Collector) RecordStockMovement(kind string, quantity int64) {
	c.stockMoved.WithLabelValues(kind).Add(float64(quantity))
}
