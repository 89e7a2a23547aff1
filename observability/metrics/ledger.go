package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks the operational counters of the payable ledger.
type LedgerMetrics struct {
	payablesCreated *prometheus.CounterVec
	paymentsMade    *prometheus.CounterVec
	withdrawalsMade prometheus.Counter
	replaysDropped  prometheus.Counter
	opFailures      *prometheus.CounterVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the process-wide ledger metrics, registering them on first
// use.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			payablesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledger_payables_created_total",
				Help: "Count of payables created, by allow-list mode.",
			}, []string{"mode"}),
			paymentsMade: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledger_payments_total",
				Help: "Count of recorded payments by origin (local, outbound, inbound).",
			}, []string{"origin"}),
			withdrawalsMade: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ledger_withdrawals_total",
				Help: "Count of recorded withdrawals.",
			}),
			replaysDropped: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ledger_replays_dropped_total",
				Help: "Count of inbound messages rejected by the replay guard.",
			}),
			opFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledger_operation_failures_total",
				Help: "Count of rejected ledger operations by method.",
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.payablesCreated,
			ledgerRegistry.paymentsMade,
			ledgerRegistry.withdrawalsMade,
			ledgerRegistry.replaysDropped,
			ledgerRegistry.opFailures,
		)
	})
	return ledgerRegistry
}

// ObservePayableCreated records a new payable; restricted payables carry an
// allow-list.
func (m *LedgerMetrics) ObservePayableCreated(restricted bool) {
	if m == nil {
		return
	}
	mode := "open"
	if restricted {
		mode = "restricted"
	}
	m.payablesCreated.WithLabelValues(mode).Inc()
}

// ObservePayment records one committed payment. Origin is "local" for
// same-chain payments, "outbound" for payer-side foreign payments and
// "inbound" for consumed cross-chain messages.
func (m *LedgerMetrics) ObservePayment(origin string) {
	if m == nil {
		return
	}
	if origin == "" {
		origin = "unknown"
	}
	m.paymentsMade.WithLabelValues(origin).Inc()
}

// ObserveWithdrawal records one committed withdrawal.
func (m *LedgerMetrics) ObserveWithdrawal() {
	if m == nil {
		return
	}
	m.withdrawalsMade.Inc()
}

// ObserveReplayDropped records a message rejected as already consumed.
func (m *LedgerMetrics) ObserveReplayDropped() {
	if m == nil {
		return
	}
	m.replaysDropped.Inc()
}

// ObserveFailure records a rejected operation by RPC method name.
func (m *LedgerMetrics) ObserveFailure(method string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.opFailures.WithLabelValues(method).Inc()
}
