package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	MonitorErrorTypeDeadlineExceeded = "deadline_exceeded"
	MonitorErrorTypeDB               = "db"
	MonitorErrorTypeUpstream         = "upstream"
	MonitorErrorTypeUniqueViolation  = "unique_violation"
	MonitorErrorTypeBusinessRule     = "business_rule"
)

const (
	MonitorStageListTenants   = "list_tenants"
	MonitorStageCredential    = "credential"
	MonitorStageSubscriptions = "subscriptions"
	MonitorStageEstimate      = "estimate"
	MonitorStageInvoice       = "invoice"
)

// Config carries the const labels stamped onto every monitor metric.
type Config struct {
	ServiceName string
	Environment string
}

// MonitorMetrics captures billing period monitor health signals.
type MonitorMetrics struct {
	tickRuns          prometheus.Counter
	tickDuration      prometheus.Observer
	tenantsScanned    prometheus.Counter
	invoicesGenerated prometheus.Counter
	invoicesSkipped   *prometheus.CounterVec
	stageErrors       *prometheus.CounterVec
}

var (
	monitorMetricsOnce sync.Once
	monitorMetrics     *MonitorMetrics
)

// Monitor returns the singleton monitor metrics registry.
func Monitor() *MonitorMetrics {
	return MonitorWithConfig(Config{})
}

// MonitorWithConfig returns the singleton monitor metrics registry using config labels.
func MonitorWithConfig(cfg Config) *MonitorMetrics {
	monitorMetricsOnce.Do(func() {
		monitorMetrics = newMonitorMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return monitorMetrics
}

// ResetMonitorMetricsForTest resets the monitor metrics singleton for tests.
func ResetMonitorMetricsForTest() {
	monitorMetricsOnce = sync.Once{}
	monitorMetrics = nil
}

func newMonitorMetrics(registerer prometheus.Registerer, cfg Config) *MonitorMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "metering"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	tickRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "metering_monitor_tick_runs_total",
		Help:        "Billing period monitor tick executions.",
		ConstLabels: constLabels,
	})
	tickDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "metering_monitor_tick_duration_seconds",
		Help:        "Billing period monitor tick latency.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})
	tenantsScanned := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "metering_monitor_tenants_scanned_total",
		Help:        "Tenants scanned for closed billing periods.",
		ConstLabels: constLabels,
	})
	invoicesGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "metering_monitor_invoices_generated_total",
		Help:        "Invoices generated by the billing period monitor.",
		ConstLabels: constLabels,
	})
	invoicesSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "metering_monitor_invoices_skipped_total",
		Help:        "Invoice generations skipped by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	stageErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "metering_monitor_stage_errors_total",
		Help:        "Billing period monitor errors by stage and type.",
		ConstLabels: constLabels,
	}, []string{"stage", "error_type"})

	registerer.MustRegister(
		tickRuns,
		tickDuration,
		tenantsScanned,
		invoicesGenerated,
		invoicesSkipped,
		stageErrors,
	)

	return &MonitorMetrics{
		tickRuns:          tickRuns,
		tickDuration:      tickDuration,
		tenantsScanned:    tenantsScanned,
		invoicesGenerated: invoicesGenerated,
		invoicesSkipped:   invoicesSkipped,
		stageErrors:       stageErrors,
	}
}

// IncTickRun increments the tick counter.
func (m *MonitorMetrics) IncTickRun() {
	if m == nil || m.tickRuns == nil {
		return
	}
	m.tickRuns.Inc()
}

// ObserveTickDuration records tick latency in seconds.
func (m *MonitorMetrics) ObserveTickDuration(duration time.Duration) {
	if m == nil || m.tickDuration == nil {
		return
	}
	m.tickDuration.Observe(duration.Seconds())
}

// AddTenantsScanned increments the scanned tenant counter by count.
func (m *MonitorMetrics) AddTenantsScanned(count int) {
	if m == nil || m.tenantsScanned == nil || count <= 0 {
		return
	}
	m.tenantsScanned.Add(float64(count))
}

// IncInvoiceGenerated increments the generated invoice counter.
func (m *MonitorMetrics) IncInvoiceGenerated() {
	if m == nil || m.invoicesGenerated == nil {
		return
	}
	m.invoicesGenerated.Inc()
}

// IncInvoiceSkipped increments the skipped invoice counter for a reason.
func (m *MonitorMetrics) IncInvoiceSkipped(reason string) {
	if m == nil || m.invoicesSkipped == nil {
		return
	}
	m.invoicesSkipped.WithLabelValues(reason).Inc()
}

// IncStageError increments the stage error counter with classification.
func (m *MonitorMetrics) IncStageError(stage string, err error) {
	if m == nil || m.stageErrors == nil || err == nil {
		return
	}
	m.stageErrors.WithLabelValues(stage, ClassifyMonitorError(err)).Inc()
}

// ClassifyMonitorError maps monitor errors to low-cardinality types.
func ClassifyMonitorError(err error) string {
	if err == nil {
		return MonitorErrorTypeBusinessRule
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return MonitorErrorTypeDeadlineExceeded
	}
	if isUniqueViolation(err) {
		return MonitorErrorTypeUniqueViolation
	}
	if isDBError(err) {
		return MonitorErrorTypeDB
	}
	return MonitorErrorTypeBusinessRule
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
