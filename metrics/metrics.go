// Package metrics exposes prometheus instrumentation for runs and outcomes.
package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

const (
	MetricsNamespace = "vitest_bridge"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of completed runs",
	}, []string{
		"result",
	})

	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "outcomes_total",
		Help:      "Count of per-test terminal outcomes",
	}, []string{
		"verdict",
	})

	resolutionFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "resolution_failures_total",
		Help:      "Count of results that matched no requested test",
	})

	malformedRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "malformed_records_total",
		Help:      "Count of records that could not be decoded",
	})

	invalidTransitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "invalid_transitions_total",
		Help:      "Count of rejected terminal-over-terminal transitions",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the last run",
	}, []string{
		"run_id",
	})

	testsRequested = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_requested",
		Help:      "Number of tests requested for a run",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordRun publishes the per-run rollup after finalization.
func RecordRun(summary types.Summary) {
	if Debug {
		log.Debug("metric record run",
			"run_id", summary.RunID,
			"result", summary.Status(),
			"requested", summary.Requested,
			"passed", summary.Passed,
			"failed", summary.Failed,
			"skipped", summary.Skipped,
			"unresolved", summary.Unresolved)
	}
	runsTotal.WithLabelValues(string(summary.Status())).Inc()
	runDuration.WithLabelValues(summary.RunID).Set(summary.Duration.Seconds())
	testsRequested.WithLabelValues(summary.RunID).Set(float64(summary.Requested))
	if summary.Unresolved > 0 {
		resolutionFailuresTotal.Add(float64(summary.Unresolved))
	}
	if summary.Malformed > 0 {
		malformedRecordsTotal.Add(float64(summary.Malformed))
	}
	if summary.InvalidTransitions > 0 {
		invalidTransitionsTotal.Add(float64(summary.InvalidTransitions))
	}
}

// Reporter increments outcome counters as transitions are applied.
// It satisfies the run reporting sink interface.
type Reporter struct{}

func (Reporter) MarkRunning(t types.Test) {}

func (Reporter) MarkPassed(t types.Test, duration time.Duration) {
	recordOutcome(types.VerdictPass)
}

func (Reporter) MarkFailed(t types.Test, message string, duration time.Duration) {
	recordOutcome(types.VerdictFail)
}

func (Reporter) MarkSkipped(t types.Test, message string) {
	recordOutcome(types.VerdictSkip)
}

func recordOutcome(verdict types.Verdict) {
	if Debug {
		log.Debug("metric inc",
			"m", "outcomes_total",
			"verdict", verdict)
	}
	outcomesTotal.WithLabelValues(string(verdict)).Inc()
}
