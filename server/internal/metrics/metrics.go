package metrics

import (
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Registry holds every errprop metric on its own prometheus registry, so the
// exposition carries no process or Go runtime collectors.
type Registry struct {
	TermsAppended     prometheus.Counter
	TermsRejected     *prometheus.CounterVec
	TermsRemoved      prometheus.Counter
	OperationsUpdated prometheus.Counter
	ResultsComputed   prometheus.Counter
	SessionsCreated   prometheus.Counter
	SessionsEvicted   prometheus.Counter

	reg     *prometheus.Registry
	handler http.Handler
}

// New returns a Registry with all counters at zero and no gauges.
func New() *Registry {
	r := &Registry{
		TermsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "errprop_terms_appended_total", Help: "Terms appended to a session.",
		}),
		TermsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errprop_terms_rejected_total", Help: "Append attempts rejected by validation.",
		}, []string{"reason"}),
		TermsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "errprop_terms_removed_total", Help: "Terms removed from a session.",
		}),
		OperationsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "errprop_operations_updated_total", Help: "Term operations changed in place.",
		}),
		ResultsComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "errprop_results_computed_total", Help: "Results returned to API or page callers.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "errprop_sessions_created_total", Help: "Calculator sessions created.",
		}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "errprop_sessions_evicted_total", Help: "Sessions evicted after their TTL.",
		}),
		reg: prometheus.NewRegistry(),
	}
	r.reg.MustRegister(
		r.TermsAppended, r.TermsRejected, r.TermsRemoved, r.OperationsUpdated,
		r.ResultsComputed, r.SessionsCreated, r.SessionsEvicted,
	)
	r.handler = promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})
	return r
}

// GaugeFunc registers a gauge whose value is read from fn on every scrape.
// Registering the same name twice is an error.
func (r *Registry) GaugeFunc(name, help string, fn func() float64) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn)
	if err := r.reg.Register(g); err != nil {
		return fmt.Errorf("metrics: register %s: %w", name, err)
	}
	return nil
}

// Gather returns every metric family sorted by name.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	mfs, err := r.reg.Gather()
	if err != nil {
		return mfs, fmt.Errorf("metrics: gather: %w", err)
	}
	return mfs, nil
}

// WriteText encodes every metric family in the text exposition format.
func (r *Registry) WriteText(w io.Writer) error {
	mfs, err := r.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// ServeHTTP serves GET /metrics.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.handler.ServeHTTP(w, req)
}
