// Package metrics exposes Prometheus counters for the auth flows.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

// Recorder is what handlers report auth outcomes to.
type Recorder interface {
	RecordSignup(result string)
	RecordLogin(result string)
	RecordOAuthCallback(result string)
	RecordSessionCreated()
}

// Collector implements Recorder on Prometheus counters.
type Collector struct {
	signups         *prometheus.CounterVec
	logins          *prometheus.CounterVec
	oauthCallbacks  *prometheus.CounterVec
	sessionsCreated prometheus.Counter
}

// NewCollector creates the auth counters and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_signups_total",
			Help: "Signup attempts by result.",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Password login attempts by result.",
		}, []string{"result"}),
		oauthCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_oauth_callbacks_total",
			Help: "Google OAuth callbacks by result.",
		}, []string{"result"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_sessions_created_total",
			Help: "Sessions created by any login method.",
		}),
	}

	reg.MustRegister(c.signups, c.logins, c.oauthCallbacks, c.sessionsCreated)
	return c
}

func (c *Collector) RecordSignup(result string) {
	c.signups.WithLabelValues(result).Inc()
}

func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

func (c *Collector) RecordOAuthCallback(result string) {
	c.oauthCallbacks.WithLabelValues(result).Inc()
}

func (c *Collector) RecordSessionCreated() {
	c.sessionsCreated.Inc()
}

// Handler returns the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordSignup(string)        {}
func (Nop) RecordLogin(string)         {}
func (Nop) RecordOAuthCallback(string) {}
func (Nop) RecordSessionCreated()      {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
