package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the auth collectors. A nil *metrics records nothing, so
// callers never check whether Config.Metrics was set.
type metrics struct {
	sessionsCreated   prometheus.Counter
	sessionsDestroyed prometheus.Counter
	sessionsExpired   prometheus.Counter
	sessionsPruned    prometheus.Counter
	verdicts          *prometheus.CounterVec
	logins            *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &metrics{
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_sessions_created_total",
			Help: "Sessions issued.",
		}),
		sessionsDestroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_sessions_destroyed_total",
			Help: "Sessions destroyed by logout or revocation.",
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_sessions_expired_total",
			Help: "Sessions found expired on read.",
		}),
		sessionsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_sessions_pruned_total",
			Help: "Expired sessions removed by the background sweep.",
		}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_verdicts_total",
			Help: "Request gate decisions by verdict.",
		}, []string{"verdict"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
	}
	for _, c := range []prometheus.Collector{
		m.sessionsCreated,
		m.sessionsDestroyed,
		m.sessionsExpired,
		m.sessionsPruned,
		m.verdicts,
		m.logins,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) sessionCreated() {
	if m != nil {
		m.sessionsCreated.Inc()
	}
}

func (m *metrics) sessionDestroyed() {
	if m != nil {
		m.sessionsDestroyed.Inc()
	}
}

func (m *metrics) sessionExpired() {
	if m != nil {
		m.sessionsExpired.Inc()
	}
}

func (m *metrics) pruned(n int64) {
	if m != nil && n > 0 {
		m.sessionsPruned.Add(float64(n))
	}
}

func (m *metrics) verdict(k VerdictKind) {
	if m != nil {
		m.verdicts.WithLabelValues(k.String()).Inc()
	}
}

func (m *metrics) login(result string) {
	if m != nil {
		m.logins.WithLabelValues(result).Inc()
	}
}
