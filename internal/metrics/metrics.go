package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder counts session outcomes. It satisfies attendance.Observer.
type Recorder struct {
	fetches        *prometheus.CounterVec
	staleDiscards  prometheus.Counter
	commits        *prometheus.CounterVec
	committed      prometheus.Counter
	workspacesOpen prometheus.Gauge
	journalSaves   *prometheus.CounterVec
}

// New registers the rollcall collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "attendance_fetches_total",
			Help:      "Per-registration persisted attendance fetches by outcome.",
		}, []string{"outcome"}),
		staleDiscards: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "attendance_stale_fetches_total",
			Help:      "Fetch results discarded because the session moved on.",
		}),
		commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "attendance_commits_total",
			Help:      "Commit requests to the attendance service by outcome.",
		}, []string{"outcome"}),
		committed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "attendance_records_committed_total",
			Help:      "Attendance records written by successful commits.",
		}),
		workspacesOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "rollcall",
			Name:      "workspaces_open",
			Help:      "Open operator workspaces.",
		}),
		journalSaves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "journal_events_total",
			Help:      "Commit events handled by the journal worker by outcome.",
		}, []string{"outcome"}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (r *Recorder) FetchCompleted(err error) {
	r.fetches.WithLabelValues(outcome(err)).Inc()
}

func (r *Recorder) StaleDiscarded() {
	r.staleDiscards.Inc()
}

func (r *Recorder) CommitCompleted(records int, err error) {
	r.commits.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		r.committed.Add(float64(records))
	}
}

// WorkspacesOpen sets the open workspace gauge.
func (r *Recorder) WorkspacesOpen(n int) {
	r.workspacesOpen.Set(float64(n))
}

// JournalEvent counts one handled journal event; outcome is "saved",
// "duplicate" or "error".
func (r *Recorder) JournalEvent(outcome string) {
	r.journalSaves.WithLabelValues(outcome).Inc()
}
