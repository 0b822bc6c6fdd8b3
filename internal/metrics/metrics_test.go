package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"rollcall/internal/attendance"
)

var _ attendance.Observer = (*Recorder)(nil)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.FetchCompleted(nil)
	r.FetchCompleted(nil)
	r.FetchCompleted(errors.New("timeout"))
	r.StaleDiscarded()
	r.CommitCompleted(3, nil)
	r.CommitCompleted(2, errors.New("reset"))
	r.WorkspacesOpen(4)
	r.JournalEvent("saved")
	r.JournalEvent("duplicate")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.fetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetches.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.staleDiscards))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.commits.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.commits.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.committed))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.workspacesOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.journalSaves.WithLabelValues("duplicate")))
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
