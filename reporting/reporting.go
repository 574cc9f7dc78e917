// Package reporting delivers data ingestion reports to log, chat and archive
// sinks.
package reporting

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sardine-ai/spritecollab-server/datafiles"
	"github.com/sirupsen/logrus"
)

var (
	reportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spritecollab_reports_total",
		Help: "Data ingestion reports by kind.",
	}, []string{"kind"})

	sinkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spritecollab_report_sink_failures_total",
		Help: "Reports a sink failed to deliver.",
	}, []string{"sink"})
)

// Event is the single event type delivered to sinks.
type Event struct {
	Report datafiles.Report
	Time   time.Time
}

// Sink delivers events somewhere.
type Sink interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// Reporting fans events out to all configured sinks, one after another.
// Sink failures are logged and otherwise ignored.
type Reporting struct {
	sinks []Sink
	now   func() time.Time
}

// New creates a Reporting delivering to sinks.
func New(sinks ...Sink) *Reporting {
	return &Reporting{sinks: sinks, now: time.Now}
}

// Report implements datafiles.Reporter.
func (r *Reporting) Report(ctx context.Context, report datafiles.Report) {
	r.SendEvent(ctx, Event{Report: report, Time: r.now()})
}

// SendEvent delivers event to every sink and waits for all deliveries.
func (r *Reporting) SendEvent(ctx context.Context, event Event) {
	reportsTotal.WithLabelValues(event.Report.Kind().String()).Inc()
	for _, sink := range r.sinks {
		if err := sink.Send(ctx, event); err != nil {
			sinkFailures.WithLabelValues(sink.Name()).Inc()
			logrus.WithError(err).WithField("sink", sink.Name()).Warn("error delivering report")
		}
	}
}

// Sinks returns the names of the configured sinks.
func (r *Reporting) Sinks() []string {
	names := make([]string, 0, len(r.sinks))
	for _, s := range r.sinks {
		names = append(names, s.Name())
	}
	return names
}
