package reporting

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSink writes the short form of every report to the log.
type LogSink struct {
	Logger logrus.FieldLogger
}

// NewLogSink returns a LogSink using the standard logrus logger.
func NewLogSink() *LogSink {
	return &LogSink{Logger: logrus.StandardLogger()}
}

func (l *LogSink) Name() string {
	return "log"
}

func (l *LogSink) Send(_ context.Context, event Event) error {
	entry := l.Logger.WithField("report", event.Report.Kind().String())
	if event.Report.IsOK() {
		entry.Info(event.Report.FormatShort())
		return nil
	}
	entry.Error(event.Report.FormatShort())
	return nil
}
