// Package datafiles reads the data files of the SpriteCollab working copy and
// turns every ingestion failure into a Report.
package datafiles

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Reporter receives reports about data ingestion. Delivery is awaited but
// its outcome is not inspected.
type Reporter interface {
	Report(ctx context.Context, report Report)
}

// ReadAndReport runs decode over path. If decoding fails, the failure is
// delivered to reporter as a Report before the error is returned.
func ReadAndReport[T any](ctx context.Context, path string, decode func(path string) (T, error), reporter Reporter) (T, error) {
	v, err := decode(path)
	if err != nil {
		logrus.WithError(err).WithField("file", path).Debug("error reading data file")
		reporter.Report(ctx, NewFileReport(path, err))
		return v, err
	}
	return v, nil
}
