// Package notify delivers short status messages about screening runs.
package notify

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

const DefaultPrefix = "[OptionsTrader]"

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// LogNotifier writes messages to a logrus logger.
type LogNotifier struct {
	Prefix string
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogNotifier{Prefix: DefaultPrefix, logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, message string) error {
	n.logger.WithField("notifier", "log").Info(n.Prefix + " " + message)
	return nil
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
