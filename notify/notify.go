// Package notify provides core.Notifier implementations. Delivery is best
// effort: callers log and otherwise ignore notifier errors.
package notify

import (
	"context"
	"errors"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
)

// Log writes notifications to a logger.
type Log struct {
	logger logging.Logger
}

// NewLog creates a notifier logging at info level.
func NewLog(logger logging.Logger) *Log {
	return &Log{logger: logging.OrNoOp(logger)}
}

// Send implements core.Notifier.
func (n *Log) Send(_ context.Context, channel, message string) error {
	n.logger.Info("Notification", "channel", channel, "message", message)
	return nil
}

// Func adapts a function to core.Notifier.
type Func func(ctx context.Context, channel, message string) error

// Send implements core.Notifier.
func (f Func) Send(ctx context.Context, channel, message string) error {
	return f(ctx, channel, message)
}

// Multi fans a notification out to several notifiers. Every notifier is
// tried; the failures are joined.
type Multi []core.Notifier

// Send implements core.Notifier.
func (m Multi) Send(ctx context.Context, channel, message string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, channel, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
