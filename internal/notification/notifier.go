// Package notification delivers recorded position changes to external channels.
package notification

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/poswatch/internal/domain"
	"go.uber.org/zap"
)

// Notifier delivers a change event. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, event domain.ChangeEvent) error
}

// LogNotifier writes change events to the log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event domain.ChangeEvent) error {
	n.logger.Info("position change",
		zap.String("profile", event.Profile),
		zap.Int64("change_id", event.ChangeID),
		zap.String("summary", event.Summary),
		zap.Int("added", event.Added),
		zap.Int("removed", event.Removed),
		zap.Int("modified", event.Modified),
	)
	return nil
}

// Multi fans an event out to every notifier. All notifiers are attempted;
// the first error is returned.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event domain.ChangeEvent) error {
	var first error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil && first == nil {
			first = errors.Wrapf(err, "notify %T", n)
		}
	}
	return first
}
