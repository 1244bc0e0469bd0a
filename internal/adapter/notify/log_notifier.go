package notify

import (
	"context"
	"log/slog"

	"github.com/rl1809/car-sharing/internal/core/domain"
)

// LogNotifier writes events to the structured log. Used when no broker is
// configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(ctx context.Context, event domain.Event) error {
	l.log.InfoContext(ctx, "notification",
		"event_id", event.ID,
		"type", event.Type,
		"rental_id", event.RentalID,
		"payment_id", event.PaymentID,
		"message", event.Message,
	)
	return nil
}
