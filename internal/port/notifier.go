package port

import (
	"context"

	"github.com/rl1809/car-sharing/internal/core/domain"
)

type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}

// EventQueue accepts events without blocking the caller.
type EventQueue interface {
	Enqueue(event domain.Event)
}
