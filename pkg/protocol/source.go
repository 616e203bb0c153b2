package protocol

import (
	"context"
	"errors"

	"github.com/dukex/ruleflow/pkg/models"
)

// ErrSourceMisconfigured is returned by Validate when a source cannot run.
var ErrSourceMisconfigured = errors.New("event source misconfigured")

// EventCallback receives every event an EventSource emits.
type EventCallback func(ctx context.Context, event models.Event) error

// EventSource is a long-running producer of inbound events (queues, schedulers).
type EventSource interface {
	// Start begins emitting events to callback. It returns once the source is running.
	Start(ctx context.Context, callback EventCallback) error

	// Stop shuts the source down.
	Stop(ctx context.Context) error

	// Validate checks the source configuration.
	Validate() error
}
