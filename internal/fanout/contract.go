package fanout

import (
	"context"

	"realtime-notifier/internal/domain"
)

// Broadcaster is the non-durable hop between the delivery worker and
// whichever server instance currently owns a recipient's sockets. Lost
// publishes are fine; the durable queue re-attempts on the next sweep.
type Broadcaster interface {
	// Publish addresses an envelope to one server instance.
	Publish(ctx context.Context, serverInstanceID string, env *domain.Envelope) error
	// Subscribe streams envelopes addressed to this instance until ctx ends.
	Subscribe(ctx context.Context, serverInstanceID string) (<-chan *domain.Envelope, error)
}
