package registry

import (
	"context"

	"realtime-notifier/internal/domain"
)

// Registry tracks which server instance owns the live socket for each
// (recipient, device) pair. Entries expire unless refreshed by heartbeat;
// an absent entry means offline.
type Registry interface {
	Register(ctx context.Context, recipientID, deviceID, serverInstanceID string) error
	Heartbeat(ctx context.Context, recipientID, deviceID string) error
	Lookup(ctx context.Context, recipientID string) ([]domain.RegistryEntry, error)
	Unregister(ctx context.Context, recipientID, deviceID string) error
}
