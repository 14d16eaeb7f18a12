package domain

import "time"

// RegistryEntry maps a live (recipient, device) pair to the server instance
// that owns its socket. Absence of an entry means offline, even if a socket
// is technically still open somewhere.
type RegistryEntry struct {
	RecipientID      string    `json:"recipient_id"`
	DeviceID         string    `json:"device_id"`
	ServerInstanceID string    `json:"server_instance_id"`
	LastHeartbeat    time.Time `json:"last_heartbeat"`
}
