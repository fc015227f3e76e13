// Package notify publishes session lifecycle events for the status layers
// that sit above the bridge (dashboards, presence displays).
package notify

// Notifier receives session lifecycle transitions.
type Notifier interface {
	SessionJoined(userID, roomName string)
	SessionLeft(userID string)
}

// Noop discards all notifications. Used when Redis is not configured.
type Noop struct{}

func (Noop) SessionJoined(userID, roomName string) {}

func (Noop) SessionLeft(userID string) {}
