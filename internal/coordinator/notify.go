package coordinator

import "time"

// Level is the severity of a Notification.
type Level string

// Notification levels.
const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user-facing message emitted by the Coordinator.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier receives notifications. Notify must not block.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(n Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// ChannelNotifier delivers notifications on a buffered channel.
// Notifications are dropped while the buffer is full.
type ChannelNotifier struct {
	C chan Notification
}

// NewChannelNotifier creates a ChannelNotifier with the given buffer size.
func NewChannelNotifier(size int) *ChannelNotifier {
	if size < 1 {
		size = 1
	}
	return &ChannelNotifier{C: make(chan Notification, size)}
}

// Notify implements Notifier.
func (c *ChannelNotifier) Notify(n Notification) {
	select {
	case c.C <- n:
	default:
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}
