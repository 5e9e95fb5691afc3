// Package notifier provides the progress broadcast channel for report
// lifecycle events. The state machine publishes one event per transition;
// subscribers (the SSE layer) observe progress without polling.
package notifier

import (
	"sync"
	"time"

	"github.com/veristat-labs/veristat/pkg/core"
)

// subscriberBuffer is the per-listener channel capacity. A listener that
// falls this far behind starts losing events; a missed event is recoverable
// by polling the report's current status.
const subscriberBuffer = 16

// Event is one report lifecycle notification.
type Event struct {
	ReportID  string            `json:"reportId"`
	Status    core.ReportStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
}

// Notifier broadcasts report events to all subscribed listeners.
// Publish is fire-and-forget: delivery is best-effort in-process fan-out.
// Events for a given report id arrive in emission order because the state
// machine publishes under its per-report lock.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan Event]struct{}
}

// New creates a new Notifier instance.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[chan Event]struct{}),
	}
}

// Subscribe returns a channel that receives report events.
// The caller must call Unsubscribe when done to prevent goroutine leaks.
func (n *Notifier) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan Event) {
	n.mu.Lock()
	delete(n.listeners, ch)
	n.mu.Unlock()
	close(ch)
}

// Publish sends the event to all listeners.
// Non-blocking: if a listener's channel is full, the event is skipped.
func (n *Notifier) Publish(ev Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- ev:
		default:
			// Listener is behind; it will recover by polling status.
		}
	}
}
