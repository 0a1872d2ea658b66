// Package realtime fans monitoring traffic out to connected observers over
// named channels. Channels are created on first join and removed when the
// last observer leaves.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"proctorhub/pkg/utils/logger"

	"go.uber.org/zap"
)

// sendBuffer bounds the per-observer outbox. An observer that cannot drain
// its outbox is considered dead and gets pruned on the next delivery.
const sendBuffer = 64

// Channel name builders. Every session attaches to exactly one of these.
func ExamChannel(attemptID string) string {
	return fmt.Sprintf("exam:%s", attemptID)
}

func TeacherFeedChannel(examID string) string {
	return fmt.Sprintf("teacher_feed:%s", examID)
}

// AdminChannel is the single global channel for administrative observers.
const AdminChannel = "admin:global"

// Observer is one connected session. Messages are delivered through a
// buffered outbox; the transport layer drains Outbox and writes to the wire.
type Observer struct {
	ID      string
	Channel string

	outbox chan []byte
	closed bool
	mu     sync.Mutex
}

// Outbox returns the delivery stream for this observer. It is closed when the
// observer is removed from the hub.
func (o *Observer) Outbox() <-chan []byte {
	return o.outbox
}

// offer attempts a non-blocking delivery. Returns false when the observer is
// dead or its outbox is full.
func (o *Observer) offer(msg []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.outbox <- msg:
		return true
	default:
		return false
	}
}

func (o *Observer) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.outbox)
	}
}

// Hub is the in-process broadcast fabric. All methods are safe for
// concurrent use.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[string]*Observer
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[string]*Observer)}
}

// Join subscribes an observer to a channel and returns its handle. Joining
// with an ID already present on the channel replaces the old subscription, so
// a reconnecting session never receives duplicate deliveries.
func (h *Hub) Join(channel, observerID string) *Observer {
	obs := &Observer{
		ID:      observerID,
		Channel: channel,
		outbox:  make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	members, ok := h.channels[channel]
	if !ok {
		members = make(map[string]*Observer)
		h.channels[channel] = members
	}
	old := members[observerID]
	members[observerID] = obs
	h.mu.Unlock()

	if old != nil {
		old.close()
	}
	return obs
}

// Leave removes an observer from its channel and closes its outbox. Leaving
// a channel the observer is not on is a no-op.
func (h *Hub) Leave(obs *Observer) {
	if obs == nil {
		return
	}
	h.mu.Lock()
	members, ok := h.channels[obs.Channel]
	if ok && members[obs.ID] == obs {
		delete(members, obs.ID)
		if len(members) == 0 {
			delete(h.channels, obs.Channel)
		}
	} else {
		ok = false
	}
	h.mu.Unlock()

	if ok {
		obs.close()
	}
}

// Broadcast delivers a message to every observer on a channel. Observers
// whose outbox is full are pruned so one stuck connection never delays the
// rest. Broadcasting to a channel with no observers is a no-op.
func (h *Hub) Broadcast(channel string, msg []byte) {
	h.mu.RLock()
	members := h.channels[channel]
	targets := make([]*Observer, 0, len(members))
	for _, obs := range members {
		targets = append(targets, obs)
	}
	h.mu.RUnlock()

	for _, obs := range targets {
		if !obs.offer(msg) {
			logger.Warn(context.Background(), "pruning unresponsive observer",
				zap.String("channel", channel),
				zap.String("observer_id", obs.ID))
			h.Leave(obs)
		}
	}
}

// Unicast delivers a message to one observer on a channel. Delivery failure
// to a missing or dead observer is swallowed.
func (h *Hub) Unicast(channel, observerID string, msg []byte) {
	h.mu.RLock()
	obs := h.channels[channel][observerID]
	h.mu.RUnlock()

	if obs == nil {
		return
	}
	if !obs.offer(msg) {
		h.Leave(obs)
	}
}

// ObserverCount reports the number of live observers on a channel.
func (h *Hub) ObserverCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Channels returns the names of all channels with at least one observer.
func (h *Hub) Channels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.channels))
	for name := range h.channels {
		names = append(names, name)
	}
	return names
}
