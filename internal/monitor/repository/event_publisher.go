package repository

import (
	"context"
	"encoding/json"
	"time"

	"proctorhub/internal/common/mq"
	"proctorhub/internal/monitor/model"
	"proctorhub/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	// TopicMonitorEvents carries every accepted monitoring event.
	TopicMonitorEvents = "monitor.events"

	// TopicTrustDeltas carries applied trust score adjustments.
	TopicTrustDeltas = "monitor.trust_deltas"

	publishTimeout = 3 * time.Second
)

// EventPublisher exports accepted events and trust deltas to the message
// queue. Export is best effort: broker failures are logged and never block
// the ingest path.
type EventPublisher struct {
	queue mq.MessageQueue
}

// NewEventPublisher creates a publisher on the given queue. A nil queue
// disables export.
func NewEventPublisher(queue mq.MessageQueue) *EventPublisher {
	return &EventPublisher{queue: queue}
}

// PublishEvent exports an accepted event asynchronously.
func (p *EventPublisher) PublishEvent(event *model.Event) {
	if p == nil || p.queue == nil {
		return
	}
	go p.publish(TopicMonitorEvents, event.AttemptID, event)
}

// PublishDelta exports an applied trust adjustment asynchronously.
func (p *EventPublisher) PublishDelta(delta *model.ScoreDelta) {
	if p == nil || p.queue == nil {
		return
	}
	go p.publish(TopicTrustDeltas, delta.AttemptID, delta)
}

func (p *EventPublisher) publish(topic, attemptID string, payload interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error(ctx, "marshal export message failed",
			zap.String("topic", topic),
			zap.String("attempt_id", attemptID),
			zap.Error(err))
		return
	}
	msg := mq.NewMessage(body)
	// Use the attempt ID as the message key so per-attempt ordering is
	// preserved across partitions.
	msg.ID = attemptID
	msg.Headers = map[string]string{"attempt_id": attemptID}

	if err := p.queue.Publish(ctx, topic, msg); err != nil {
		logger.Error(ctx, "publish export message failed",
			zap.String("topic", topic),
			zap.String("attempt_id", attemptID),
			zap.Error(err))
	}
}
