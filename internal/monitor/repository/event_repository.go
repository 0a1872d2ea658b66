// Package repository persists monitoring events and exports them to the
// message queue for downstream analytics.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"proctorhub/internal/common/cache"
	"proctorhub/internal/monitor/model"
	pkgerrors "proctorhub/pkg/errors"
)

const (
	// recentWindowSize bounds the per-attempt event list kept in cache.
	recentWindowSize = 500

	// eventTTL expires idle attempt windows. Generously longer than any
	// exam so the audit assembler can still read completed attempts.
	eventTTL = 24 * time.Hour
)

// EventRepository stores recent monitoring events per attempt in a capped
// cache window.
type EventRepository struct {
	cache cache.Cache
}

// NewEventRepository creates a cache-backed event repository.
func NewEventRepository(c cache.Cache) *EventRepository {
	return &EventRepository{cache: c}
}

func eventKey(attemptID string) string {
	return fmt.Sprintf("monitor:events:%s", attemptID)
}

func deltaKey(attemptID string) string {
	return fmt.Sprintf("monitor:deltas:%s", attemptID)
}

// Append records an event at the head of the attempt's window and trims the
// window to its cap.
func (r *EventRepository) Append(ctx context.Context, event *model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.EventStoreFailed)
	}
	key := eventKey(event.AttemptID)
	if err := r.cache.LPush(ctx, key, string(data)); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.EventStoreFailed)
	}
	if err := r.cache.LTrim(ctx, key, 0, recentWindowSize-1); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.EventStoreFailed)
	}
	if err := r.cache.Expire(ctx, key, eventTTL); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.EventStoreFailed)
	}
	return nil
}

// Recent returns up to limit most recent events for an attempt, newest first.
// limit <= 0 returns the whole retained window.
func (r *EventRepository) Recent(ctx context.Context, attemptID string, limit int) ([]*model.Event, error) {
	stop := int64(recentWindowSize - 1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := r.cache.LRange(ctx, eventKey(attemptID), 0, stop)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CacheError)
	}
	events := make([]*model.Event, 0, len(raw))
	for _, item := range raw {
		var e model.Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			// Skip corrupted entries rather than failing the whole read.
			continue
		}
		events = append(events, &e)
	}
	return events, nil
}

// AppendDelta records an applied trust adjustment for audit assembly.
func (r *EventRepository) AppendDelta(ctx context.Context, delta *model.ScoreDelta) error {
	data, err := json.Marshal(delta)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.EventStoreFailed)
	}
	key := deltaKey(delta.AttemptID)
	if err := r.cache.LPush(ctx, key, string(data)); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.EventStoreFailed)
	}
	if err := r.cache.LTrim(ctx, key, 0, recentWindowSize-1); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.EventStoreFailed)
	}
	if err := r.cache.Expire(ctx, key, eventTTL); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.EventStoreFailed)
	}
	return nil
}

// Deltas returns the retained trust adjustments for an attempt, newest first.
func (r *EventRepository) Deltas(ctx context.Context, attemptID string) ([]*model.ScoreDelta, error) {
	raw, err := r.cache.LRange(ctx, deltaKey(attemptID), 0, recentWindowSize-1)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CacheError)
	}
	deltas := make([]*model.ScoreDelta, 0, len(raw))
	for _, item := range raw {
		var d model.ScoreDelta
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			continue
		}
		deltas = append(deltas, &d)
	}
	return deltas, nil
}

// Purge removes all retained state for an attempt.
func (r *EventRepository) Purge(ctx context.Context, attemptID string) error {
	return r.cache.Del(ctx, eventKey(attemptID), deltaKey(attemptID))
}
