package service

import (
	"fmt"
	"math"
	"sync"
	"time"

	"proctorhub/internal/monitor/model"
)

const (
	// DefaultHeartbeatInterval is the cadence the client is told to beat at.
	DefaultHeartbeatInterval = 3 * time.Second
	// DefaultHeartbeatTolerance is the gap beyond which a heartbeat_gap
	// violation is emitted.
	DefaultHeartbeatTolerance = 10 * time.Second

	criticalBatteryLevel = 0.15
)

// HeartbeatInput carries one heartbeat ping from the client.
type HeartbeatInput struct {
	Timestamp       time.Time
	TabVisible      bool
	Fullscreen      bool
	BatteryLevel    *float64
	BatteryCharging *bool
}

// HeartbeatReport is the outcome of processing one beat.
type HeartbeatReport struct {
	GapSeconds float64
	Violations []model.Violation
	Paused     bool
}

// LivenessSnapshot is the transient per-attempt liveness view.
type LivenessSnapshot struct {
	LastSeen       time.Time `json:"last_seen"`
	Online         bool      `json:"online"`
	ViolationCount int       `json:"violation_count"`
	Paused         bool      `json:"paused"`
	Tracked        bool      `json:"tracked"`
}

// livenessState is process-scoped and reconstructable from recent heartbeat
// events if lost; at most one per attempt key.
type livenessState struct {
	lastSeen   time.Time
	violations int
	paused     bool
}

// LivenessTracker maintains the per-attempt heartbeat clock. Same-attempt
// updates are serialized; different attempts never contend.
type LivenessTracker struct {
	mu        sync.RWMutex
	states    map[string]*livenessState
	locks     *keyedMutex
	tolerance time.Duration
	now       func() time.Time
}

// NewLivenessTracker creates a tracker with the given gap tolerance.
func NewLivenessTracker(tolerance time.Duration) *LivenessTracker {
	if tolerance <= 0 {
		tolerance = DefaultHeartbeatTolerance
	}
	return &LivenessTracker{
		states:    make(map[string]*livenessState),
		locks:     newKeyedMutex(),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Beat processes one heartbeat: the last-seen clock is advanced
// unconditionally, then every independent violation for this cycle is
// collected. A gap alone never terminates the attempt.
func (t *LivenessTracker) Beat(attemptID string, in HeartbeatInput) HeartbeatReport {
	now := t.now()

	unlock := t.locks.Lock(attemptID)
	defer unlock()

	state := t.stateFor(attemptID)

	var gap time.Duration
	firstBeat := state.lastSeen.IsZero()
	if !firstBeat {
		gap = now.Sub(state.lastSeen)
	}
	state.lastSeen = now

	var violations []model.Violation
	if !firstBeat && gap > t.tolerance {
		violations = append(violations, model.Violation{
			Type:       model.EventHeartbeatGap,
			Message:    fmt.Sprintf("Heartbeat gap of %.0fs detected", gap.Seconds()),
			GapSeconds: roundGap(gap),
		})
	}
	if !in.TabVisible {
		violations = append(violations, model.Violation{
			Type:    model.EventTabHidden,
			Message: "Tab is not visible",
		})
	}
	if !in.Fullscreen {
		violations = append(violations, model.Violation{
			Type:    model.EventFullscreenExit,
			Message: "Not in fullscreen mode",
		})
	}
	if in.BatteryLevel != nil && *in.BatteryLevel < criticalBatteryLevel &&
		(in.BatteryCharging == nil || !*in.BatteryCharging) {
		violations = append(violations, model.Violation{
			Type:    model.EventLowBattery,
			Message: "Battery critically low",
			Level:   *in.BatteryLevel,
		})
	}

	state.violations += len(violations)

	return HeartbeatReport{
		GapSeconds: roundGap(gap),
		Violations: violations,
		Paused:     state.paused,
	}
}

// Snapshot reports the current liveness view for an attempt. Untracked
// attempts report Tracked=false with zero values.
func (t *LivenessTracker) Snapshot(attemptID string) LivenessSnapshot {
	t.mu.RLock()
	state, ok := t.states[attemptID]
	t.mu.RUnlock()
	if !ok {
		return LivenessSnapshot{}
	}

	unlock := t.locks.Lock(attemptID)
	defer unlock()

	return LivenessSnapshot{
		LastSeen:       state.lastSeen,
		Online:         !state.lastSeen.IsZero() && t.now().Sub(state.lastSeen) <= t.tolerance,
		ViolationCount: state.violations,
		Paused:         state.paused,
		Tracked:        true,
	}
}

// SetPaused flips the per-attempt pause flag (intervention commands only).
func (t *LivenessTracker) SetPaused(attemptID string, paused bool) {
	unlock := t.locks.Lock(attemptID)
	defer unlock()
	t.stateFor(attemptID).paused = paused
}

// Forget drops liveness state for a terminated attempt.
func (t *LivenessTracker) Forget(attemptID string) {
	t.mu.Lock()
	delete(t.states, attemptID)
	t.mu.Unlock()
}

// stateFor must be called with the attempt's keyed lock held.
func (t *LivenessTracker) stateFor(attemptID string) *livenessState {
	t.mu.RLock()
	state, ok := t.states[attemptID]
	t.mu.RUnlock()
	if ok {
		return state
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok = t.states[attemptID]; ok {
		return state
	}
	state = &livenessState{}
	t.states[attemptID] = state
	return state
}

func roundGap(gap time.Duration) float64 {
	if gap <= 0 {
		return 0
	}
	return math.Round(gap.Seconds()*10) / 10
}
