package service

import (
	"math"
	"sync"
	"time"

	"proctorhub/internal/monitor/model"
	appErr "proctorhub/pkg/errors"
)

const (
	// confidenceDamping scales penalties down for low-confidence detections:
	// effective = base * (1 - confidence*confidenceDamping).
	confidenceDamping = 0.3

	// defaultPenalty applies to unrecognized event types so evolving client
	// instrumentation never creates silent blind spots.
	defaultPenalty = 2

	maxOverrideAmount = 20
)

// penaltyRule binds an event type to one dimension and a base magnitude.
type penaltyRule struct {
	Dimension model.Dimension
	Base      float64
}

// penaltyTable is the fixed event-type → (dimension, penalty) lookup.
var penaltyTable = map[string]penaltyRule{
	"tab_switch":            {model.BehaviorStability, 5},
	"window_blur":           {model.BehaviorStability, 3},
	"devtools_open":         {model.BehaviorStability, 15},
	"devtools_attempt":      {model.BehaviorStability, 10},
	"copy_paste":            {model.BehaviorStability, 8},
	"clipboard_attempt":     {model.BehaviorStability, 5},
	"idle_timeout":          {model.BehaviorStability, 3},
	"mouse_idle":            {model.BehaviorStability, 1},
	"rapid_scroll":          {model.BehaviorStability, 2},
	"suspicious_resize":     {model.BehaviorStability, 5},
	"extension_detected":    {model.BehaviorStability, 15},
	"tab_hidden":            {model.BehaviorStability, 5},
	"heartbeat_gap":         {model.BehaviorStability, 5},
	"fullscreen_exit":       {model.EnvironmentIntegrity, 10},
	"low_battery":           {model.EnvironmentIntegrity, 3},
	"gaze_deviation":        {model.IdentityStability, 3},
	"head_pose":             {model.IdentityStability, 2},
	"face_missing":          {model.IdentityStability, 10},
	"multi_face":            {model.IdentityStability, 15},
	"voice_mismatch":        {model.IdentityStability, 10},
	"multiple_voices":       {model.IdentityStability, 12},
	"background_noise":      {model.EnvironmentIntegrity, 1},
	"typing_anomaly":        {model.TypingConsistency, 8},
	"paste_detected":        {model.TypingConsistency, 10},
	"burst_typing":          {model.TypingConsistency, 5},
	"high_wpm":              {model.TypingConsistency, 7},
	"code_entropy_anomaly":  {model.CodingAuthenticity, 10},
	"large_paste":           {model.CodingAuthenticity, 12},
	"challenge_failed":      {model.InterventionPerformance, 10},
	"challenge_ignored":     {model.InterventionPerformance, 8},
}

// neutralEvents carry no penalty; they are recorded but never reduce trust.
var neutralEvents = map[string]struct{}{
	"face_detected":  {},
	"voice_detected": {},
	"silence":        {},
}

// Adjustment is the outcome of applying one event to an attempt's trust vector.
type Adjustment struct {
	Dimension model.Dimension
	Amount    float64 // negative for penalties, positive only via override
	Overall   float64
	RiskLevel model.RiskLevel
}

// attemptTrust is the per-attempt scoring state.
type attemptTrust struct {
	Dimensions model.TrustDimensions
	UpdatedAt  time.Time
}

// TrustEngine maintains the six weighted trust dimensions per attempt and
// applies event-driven penalties. Same-attempt updates are serialized with a
// per-attempt lock; attempts never share a lock.
type TrustEngine struct {
	mu       sync.RWMutex
	attempts map[string]*attemptTrust
	locks    *keyedMutex
	now      func() time.Time
}

// NewTrustEngine creates an engine with no tracked attempts.
func NewTrustEngine() *TrustEngine {
	return &TrustEngine{
		attempts: make(map[string]*attemptTrust),
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// ApplyEvent applies the penalty for eventType to the attempt, scaled by
// confidence, and returns the resulting adjustment. Unknown event types get
// the minimal default penalty; neutral events return a zero adjustment.
func (e *TrustEngine) ApplyEvent(attemptID, eventType string, confidence float64) Adjustment {
	eventType = normalizeEventType(eventType)

	unlock := e.locks.Lock(attemptID)
	defer unlock()

	state := e.stateFor(attemptID)

	if _, neutral := neutralEvents[eventType]; neutral {
		overall := state.Dimensions.Overall()
		return Adjustment{
			Overall:   round2(overall),
			RiskLevel: model.RiskLevelFor(overall),
		}
	}

	rule, ok := penaltyTable[eventType]
	if !ok {
		rule = penaltyRule{Dimension: model.BehaviorStability, Base: defaultPenalty}
	}

	effective := rule.Base
	if confidence > 0 && confidence <= 1 {
		effective = rule.Base * (1 - confidence*confidenceDamping)
	}

	before := state.Dimensions.Get(rule.Dimension)
	state.Dimensions.Set(rule.Dimension, before-effective)
	applied := state.Dimensions.Get(rule.Dimension) - before
	state.UpdatedAt = e.now()

	overall := state.Dimensions.Overall()
	return Adjustment{
		Dimension: rule.Dimension,
		Amount:    round2(applied),
		Overall:   round2(overall),
		RiskLevel: model.RiskLevelFor(overall),
	}
}

// Override raises (or lowers) one named dimension by a bounded amount. This
// is the only path that can increase trust; violations alone are
// monotonically non-increasing.
func (e *TrustEngine) Override(attemptID string, dim model.Dimension, amount float64) (Adjustment, error) {
	if !model.KnownDimension(dim) {
		return Adjustment{}, appErr.Newf(appErr.DimensionUnknown, "unknown trust dimension: %s", dim)
	}
	if math.Abs(amount) > maxOverrideAmount {
		return Adjustment{}, appErr.Newf(appErr.OverrideOutOfRange, "override amount %.1f exceeds limit %d", amount, maxOverrideAmount)
	}

	unlock := e.locks.Lock(attemptID)
	defer unlock()

	state := e.stateFor(attemptID)
	before := state.Dimensions.Get(dim)
	state.Dimensions.Set(dim, before+amount)
	applied := state.Dimensions.Get(dim) - before
	state.UpdatedAt = e.now()

	overall := state.Dimensions.Overall()
	return Adjustment{
		Dimension: dim,
		Amount:    round2(applied),
		Overall:   round2(overall),
		RiskLevel: model.RiskLevelFor(overall),
	}, nil
}

// Snapshot returns a copy of the attempt's dimensions plus derived values.
// An untracked attempt reads as pristine.
func (e *TrustEngine) Snapshot(attemptID string) (model.TrustDimensions, float64, model.RiskLevel) {
	unlock := e.locks.Lock(attemptID)
	defer unlock()

	state := e.stateFor(attemptID)
	overall := state.Dimensions.Overall()
	return state.Dimensions, round2(overall), model.RiskLevelFor(overall)
}

// Forget drops all scoring state for an attempt (after termination).
func (e *TrustEngine) Forget(attemptID string) {
	e.mu.Lock()
	delete(e.attempts, attemptID)
	e.mu.Unlock()
}

// stateFor must be called with the attempt's keyed lock held.
func (e *TrustEngine) stateFor(attemptID string) *attemptTrust {
	e.mu.RLock()
	state, ok := e.attempts[attemptID]
	e.mu.RUnlock()
	if ok {
		return state
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if state, ok = e.attempts[attemptID]; ok {
		return state
	}
	state = &attemptTrust{Dimensions: model.PristineDimensions(), UpdatedAt: e.now()}
	e.attempts[attemptID] = state
	return state
}

// normalizeEventType strips the source namespace prefix so camera_multi_face
// and multi_face hit the same penalty rule.
func normalizeEventType(eventType string) string {
	for _, prefix := range []string{"camera_", "audio_", "behavior_"} {
		if len(eventType) > len(prefix) && eventType[:len(prefix)] == prefix {
			return eventType[len(prefix):]
		}
	}
	return eventType
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
