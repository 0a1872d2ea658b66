package model

import "time"

// Event is an immutable record of one observed signal. Created only by the
// ingestion path, never mutated; ordering by CreatedAt is significant for
// timeline reconstruction.
type Event struct {
	ID         string                 `json:"id"`
	AttemptID  string                 `json:"attempt_id"`
	Type       string                 `json:"event_type"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Confidence float64                `json:"confidence"`
	Signature  string                 `json:"signature,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Well-known event types emitted by the liveness tracker. Signal events from
// camera/audio/behavior sources arrive namespaced by the client
// (camera_multi_face, audio_multiple_voices, behavior_devtools_open, ...).
const (
	EventHeartbeatGap   = "heartbeat_gap"
	EventTabHidden      = "tab_hidden"
	EventFullscreenExit = "fullscreen_exit"
	EventLowBattery     = "low_battery"
)

// Violation describes one infraction detected during a heartbeat cycle.
type Violation struct {
	Type       string  `json:"type"`
	Message    string  `json:"message"`
	GapSeconds float64 `json:"gap_seconds,omitempty"`
	Level      float64 `json:"level,omitempty"`
}

// ScoreDelta records one applied trust adjustment for timeline reconstruction.
type ScoreDelta struct {
	AttemptID string    `json:"attempt_id"`
	EventType string    `json:"event_type"`
	Dimension Dimension `json:"dimension"`
	Amount    float64   `json:"amount"`
	Overall   float64   `json:"overall"`
	RiskLevel RiskLevel `json:"risk_level"`
	Signature string    `json:"signature,omitempty"`
	AppliedAt time.Time `json:"applied_at"`
}

// TypingSummary aggregates recent typing-behavior metrics for status queries.
type TypingSummary struct {
	AvgWPM            float64 `json:"avg_wpm"`
	AvgBackspaceRatio float64 `json:"avg_backspace_ratio"`
	PasteDetected     bool    `json:"paste_detected"`
	BurstDetected     bool    `json:"burst_detected"`
}

// TypingSample is one typing metric observation carried in behavior payloads.
type TypingSample struct {
	WPM            float64   `json:"wpm"`
	BackspaceRatio float64   `json:"backspace_ratio"`
	PasteSize      int       `json:"paste_size"`
	Burst          bool      `json:"burst"`
	RecordedAt     time.Time `json:"recorded_at"`
}
