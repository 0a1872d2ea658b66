// Package audit reconstructs the integrity record of a finished or ongoing
// attempt from the retained event and score-delta trails.
package audit

import (
	"context"
	"sort"
	"time"

	"proctorhub/internal/integrity"
	"proctorhub/internal/monitor/model"
	appErr "proctorhub/pkg/errors"
)

// AttemptSource provides the live attempt view the assembler starts from.
type AttemptSource interface {
	Attempt(attemptID string) (*model.Attempt, error)
}

// TrailSource provides the recorded event and adjustment trails.
type TrailSource interface {
	Recent(ctx context.Context, attemptID string, limit int) ([]*model.Event, error)
	Deltas(ctx context.Context, attemptID string) ([]*model.ScoreDelta, error)
}

// TimelineEntry is one step of the reconstructed attempt history.
type TimelineEntry struct {
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"` // "event" or "adjustment"
	EventType string    `json:"event_type"`
	Dimension string    `json:"dimension,omitempty"`
	Amount    float64   `json:"amount,omitempty"`
	Overall   float64   `json:"overall,omitempty"`
}

// Report is the assembled audit record for one attempt.
type Report struct {
	AttemptID       string           `json:"attempt_id"`
	UserID          string           `json:"user_id"`
	ExamID          string           `json:"exam_id"`
	Status          string           `json:"status"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         *time.Time       `json:"end_time,omitempty"`
	FinalScore      float64          `json:"final_score"`
	FinalRisk       string           `json:"final_risk"`
	ViolationCounts map[string]int   `json:"violation_counts"`
	Timeline        []TimelineEntry  `json:"timeline"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Signature       string           `json:"signature"`
}

// Assembler builds signed audit reports.
type Assembler interface {
	Assemble(ctx context.Context, attemptID string) (*Report, error)
}

type assembler struct {
	attempts AttemptSource
	trails   TrailSource
	signer   *integrity.Signer
	now      func() time.Time
}

// NewAssembler creates the default assembler.
func NewAssembler(attempts AttemptSource, trails TrailSource, signer *integrity.Signer) Assembler {
	return &assembler{attempts: attempts, trails: trails, signer: signer, now: time.Now}
}

// Assemble merges the event and adjustment trails into a chronological
// timeline and signs the resulting report so later tampering is detectable.
func (a *assembler) Assemble(ctx context.Context, attemptID string) (*Report, error) {
	attempt, err := a.attempts.Attempt(attemptID)
	if err != nil {
		return nil, err
	}

	events, err := a.trails.Recent(ctx, attemptID, 0)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.AuditAssembleFailed)
	}
	deltas, err := a.trails.Deltas(ctx, attemptID)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.AuditAssembleFailed)
	}

	counts := make(map[string]int)
	timeline := make([]TimelineEntry, 0, len(events)+len(deltas))
	for _, e := range events {
		counts[e.Type]++
		timeline = append(timeline, TimelineEntry{
			At:        e.CreatedAt,
			Kind:      "event",
			EventType: e.Type,
		})
	}
	for _, d := range deltas {
		timeline = append(timeline, TimelineEntry{
			At:        d.AppliedAt,
			Kind:      "adjustment",
			EventType: d.EventType,
			Dimension: string(d.Dimension),
			Amount:    d.Amount,
			Overall:   d.Overall,
		})
	}
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].At.Before(timeline[j].At)
	})

	report := &Report{
		AttemptID:       attempt.ID,
		UserID:          attempt.UserID,
		ExamID:          attempt.ExamID,
		Status:          string(attempt.Status),
		StartTime:       attempt.StartTime,
		EndTime:         attempt.EndTime,
		FinalScore:      attempt.TrustScore,
		FinalRisk:       string(attempt.RiskLevel),
		ViolationCounts: counts,
		Timeline:        timeline,
		GeneratedAt:     a.now(),
	}

	sig, err := a.signer.Sign(map[string]interface{}{
		"attempt_id":  report.AttemptID,
		"final_score": report.FinalScore,
		"final_risk":  report.FinalRisk,
		"events":      len(events),
		"adjustments": len(deltas),
	})
	if err != nil {
		return nil, appErr.Wrap(err, appErr.AuditAssembleFailed)
	}
	report.Signature = sig
	return report, nil
}
