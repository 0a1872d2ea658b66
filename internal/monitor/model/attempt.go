package model

import "time"

// AttemptStatus is the lifecycle state of one exam attempt.
type AttemptStatus string

const (
	AttemptActive     AttemptStatus = "active"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptTerminated AttemptStatus = "terminated"
)

// RiskLevel is the discretized trust band derived from the overall score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelFor maps an overall trust score onto its tier.
func RiskLevelFor(overall float64) RiskLevel {
	switch {
	case overall >= 80:
		return RiskLow
	case overall >= 60:
		return RiskMedium
	case overall >= 40:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// riskOrder sorts critical first for dashboard views.
var riskOrder = map[RiskLevel]int{
	RiskCritical: 0,
	RiskHigh:     1,
	RiskMedium:   2,
	RiskLow:      3,
}

// RiskRank returns the sort rank for a risk level, critical first.
func RiskRank(level RiskLevel) int {
	if rank, ok := riskOrder[level]; ok {
		return rank
	}
	return len(riskOrder)
}

// Attempt is one exam session by one student. Score and risk are mutated
// only by the trust engine; status and end time only by termination logic.
type Attempt struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	ExamID     string        `json:"exam_id"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    *time.Time    `json:"end_time,omitempty"`
	TrustScore float64       `json:"trust_score"`
	RiskLevel  RiskLevel     `json:"risk_level"`
	Status     AttemptStatus `json:"status"`
}

// NewAttempt creates a pristine attempt with full trust.
func NewAttempt(id, userID, examID string, now time.Time) *Attempt {
	return &Attempt{
		ID:         id,
		UserID:     userID,
		ExamID:     examID,
		StartTime:  now,
		TrustScore: 100,
		RiskLevel:  RiskLow,
		Status:     AttemptActive,
	}
}
