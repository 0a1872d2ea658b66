package service

import "proctorhub/internal/monitor/model"

// EventRisk classifies an incoming event type into a risk tier from its base
// penalty magnitude. Neutral and unknown events classify as low.
func EventRisk(eventType string) model.RiskLevel {
	eventType = normalizeEventType(eventType)
	if _, neutral := neutralEvents[eventType]; neutral {
		return model.RiskLow
	}
	rule, ok := penaltyTable[eventType]
	if !ok {
		return model.RiskLow
	}
	switch {
	case rule.Base >= 12:
		return model.RiskCritical
	case rule.Base >= 8:
		return model.RiskHigh
	case rule.Base >= 3:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}
