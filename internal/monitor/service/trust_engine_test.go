package service

import (
	"math"
	"testing"

	"proctorhub/internal/monitor/model"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestApplyEventPenalizesMappedDimension(t *testing.T) {
	engine := NewTrustEngine()

	adj := engine.ApplyEvent("att-1", "tab_switch", 1.0)
	if adj.Dimension != model.BehaviorStability {
		t.Fatalf("dimension = %s, want %s", adj.Dimension, model.BehaviorStability)
	}
	// base 5 damped by full confidence: 5 * (1 - 1.0*0.3) = 3.5
	if !almostEqual(adj.Amount, -3.5) {
		t.Fatalf("amount = %v, want -3.5", adj.Amount)
	}
	// behavior_stability weighs 0.20 of the overall score
	if !almostEqual(adj.Overall, 99.3) {
		t.Fatalf("overall = %v, want 99.3", adj.Overall)
	}
	if adj.RiskLevel != model.RiskLow {
		t.Fatalf("risk = %s, want low", adj.RiskLevel)
	}
}

func TestApplyEventZeroConfidenceSkipsDamping(t *testing.T) {
	engine := NewTrustEngine()

	adj := engine.ApplyEvent("att-1", "tab_switch", 0)
	if !almostEqual(adj.Amount, -5) {
		t.Fatalf("amount = %v, want full base -5", adj.Amount)
	}
}

func TestApplyEventUnknownTypeGetsDefaultPenalty(t *testing.T) {
	engine := NewTrustEngine()

	adj := engine.ApplyEvent("att-1", "mystery_signal", 0)
	if adj.Dimension != model.BehaviorStability {
		t.Fatalf("dimension = %s, want behavior_stability", adj.Dimension)
	}
	if !almostEqual(adj.Amount, -2) {
		t.Fatalf("amount = %v, want -2", adj.Amount)
	}
}

func TestApplyEventNeutralTypeIsZero(t *testing.T) {
	engine := NewTrustEngine()

	adj := engine.ApplyEvent("att-1", "face_detected", 1.0)
	if adj.Amount != 0 {
		t.Fatalf("amount = %v, want 0", adj.Amount)
	}
	if adj.Overall != 100 {
		t.Fatalf("overall = %v, want 100", adj.Overall)
	}

	// a neutral event after a penalty reports the same rounded score as
	// the penalty did, never a rawer value
	penalized := engine.ApplyEvent("att-1", "tab_switch", 0.7)
	neutral := engine.ApplyEvent("att-1", "face_detected", 1.0)
	if neutral.Overall != penalized.Overall {
		t.Fatalf("neutral overall = %v, want %v", neutral.Overall, penalized.Overall)
	}
}

func TestApplyEventNormalizesSourcePrefix(t *testing.T) {
	engine := NewTrustEngine()

	plain := engine.ApplyEvent("att-1", "multi_face", 1.0)
	prefixed := engine.ApplyEvent("att-2", "camera_multi_face", 1.0)
	if plain.Dimension != prefixed.Dimension || !almostEqual(plain.Amount, prefixed.Amount) {
		t.Fatalf("prefixed adjustment %+v differs from plain %+v", prefixed, plain)
	}
	if plain.Dimension != model.IdentityStability {
		t.Fatalf("dimension = %s, want identity_stability", plain.Dimension)
	}
}

func TestApplyEventClampsAtZero(t *testing.T) {
	engine := NewTrustEngine()

	for i := 0; i < 20; i++ {
		engine.ApplyEvent("att-1", "devtools_open", 0)
	}
	dims, _, _ := engine.Snapshot("att-1")
	if dims.BehaviorStability != 0 {
		t.Fatalf("behavior_stability = %v, want clamped 0", dims.BehaviorStability)
	}
	// other dimensions stay untouched
	if dims.TypingConsistency != 100 {
		t.Fatalf("typing_consistency = %v, want 100", dims.TypingConsistency)
	}
}

func TestApplyEventMonotonicallyNonIncreasing(t *testing.T) {
	engine := NewTrustEngine()

	prev := 100.0
	for _, eventType := range []string{
		"tab_switch", "face_detected", "copy_paste", "silence",
		"typing_anomaly", "mystery_signal", "large_paste",
	} {
		adj := engine.ApplyEvent("att-1", eventType, 0.8)
		if adj.Overall > prev+1e-9 {
			t.Fatalf("overall rose from %v to %v after %s", prev, adj.Overall, eventType)
		}
		prev = adj.Overall
	}
}

func TestOverrideRaisesDimension(t *testing.T) {
	engine := NewTrustEngine()
	engine.ApplyEvent("att-1", "typing_anomaly", 0) // typing_consistency -> 92

	adj, err := engine.Override("att-1", model.TypingConsistency, 5)
	if err != nil {
		t.Fatalf("override failed: %v", err)
	}
	if !almostEqual(adj.Amount, 5) {
		t.Fatalf("amount = %v, want 5", adj.Amount)
	}
	dims, _, _ := engine.Snapshot("att-1")
	if !almostEqual(dims.TypingConsistency, 97) {
		t.Fatalf("typing_consistency = %v, want 97", dims.TypingConsistency)
	}
}

func TestOverrideClampsAtCeiling(t *testing.T) {
	engine := NewTrustEngine()

	adj, err := engine.Override("att-1", model.BehaviorStability, 20)
	if err != nil {
		t.Fatalf("override failed: %v", err)
	}
	if adj.Amount != 0 {
		t.Fatalf("amount = %v, want 0 on pristine dimension", adj.Amount)
	}
	dims, _, _ := engine.Snapshot("att-1")
	if dims.BehaviorStability != 100 {
		t.Fatalf("behavior_stability = %v, want 100", dims.BehaviorStability)
	}
}

func TestOverrideRejectsUnknownDimension(t *testing.T) {
	engine := NewTrustEngine()

	if _, err := engine.Override("att-1", "charisma", 5); err == nil {
		t.Fatal("expected error for unknown dimension")
	}
}

func TestOverrideRejectsOutOfRangeAmount(t *testing.T) {
	engine := NewTrustEngine()

	if _, err := engine.Override("att-1", model.BehaviorStability, 21); err == nil {
		t.Fatal("expected error for amount above limit")
	}
	if _, err := engine.Override("att-1", model.BehaviorStability, -21); err == nil {
		t.Fatal("expected error for amount below limit")
	}
}

func TestSnapshotUntrackedAttemptIsPristine(t *testing.T) {
	engine := NewTrustEngine()

	dims, overall, risk := engine.Snapshot("never-seen")
	if dims != model.PristineDimensions() {
		t.Fatalf("dimensions = %+v, want pristine", dims)
	}
	if overall != 100 || risk != model.RiskLow {
		t.Fatalf("overall = %v risk = %s, want 100/low", overall, risk)
	}
}

func TestForgetDropsState(t *testing.T) {
	engine := NewTrustEngine()
	engine.ApplyEvent("att-1", "devtools_open", 0)

	engine.Forget("att-1")
	_, overall, _ := engine.Snapshot("att-1")
	if overall != 100 {
		t.Fatalf("overall = %v after Forget, want 100", overall)
	}
}

func TestEventRiskTiers(t *testing.T) {
	cases := []struct {
		eventType string
		want      model.RiskLevel
	}{
		{"mouse_idle", model.RiskLow},
		{"tab_switch", model.RiskMedium},
		{"copy_paste", model.RiskHigh},
		{"multi_face", model.RiskCritical},
		{"camera_multi_face", model.RiskCritical},
		{"face_detected", model.RiskLow},
		{"mystery_signal", model.RiskLow},
	}
	for _, tc := range cases {
		if got := EventRisk(tc.eventType); got != tc.want {
			t.Fatalf("EventRisk(%s) = %s, want %s", tc.eventType, got, tc.want)
		}
	}
}
