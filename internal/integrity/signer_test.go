package integrity_test

import (
	"testing"

	"proctorhub/internal/integrity"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	signer, err := integrity.NewSigner("test-secret")
	if err != nil {
		t.Fatalf("new signer failed: %v", err)
	}

	payload := map[string]interface{}{
		"type":    "multi_face",
		"attempt": "a-1",
		"nested":  map[string]interface{}{"b": 2, "a": 1},
	}

	sig, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if sig == "" {
		t.Fatalf("expected non-empty signature")
	}
	if !signer.Verify(payload, sig) {
		t.Fatalf("expected signature to verify")
	}
}

func TestSignDeterministicAcrossKeyOrder(t *testing.T) {
	signer, err := integrity.NewSigner("test-secret")
	if err != nil {
		t.Fatalf("new signer failed: %v", err)
	}

	a := map[string]interface{}{"x": 1, "y": "z", "nested": map[string]interface{}{"k": true}}
	b := map[string]interface{}{"nested": map[string]interface{}{"k": true}, "y": "z", "x": 1}

	sigA, err := signer.Sign(a)
	if err != nil {
		t.Fatalf("sign a failed: %v", err)
	}
	sigB, err := signer.Sign(b)
	if err != nil {
		t.Fatalf("sign b failed: %v", err)
	}
	if sigA != sigB {
		t.Fatalf("expected identical signatures, got %s vs %s", sigA, sigB)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	signer, err := integrity.NewSigner("test-secret")
	if err != nil {
		t.Fatalf("new signer failed: %v", err)
	}

	payload := map[string]interface{}{"type": "tab_switch", "attempt": "a-1"}
	sig, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	payload["type"] = "tab_switcH"
	if signer.Verify(payload, sig) {
		t.Fatalf("expected tampered payload to fail verification")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer, _ := integrity.NewSigner("secret-one")
	other, _ := integrity.NewSigner("secret-two")

	payload := map[string]interface{}{"type": "face_missing"}
	sig, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if other.Verify(payload, sig) {
		t.Fatalf("expected verification with wrong secret to fail")
	}
}

func TestVerifyEmptySignature(t *testing.T) {
	signer, _ := integrity.NewSigner("test-secret")
	if signer.Verify(map[string]interface{}{"a": 1}, "") {
		t.Fatalf("expected empty signature to fail verification")
	}
}

func TestNewSignerRequiresSecret(t *testing.T) {
	if _, err := integrity.NewSigner(""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
