package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"proctorhub/internal/monitor/model"
	"proctorhub/pkg/utils/logger"

	"go.uber.org/zap"
)

// Incident is the input to narration: one noteworthy event plus the trust
// context it landed in.
type Incident struct {
	AttemptID string
	EventType string
	RiskLevel model.RiskLevel
	Overall   float64
	Payload   map[string]interface{}
}

// Narrator produces a short human-readable summary of an incident for the
// proctor feed.
type Narrator interface {
	Narrate(ctx context.Context, inc Incident) (string, error)
}

// heuristicNarrator is the always-available template-based fallback.
type heuristicNarrator struct{}

// NewHeuristicNarrator returns the template-based narrator.
func NewHeuristicNarrator() Narrator {
	return heuristicNarrator{}
}

var narrationTemplates = map[string]string{
	"tab_switch":      "Student switched away from the exam tab",
	"devtools_open":   "Developer tools were opened during the exam",
	"multi_face":      "More than one face appeared on camera",
	"face_missing":    "Student's face left the camera view",
	"multiple_voices": "Multiple voices were detected in the room",
	"large_paste":     "A large block of code was pasted into the editor",
	"paste_detected":  "Pasted text was detected in the typing stream",
	"fullscreen_exit": "Student left fullscreen mode",
	"heartbeat_gap":   "The exam client went silent for an extended period",
}

func (heuristicNarrator) Narrate(_ context.Context, inc Incident) (string, error) {
	base, ok := narrationTemplates[normalizeEventType(inc.EventType)]
	if !ok {
		base = fmt.Sprintf("Suspicious activity observed (%s)", strings.ReplaceAll(inc.EventType, "_", " "))
	}
	return fmt.Sprintf("%s. Current trust score %.1f (%s risk).", base, inc.Overall, inc.RiskLevel), nil
}

// ModelNarratorConfig configures the external narration model endpoint.
type ModelNarratorConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	Timeout  time.Duration `yaml:"timeout"`
}

// modelNarrator calls an external language model over HTTP and falls back to
// the heuristic narrator on any failure or timeout.
type modelNarrator struct {
	cfg      ModelNarratorConfig
	client   *http.Client
	fallback Narrator
}

// NewModelNarrator creates a narrator backed by an HTTP model endpoint. With
// an empty endpoint the heuristic narrator is returned directly.
func NewModelNarrator(cfg ModelNarratorConfig) Narrator {
	if cfg.Endpoint == "" {
		return NewHeuristicNarrator()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &modelNarrator{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		fallback: NewHeuristicNarrator(),
	}
}

type narrateRequest struct {
	EventType string                 `json:"event_type"`
	RiskLevel string                 `json:"risk_level"`
	Overall   float64                `json:"overall_score"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

type narrateResponse struct {
	Summary string `json:"summary"`
}

func (n *modelNarrator) Narrate(ctx context.Context, inc Incident) (string, error) {
	body, err := json.Marshal(narrateRequest{
		EventType: inc.EventType,
		RiskLevel: string(inc.RiskLevel),
		Overall:   inc.Overall,
		Payload:   inc.Payload,
	})
	if err != nil {
		return n.fallback.Narrate(ctx, inc)
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return n.fallback.Narrate(ctx, inc)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.cfg.APIKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		logger.Warn(ctx, "narration model call failed, using fallback",
			zap.String("attempt_id", inc.AttemptID),
			zap.Error(err))
		return n.fallback.Narrate(ctx, inc)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn(ctx, "narration model returned non-200, using fallback",
			zap.String("attempt_id", inc.AttemptID),
			zap.Int("status", resp.StatusCode))
		return n.fallback.Narrate(ctx, inc)
	}

	var out narrateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Summary == "" {
		return n.fallback.Narrate(ctx, inc)
	}
	return out.Summary, nil
}
