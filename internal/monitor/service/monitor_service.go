package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"proctorhub/internal/integrity"
	"proctorhub/internal/metrics"
	"proctorhub/internal/monitor/model"
	"proctorhub/internal/monitor/repository"
	"proctorhub/internal/realtime"
	appErr "proctorhub/pkg/errors"
	"proctorhub/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config tunes the monitoring pipeline.
type Config struct {
	// RequireSignature rejects events that arrive unsigned. Disabled only in
	// development environments.
	RequireSignature bool `yaml:"requireSignature"`

	// HeartbeatInterval is handed to clients at session init.
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`

	// HeartbeatTolerance is the gap beyond which a violation is emitted.
	HeartbeatTolerance time.Duration `yaml:"heartbeatTolerance"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RequireSignature:   true,
		HeartbeatInterval:  DefaultHeartbeatInterval,
		HeartbeatTolerance: DefaultHeartbeatTolerance,
	}
}

// typingState aggregates observed typing samples per attempt.
type typingState struct {
	samples       int
	wpmSum        float64
	backspaceSum  float64
	pasteDetected bool
	burstDetected bool
}

// MonitorService orchestrates the ingestion pipeline: verify, record, score,
// broadcast, export. It owns the in-memory attempt registry.
type MonitorService struct {
	cfg      Config
	signer   *integrity.Signer
	trust    *TrustEngine
	liveness *LivenessTracker
	events   *repository.EventRepository
	exporter *repository.EventPublisher
	router   *realtime.Router
	narrator Narrator

	mu       sync.RWMutex
	attempts map[string]*model.Attempt
	typing   map[string]*typingState
	locks    *keyedMutex
	now      func() time.Time
}

// NewMonitorService wires the pipeline. exporter and narrator may be nil.
func NewMonitorService(
	cfg Config,
	signer *integrity.Signer,
	trust *TrustEngine,
	liveness *LivenessTracker,
	events *repository.EventRepository,
	exporter *repository.EventPublisher,
	router *realtime.Router,
	narrator Narrator,
) *MonitorService {
	if narrator == nil {
		narrator = NewHeuristicNarrator()
	}
	return &MonitorService{
		cfg:      cfg,
		signer:   signer,
		trust:    trust,
		liveness: liveness,
		events:   events,
		exporter: exporter,
		router:   router,
		narrator: narrator,
		attempts: make(map[string]*model.Attempt),
		typing:   make(map[string]*typingState),
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// DeviceInfo is the client-reported environment checked during preflight.
type DeviceInfo struct {
	Browser      string `json:"browser"`
	OS           string `json:"os"`
	WebcamFound  bool   `json:"webcam_found"`
	MonitorCount int    `json:"monitor_count"`
	VMSuspected  bool   `json:"vm_suspected"`
}

// SessionInitResult is handed to the client after preflight.
type SessionInitResult struct {
	Attempt            *model.Attempt `json:"attempt"`
	Ready              bool           `json:"ready"`
	Blocking           []string       `json:"blocking,omitempty"`
	Warnings           []string       `json:"warnings,omitempty"`
	Fingerprint        string         `json:"device_fingerprint,omitempty"`
	HeartbeatInterval  float64        `json:"heartbeat_interval_seconds"`
	HeartbeatTolerance float64        `json:"heartbeat_tolerance_seconds"`
	Channel            string         `json:"channel"`
	SignatureRequired  bool           `json:"signature_required"`
}

// preflight runs the device environment checks. Blocking findings keep the
// session from going live; warnings are surfaced to the proctor feed only.
func preflight(dev DeviceInfo) (blocking, warnings []string) {
	if !dev.WebcamFound {
		blocking = append(blocking, "webcam is required but was not found")
	}
	if dev.VMSuspected {
		blocking = append(blocking, "virtual machine environment detected")
	}
	if dev.MonitorCount > 1 {
		warnings = append(warnings, "multiple monitors detected")
	}
	if dev.Browser == "" {
		warnings = append(warnings, "browser could not be identified")
	}
	return blocking, warnings
}

// InitSession runs preflight, registers the attempt and returns the
// monitoring parameters the client must follow. A blocking preflight finding
// leaves the attempt unregistered. Re-initializing an active attempt returns
// the existing registration so client reconnects are harmless.
func (s *MonitorService) InitSession(attemptID, userID, examID string, dev DeviceInfo) (*SessionInitResult, error) {
	if attemptID == "" || userID == "" || examID == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("attempt_id, user_id and exam_id are required")
	}

	blocking, warnings := preflight(dev)
	if len(blocking) > 0 {
		return &SessionInitResult{
			Ready:    false,
			Blocking: blocking,
			Warnings: warnings,
		}, nil
	}

	fingerprint, err := s.signer.Sign(map[string]interface{}{
		"attempt_id":    attemptID,
		"user_id":       userID,
		"browser":       dev.Browser,
		"os":            dev.OS,
		"monitor_count": dev.MonitorCount,
	})
	if err != nil {
		return nil, appErr.Wrap(err, appErr.SessionNotReady)
	}

	unlock := s.locks.Lock(attemptID)
	defer unlock()

	s.mu.Lock()
	attempt, ok := s.attempts[attemptID]
	if ok {
		if attempt.Status == model.AttemptTerminated {
			s.mu.Unlock()
			return nil, appErr.New(appErr.AttemptTerminated)
		}
	} else {
		// At most one active attempt per (user, exam). A second attempt ID
		// for the same pair is rejected, pointing at the live one.
		for _, existing := range s.attempts {
			if existing.UserID == userID && existing.ExamID == examID &&
				existing.Status == model.AttemptActive {
				s.mu.Unlock()
				return nil, appErr.New(appErr.AttemptAlreadyActive).
					WithDetail("active_attempt_id", existing.ID)
			}
		}
		attempt = model.NewAttempt(attemptID, userID, examID, s.now())
		s.attempts[attemptID] = attempt
		metrics.ActiveAttempts.Inc()
	}
	s.mu.Unlock()

	logger.Info(context.Background(), "session initialized",
		zap.String("attempt_id", attemptID),
		zap.String("exam_id", examID),
		zap.String("user_id", userID))

	return &SessionInitResult{
		Attempt:            attempt,
		Ready:              true,
		Warnings:           warnings,
		Fingerprint:        fingerprint,
		HeartbeatInterval:  s.cfg.HeartbeatInterval.Seconds(),
		HeartbeatTolerance: s.cfg.HeartbeatTolerance.Seconds(),
		Channel:            realtime.ExamChannel(attemptID),
		SignatureRequired:  s.cfg.RequireSignature,
	}, nil
}

// Heartbeat processes one liveness ping and converts each detected violation
// into a scored event.
func (s *MonitorService) Heartbeat(ctx context.Context, attemptID string, in HeartbeatInput) (*HeartbeatReport, *model.Attempt, error) {
	attempt, err := s.activeAttempt(attemptID)
	if err != nil {
		return nil, nil, err
	}

	report := s.liveness.Beat(attemptID, in)
	for _, v := range report.Violations {
		payload := map[string]interface{}{"message": v.Message}
		if v.GapSeconds > 0 {
			payload["gap_seconds"] = v.GapSeconds
		}
		if v.Level > 0 {
			payload["level"] = v.Level
		}
		s.processEvent(ctx, attempt, "heartbeat", v.Type, payload, 1.0)
	}

	return &report, s.snapshotAttempt(attemptID), nil
}

// EventInput is one signal event submitted by the client.
type EventInput struct {
	EventType  string
	Payload    map[string]interface{}
	Confidence float64
	Signature  string
}

// IngestEvent runs the full pipeline for one client-submitted signal event:
// signature verification, recording, trust scoring, fanout and export.
func (s *MonitorService) IngestEvent(ctx context.Context, source, attemptID string, in EventInput) (*Adjustment, error) {
	if in.EventType == "" {
		return nil, appErr.New(appErr.EventInvalid).WithMessage("event_type is required")
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return nil, appErr.New(appErr.EventInvalid).WithMessage("confidence must be in [0,1]")
	}

	attempt, err := s.activeAttempt(attemptID)
	if err != nil {
		return nil, err
	}

	if s.cfg.RequireSignature || in.Signature != "" {
		if in.Signature == "" {
			metrics.EventsRejected.WithLabelValues("signature_missing").Inc()
			return nil, appErr.New(appErr.EventSignatureRequired)
		}
		signed := map[string]interface{}{
			"attempt_id": attemptID,
			"event_type": in.EventType,
			"payload":    in.Payload,
		}
		if !s.signer.Verify(signed, in.Signature) {
			metrics.EventsRejected.WithLabelValues("signature_invalid").Inc()
			return nil, appErr.New(appErr.EventSignatureInvalid)
		}
	}

	s.observeTyping(attemptID, in.EventType, in.Payload)

	adj := s.processEvent(ctx, attempt, source, in.EventType, in.Payload, in.Confidence)
	return adj, nil
}

// processEvent records, scores, broadcasts and exports one accepted event.
// The caller has already validated attempt state and signature.
func (s *MonitorService) processEvent(ctx context.Context, attempt *model.Attempt, source, eventType string, payload map[string]interface{}, confidence float64) *Adjustment {
	now := s.now()
	event := &model.Event{
		ID:         uuid.NewString(),
		AttemptID:  attempt.ID,
		Type:       eventType,
		Payload:    payload,
		Confidence: confidence,
		CreatedAt:  now,
	}

	if err := s.events.Append(ctx, event); err != nil {
		// Scoring continues; the audit trail degrades but live proctoring
		// must not stop on a cache hiccup.
		logger.Error(ctx, "record event failed",
			zap.String("attempt_id", attempt.ID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
	metrics.EventsIngested.WithLabelValues(source).Inc()

	adj := s.trust.ApplyEvent(attempt.ID, eventType, confidence)
	s.applyToAttempt(attempt.ID, adj)

	if adj.Amount != 0 {
		delta := &model.ScoreDelta{
			AttemptID: attempt.ID,
			EventType: eventType,
			Dimension: adj.Dimension,
			Amount:    adj.Amount,
			Overall:   adj.Overall,
			RiskLevel: adj.RiskLevel,
			AppliedAt: now,
		}
		if sig, err := s.signer.Sign(map[string]interface{}{
			"attempt_id": delta.AttemptID,
			"event_type": delta.EventType,
			"dimension":  string(delta.Dimension),
			"amount":     delta.Amount,
			"overall":    delta.Overall,
		}); err == nil {
			delta.Signature = sig
		}
		if err := s.events.AppendDelta(ctx, delta); err != nil {
			logger.Error(ctx, "record score delta failed",
				zap.String("attempt_id", attempt.ID),
				zap.Error(err))
		}
		s.exporter.PublishDelta(delta)
		metrics.ViolationsDetected.WithLabelValues(normalizeEventType(eventType)).Inc()
	}
	s.exporter.PublishEvent(event)

	s.broadcast(attempt, eventType, payload, adj)
	return &adj
}

// broadcast fans the event out to the proctor channels, attaching an async
// narration for high and critical incidents.
func (s *MonitorService) broadcast(attempt *model.Attempt, eventType string, payload map[string]interface{}, adj Adjustment) {
	if s.router == nil {
		return
	}

	risk := EventRisk(eventType)
	data := map[string]interface{}{
		"violation_type": eventType,
		"risk":           string(risk),
		"payload":        payload,
	}

	msgType := realtime.TypeViolation
	if adj.Amount == 0 {
		msgType = realtime.TypeSnapshot
	}

	if adj.Amount != 0 && (risk == model.RiskHigh || risk == model.RiskCritical) {
		// Narration may call an external model; never block the ingest path.
		attemptID, examID := attempt.ID, attempt.ExamID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			summary, err := s.narrator.Narrate(ctx, Incident{
				AttemptID: attemptID,
				EventType: eventType,
				RiskLevel: adj.RiskLevel,
				Overall:   adj.Overall,
				Payload:   payload,
			})
			if err != nil || summary == "" {
				return
			}
			s.router.Route(nil, &realtime.Message{
				Type:      realtime.TypeSnapshot,
				AttemptID: attemptID,
				ExamID:    examID,
				Data: map[string]interface{}{
					"narration":      summary,
					"violation_type": eventType,
				},
			})
			metrics.BroadcastsSent.WithLabelValues("narration").Inc()
		}()
	}

	s.router.Route(nil, &realtime.Message{
		Type:      msgType,
		AttemptID: attempt.ID,
		ExamID:    attempt.ExamID,
		Data:      data,
	})
	metrics.BroadcastsSent.WithLabelValues(msgType).Inc()

	if adj.Amount != 0 {
		s.router.Route(nil, &realtime.Message{
			Type:      realtime.TypeTrustUpdate,
			AttemptID: attempt.ID,
			ExamID:    attempt.ExamID,
			Data: map[string]interface{}{
				"dimension":   string(adj.Dimension),
				"delta":       adj.Amount,
				"trust_score": adj.Overall,
				"risk_level":  string(adj.RiskLevel),
			},
		})
		metrics.BroadcastsSent.WithLabelValues(realtime.TypeTrustUpdate).Inc()
	}
}

// Status is the consolidated live view of one attempt.
type Status struct {
	Attempt    *model.Attempt        `json:"attempt"`
	Dimensions model.TrustDimensions `json:"dimensions"`
	Liveness   LivenessSnapshot      `json:"liveness"`
	Typing     *model.TypingSummary  `json:"typing,omitempty"`
	Recent     []*model.Event        `json:"recent_events"`
}

// AttemptStatus returns the consolidated status for one attempt.
func (s *MonitorService) AttemptStatus(ctx context.Context, attemptID string) (*Status, error) {
	attempt := s.snapshotAttempt(attemptID)
	if attempt == nil {
		return nil, appErr.New(appErr.AttemptNotFound)
	}

	dims, overall, risk := s.trust.Snapshot(attemptID)
	attempt.TrustScore = overall
	attempt.RiskLevel = risk

	recent, err := s.events.Recent(ctx, attemptID, 20)
	if err != nil {
		logger.Warn(ctx, "read recent events failed",
			zap.String("attempt_id", attemptID),
			zap.Error(err))
		recent = nil
	}

	return &Status{
		Attempt:    attempt,
		Dimensions: dims,
		Liveness:   s.liveness.Snapshot(attemptID),
		Typing:     s.typingSummary(attemptID),
		Recent:     recent,
	}, nil
}

// LiveSession is one row of the proctor dashboard.
type LiveSession struct {
	Attempt  *model.Attempt   `json:"attempt"`
	Liveness LivenessSnapshot `json:"liveness"`
}

// LiveSessions lists the non-terminated attempts for an exam, highest risk
// first.
func (s *MonitorService) LiveSessions(examID string) []*LiveSession {
	s.mu.RLock()
	sessions := make([]*LiveSession, 0)
	for _, attempt := range s.attempts {
		if attempt.ExamID != examID || attempt.Status == model.AttemptTerminated {
			continue
		}
		copied := *attempt
		sessions = append(sessions, &LiveSession{Attempt: &copied})
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		_, overall, risk := s.trust.Snapshot(sess.Attempt.ID)
		sess.Attempt.TrustScore = overall
		sess.Attempt.RiskLevel = risk
		sess.Liveness = s.liveness.Snapshot(sess.Attempt.ID)
	}

	sort.Slice(sessions, func(i, j int) bool {
		ri := model.RiskRank(sessions[i].Attempt.RiskLevel)
		rj := model.RiskRank(sessions[j].Attempt.RiskLevel)
		if ri != rj {
			return ri < rj
		}
		return sessions[i].Attempt.TrustScore < sessions[j].Attempt.TrustScore
	})
	return sessions
}

// Override applies a manual trust correction from a proctor and records it on
// the audit trail.
func (s *MonitorService) Override(ctx context.Context, actorRole, attemptID string, dim model.Dimension, amount float64, reason string) (*Adjustment, error) {
	if actorRole != "teacher" && actorRole != "admin" {
		return nil, appErr.New(appErr.OverrideNotPermitted)
	}
	attempt, err := s.activeAttempt(attemptID)
	if err != nil {
		return nil, err
	}

	adj, err := s.trust.Override(attemptID, dim, amount)
	if err != nil {
		return nil, err
	}
	s.applyToAttempt(attemptID, adj)
	metrics.TrustOverrides.Inc()

	delta := &model.ScoreDelta{
		AttemptID: attemptID,
		EventType: "manual_override",
		Dimension: adj.Dimension,
		Amount:    adj.Amount,
		Overall:   adj.Overall,
		RiskLevel: adj.RiskLevel,
		AppliedAt: s.now(),
	}
	if err := s.events.AppendDelta(ctx, delta); err != nil {
		logger.Error(ctx, "record override delta failed",
			zap.String("attempt_id", attemptID),
			zap.Error(err))
	}
	s.exporter.PublishDelta(delta)

	if s.router != nil {
		s.router.Route(nil, &realtime.Message{
			Type:      realtime.TypeTrustUpdate,
			AttemptID: attemptID,
			ExamID:    attempt.ExamID,
			Data: map[string]interface{}{
				"dimension":   string(adj.Dimension),
				"delta":       adj.Amount,
				"trust_score": adj.Overall,
				"risk_level":  string(adj.RiskLevel),
				"manual":      true,
				"reason":      reason,
			},
		})
	}

	logger.Info(ctx, "trust override applied",
		zap.String("attempt_id", attemptID),
		zap.String("dimension", string(dim)),
		zap.Float64("amount", amount),
		zap.String("reason", reason))
	return &adj, nil
}

// Pause suspends monitoring for an attempt and tells the client to pause.
func (s *MonitorService) Pause(attemptID string) error {
	return s.intervene(attemptID, realtime.TypePauseExam, true)
}

// Resume lifts a pause.
func (s *MonitorService) Resume(attemptID string) error {
	return s.intervene(attemptID, realtime.TypeResumeExam, false)
}

func (s *MonitorService) intervene(attemptID, msgType string, paused bool) error {
	attempt, err := s.activeAttempt(attemptID)
	if err != nil {
		return err
	}
	s.liveness.SetPaused(attemptID, paused)
	if s.router != nil {
		s.router.Route(nil, &realtime.Message{
			Type:      msgType,
			AttemptID: attemptID,
			ExamID:    attempt.ExamID,
		})
	}
	return nil
}

// Terminate ends an attempt. Scoring state is retained for audit assembly;
// liveness tracking stops immediately.
func (s *MonitorService) Terminate(attemptID, reason string) error {
	unlock := s.locks.Lock(attemptID)
	defer unlock()

	s.mu.Lock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		s.mu.Unlock()
		return appErr.New(appErr.AttemptNotFound)
	}
	if attempt.Status == model.AttemptTerminated {
		s.mu.Unlock()
		return appErr.New(appErr.AttemptTerminated)
	}
	now := s.now()
	attempt.Status = model.AttemptTerminated
	attempt.EndTime = &now
	examID := attempt.ExamID
	s.mu.Unlock()

	metrics.ActiveAttempts.Dec()
	s.liveness.Forget(attemptID)

	if s.router != nil {
		s.router.Route(nil, &realtime.Message{
			Type:      realtime.TypeTerminate,
			AttemptID: attemptID,
			ExamID:    examID,
			Data:      map[string]interface{}{"reason": reason},
		})
		s.router.Route(nil, &realtime.Message{
			Type:      realtime.TypeDisconnect,
			AttemptID: attemptID,
			ExamID:    examID,
		})
	}

	logger.Info(context.Background(), "attempt terminated",
		zap.String("attempt_id", attemptID),
		zap.String("reason", reason))
	return nil
}

// Complete marks a normally finished attempt.
func (s *MonitorService) Complete(attemptID string) error {
	unlock := s.locks.Lock(attemptID)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return appErr.New(appErr.AttemptNotFound)
	}
	if attempt.Status != model.AttemptActive {
		return appErr.New(appErr.AttemptNotActive)
	}
	now := s.now()
	attempt.Status = model.AttemptCompleted
	attempt.EndTime = &now
	metrics.ActiveAttempts.Dec()
	return nil
}

// Attempt returns a copy of the attempt record, refreshed with the current
// trust snapshot.
func (s *MonitorService) Attempt(attemptID string) (*model.Attempt, error) {
	attempt := s.snapshotAttempt(attemptID)
	if attempt == nil {
		return nil, appErr.New(appErr.AttemptNotFound)
	}
	_, overall, risk := s.trust.Snapshot(attemptID)
	attempt.TrustScore = overall
	attempt.RiskLevel = risk
	return attempt, nil
}

// ExamIDFor reports the exam a registered attempt belongs to.
func (s *MonitorService) ExamIDFor(attemptID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return "", false
	}
	return attempt.ExamID, true
}

// activeAttempt returns the live attempt record or the appropriate error.
func (s *MonitorService) activeAttempt(attemptID string) (*model.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return nil, appErr.New(appErr.AttemptNotFound)
	}
	if attempt.Status == model.AttemptTerminated {
		return nil, appErr.New(appErr.AttemptTerminated)
	}
	if attempt.Status != model.AttemptActive {
		return nil, appErr.New(appErr.AttemptNotActive)
	}
	return attempt, nil
}

// snapshotAttempt returns a copy of the attempt, or nil when unknown.
func (s *MonitorService) snapshotAttempt(attemptID string) *model.Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return nil
	}
	copied := *attempt
	return &copied
}

// applyToAttempt folds an adjustment's derived values into the registry row.
func (s *MonitorService) applyToAttempt(attemptID string, adj Adjustment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if attempt, ok := s.attempts[attemptID]; ok {
		attempt.TrustScore = adj.Overall
		attempt.RiskLevel = adj.RiskLevel
	}
}

// observeTyping folds typing metrics out of behavior payloads.
func (s *MonitorService) observeTyping(attemptID, eventType string, payload map[string]interface{}) {
	normalized := normalizeEventType(eventType)
	switch normalized {
	case "typing_anomaly", "burst_typing", "high_wpm", "paste_detected", "typing_sample":
	default:
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.typing[attemptID]
	if !ok {
		state = &typingState{}
		s.typing[attemptID] = state
	}
	if wpm, ok := payload["wpm"].(float64); ok {
		state.samples++
		state.wpmSum += wpm
		if ratio, ok := payload["backspace_ratio"].(float64); ok {
			state.backspaceSum += ratio
		}
	}
	if normalized == "paste_detected" {
		state.pasteDetected = true
	}
	if normalized == "burst_typing" {
		state.burstDetected = true
	}
}

// typingSummary returns the aggregate typing view, or nil with no samples.
func (s *MonitorService) typingSummary(attemptID string) *model.TypingSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.typing[attemptID]
	if !ok {
		return nil
	}
	summary := &model.TypingSummary{
		PasteDetected: state.pasteDetected,
		BurstDetected: state.burstDetected,
	}
	if state.samples > 0 {
		summary.AvgWPM = round2(state.wpmSum / float64(state.samples))
		summary.AvgBackspaceRatio = round2(state.backspaceSum / float64(state.samples))
	}
	return summary
}
