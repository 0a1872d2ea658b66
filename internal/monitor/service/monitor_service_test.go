package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"proctorhub/internal/common/cache"
	"proctorhub/internal/integrity"
	"proctorhub/internal/monitor/model"
	"proctorhub/internal/monitor/repository"
	"proctorhub/internal/realtime"
	appErr "proctorhub/pkg/errors"

	"github.com/alicebob/miniredis/v2"
)

type monitorFixture struct {
	svc    *MonitorService
	signer *integrity.Signer
	hub    *realtime.Hub
}

func newMonitorFixture(t *testing.T, cfg Config) *monitorFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(mr.Addr())
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	signer, err := integrity.NewSigner("test-secret")
	if err != nil {
		t.Fatalf("create signer: %v", err)
	}

	hub := realtime.NewHub()
	svc := NewMonitorService(
		cfg,
		signer,
		NewTrustEngine(),
		NewLivenessTracker(cfg.HeartbeatTolerance),
		repository.NewEventRepository(c),
		nil,
		realtime.NewRouter(hub),
		nil,
	)
	return &monitorFixture{svc: svc, signer: signer, hub: hub}
}

func goodDevice() DeviceInfo {
	return DeviceInfo{Browser: "firefox", OS: "linux", WebcamFound: true, MonitorCount: 1}
}

func (f *monitorFixture) initAttempt(t *testing.T, attemptID string) {
	t.Helper()
	res, err := f.svc.InitSession(attemptID, "user-"+attemptID, "exam-1", goodDevice())
	if err != nil {
		t.Fatalf("init session: %v", err)
	}
	if !res.Ready {
		t.Fatalf("session not ready: %+v", res)
	}
}

func (f *monitorFixture) signEvent(t *testing.T, attemptID, eventType string, payload map[string]interface{}) string {
	t.Helper()
	sig, err := f.signer.Sign(map[string]interface{}{
		"attempt_id": attemptID,
		"event_type": eventType,
		"payload":    payload,
	})
	if err != nil {
		t.Fatalf("sign event: %v", err)
	}
	return sig
}

func readFeedMessage(t *testing.T, obs *realtime.Observer) *realtime.Message {
	t.Helper()
	select {
	case raw := <-obs.Outbox():
		var msg realtime.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("decode feed message: %v", err)
		}
		return &msg
	case <-time.After(time.Second):
		t.Fatal("no message on proctor feed")
		return nil
	}
}

func TestInitSessionBlocksOnPreflight(t *testing.T) {
	f := newMonitorFixture(t, DefaultConfig())

	dev := goodDevice()
	dev.WebcamFound = false
	dev.VMSuspected = true

	res, err := f.svc.InitSession("att-1", "user-1", "exam-1", dev)
	if err != nil {
		t.Fatalf("init session: %v", err)
	}
	if res.Ready {
		t.Fatal("session should not be ready with blocking findings")
	}
	if len(res.Blocking) != 2 {
		t.Fatalf("blocking = %v, want webcam and vm findings", res.Blocking)
	}
	// a blocked preflight leaves nothing registered
	if _, err := f.svc.Attempt("att-1"); appErr.GetCode(err) != appErr.AttemptNotFound {
		t.Fatalf("err = %v, want AttemptNotFound", err)
	}
}

func TestInitSessionRegistersAttempt(t *testing.T) {
	f := newMonitorFixture(t, DefaultConfig())

	dev := goodDevice()
	dev.MonitorCount = 2

	res, err := f.svc.InitSession("att-1", "user-1", "exam-1", dev)
	if err != nil {
		t.Fatalf("init session: %v", err)
	}
	if !res.Ready {
		t.Fatalf("result = %+v, want ready", res)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %v, want multi-monitor warning", res.Warnings)
	}
	if res.Fingerprint == "" {
		t.Fatal("device fingerprint is empty")
	}
	if res.Channel != "exam:att-1" {
		t.Fatalf("channel = %s, want exam:att-1", res.Channel)
	}
	if !res.SignatureRequired {
		t.Fatal("signature requirement not surfaced to client")
	}

	// reconnect re-init returns the same registration
	again, err := f.svc.InitSession("att-1", "user-1", "exam-1", dev)
	if err != nil {
		t.Fatalf("re-init session: %v", err)
	}
	if again.Attempt.StartTime != res.Attempt.StartTime {
		t.Fatal("re-init created a new attempt record")
	}
}

func TestInitSessionRejectsSecondActiveAttempt(t *testing.T) {
	f := newMonitorFixture(t, DefaultConfig())

	if _, err := f.svc.InitSession("att-1", "user-1", "exam-1", goodDevice()); err != nil {
		t.Fatalf("init session: %v", err)
	}

	// a fresh attempt ID for the same (user, exam) pair is refused while
	// the first attempt is still live
	_, err := f.svc.InitSession("att-2", "user-1", "exam-1", goodDevice())
	if appErr.GetCode(err) != appErr.AttemptAlreadyActive {
		t.Fatalf("err = %v, want AttemptAlreadyActive", err)
	}
	if coded := appErr.GetError(err); coded == nil || coded.Details["active_attempt_id"] != "att-1" {
		t.Fatalf("err = %v, want active_attempt_id detail pointing at att-1", err)
	}
	if _, err := f.svc.Attempt("att-2"); appErr.GetCode(err) != appErr.AttemptNotFound {
		t.Fatalf("rejected attempt leaked into registry: %v", err)
	}

	// same user in a different exam is fine
	if _, err := f.svc.InitSession("att-3", "user-1", "exam-2", goodDevice()); err != nil {
		t.Fatalf("init in second exam: %v", err)
	}

	// once the live attempt ends, a retake can start
	if err := f.svc.Terminate("att-1", "proctor decision"); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if _, err := f.svc.InitSession("att-4", "user-1", "exam-1", goodDevice()); err != nil {
		t.Fatalf("init after terminate: %v", err)
	}
}

func TestInitSessionRejectsMissingIDs(t *testing.T) {
	f := newMonitorFixture(t, DefaultConfig())

	if _, err := f.svc.InitSession("", "user-1", "exam-1", goodDevice()); appErr.GetCode(err) != appErr.InvalidParams {
		t.Fatalf("err = %v, want InvalidParams", err)
	}
}

func TestIngestEventRequiresSignature(t *testing.T) {
	f := newMonitorFixture(t, DefaultConfig())
	f.initAttempt(t, "att-1")

	_, err := f.svc.IngestEvent(context.Background(), "behavior", "att-1", EventInput{
		EventType:  "tab_switch",
		Confidence: 1.0,
	})
	if appErr.GetCode(err) != appErr.EventSignatureRequired {
		t.Fatalf("err = %v, want EventSignatureRequired", err)
	}

	_, err = f.svc.IngestEvent(context.Background(), "behavior", "att-1", EventInput{
		EventType:  "tab_switch",
		Confidence: 1.0,
		Signature:  "forged",
	})
	if appErr.GetCode(err) != appErr.EventSignatureInvalid {
		t.Fatalf("err = %v, want EventSignatureInvalid", err)
	}
}

func TestIngestEventSignedAppliesPenalty(t *testing.T) {
	f := newMonitorFixture(t, DefaultConfig())
	f.initAttempt(t, "att-1")

	feed := f.hub.Join(realtime.TeacherFeedChannel("exam-1"), "proctor-1")
	defer f.hub.Leave(feed)

	payload := map[string]interface{}{"duration_ms": 1200.0}
	adj, err := f.svc.IngestEvent(context.Background(), "behavior", "att-1", EventInput{
		EventType:  "tab_switch",
		Payload:    payload,
		Confidence: 1.0,
		Signature:  f.signEvent(t, "att-1", "tab_switch", payload),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if adj.Amount >= 0 {
		t.Fatalf("amount = %v, want a penalty", adj.Amount)
	}

	attempt, err := f.svc.Attempt("att-1")
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if attempt.TrustScore >= 100 {
		t.Fatalf("trust score = %v, want below 100", attempt.TrustScore)
	}

	violation := readFeedMessage(t, feed)
	if violation.Type != realtime.TypeViolation {
		t.Fatalf("first feed message = %s, want violation", violation.Type)
	}
	update := readFeedMessage(t, feed)
	if update.Type != realtime.TypeTrustUpdate {
		t.Fatalf("second feed message = %s, want trust_update", update.Type)
	}
}

func TestIngestEventUnsignedAcceptedWhenNotRequired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireSignature = false
	f := newMonitorFixture(t, cfg)
	f.initAttempt(t, "att-1")

	adj, err := f.svc.IngestEvent(context.Background(), "behavior", "att-1", EventInput{
		EventType:  "window_blur",
		Confidence: 0.5,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if adj.Amount >= 0 {
		t.Fatalf("amount = %v, want a penalty", adj.Amount)
	}
}

func TestIngestEventValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireSignature = false
	f := newMonitorFixture(t, cfg)
	f.initAttempt(t, "att-1")

	_, err := f.svc.IngestEvent(context.Background(), "behavior", "att-1", EventInput{Confidence: 1})
	if appErr.GetCode(err) != appErr.EventInvalid {
		t.Fatalf("err = %v, want EventInvalid for missing type", err)
	}

	_, err = f.svc.IngestEvent(context.Background(), "behavior", "att-1", EventInput{
		EventType:  "tab_switch",
		Confidence: 1.5,
	})
	if appErr.GetCode(err) != appErr.EventInvalid {
		t.Fatalf("err = %v, want EventInvalid for confidence out of range", err)
	}

	_, err = f.svc.IngestEvent(context.Background(), "behavior", "ghost", EventInput{
		EventType:  "tab_switch",
		Confidence: 1,
	})
	if appErr.GetCode(err) != appErr.AttemptNotFound {
		t.Fatalf("err = %v, want AttemptNotFound", err)
	}
}

func TestHeartbeatViolationsAreScored(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireSignature = false
	f := newMonitorFixture(t, cfg)
	f.initAttempt(t, "att-1")

	report, attempt, err := f.svc.Heartbeat(context.Background(), "att-1", HeartbeatInput{
		TabVisible: false,
		Fullscreen: false,
	})
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if len(report.Violations) != 2 {
		t.Fatalf("violations = %+v, want tab_hidden and fullscreen_exit", report.Violations)
	}
	if attempt.TrustScore >= 100 {
		t.Fatalf("trust score = %v, want penalized", attempt.TrustScore)
	}
}

func TestOverrideRequiresProctorRole(t *testing.T) {
	f := newMonitorFixture(t, DefaultConfig())
	f.initAttempt(t, "att-1")

	_, err := f.svc.Override(context.Background(), "student", "att-1", model.BehaviorStability, 5, "nope")
	if appErr.GetCode(err) != appErr.OverrideNotPermitted {
		t.Fatalf("err = %v, want OverrideNotPermitted", err)
	}
}

func TestOverrideAppliesAndBroadcasts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireSignature = false
	f := newMonitorFixture(t, cfg)
	f.initAttempt(t, "att-1")

	for i := 0; i < 2; i++ {
		if _, err := f.svc.IngestEvent(context.Background(), "behavior", "att-1", EventInput{
			EventType:  "tab_switch",
			Confidence: 0,
		}); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	feed := f.hub.Join(realtime.TeacherFeedChannel("exam-1"), "proctor-1")
	defer f.hub.Leave(feed)

	adj, err := f.svc.Override(context.Background(), "teacher", "att-1", model.BehaviorStability, 8, "reviewed recording, benign")
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if adj.Amount != 8 {
		t.Fatalf("amount = %v, want 8", adj.Amount)
	}

	msg := readFeedMessage(t, feed)
	if msg.Type != realtime.TypeTrustUpdate {
		t.Fatalf("feed message = %s, want trust_update", msg.Type)
	}
	if manual, _ := msg.Data["manual"].(bool); !manual {
		t.Fatalf("data = %v, want manual flag", msg.Data)
	}
}

func TestPauseAndResume(t *testing.T) {
	f := newMonitorFixture(t, DefaultConfig())
	f.initAttempt(t, "att-1")

	exam := f.hub.Join(realtime.ExamChannel("att-1"), "student-1")
	defer f.hub.Leave(exam)

	if err := f.svc.Pause("att-1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if msg := readFeedMessage(t, exam); msg.Type != realtime.TypePauseExam {
		t.Fatalf("exam message = %s, want pause_exam", msg.Type)
	}

	if err := f.svc.Resume("att-1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if msg := readFeedMessage(t, exam); msg.Type != realtime.TypeResumeExam {
		t.Fatalf("exam message = %s, want resume_exam", msg.Type)
	}
}

func TestTerminateStopsIngestButKeepsAuditState(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireSignature = false
	f := newMonitorFixture(t, cfg)
	f.initAttempt(t, "att-1")

	if _, err := f.svc.IngestEvent(context.Background(), "behavior", "att-1", EventInput{
		EventType:  "devtools_open",
		Confidence: 0,
	}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if err := f.svc.Terminate("att-1", "repeated devtools usage"); err != nil {
		t.Fatalf("terminate: %v", err)
	}

	_, err := f.svc.IngestEvent(context.Background(), "behavior", "att-1", EventInput{
		EventType:  "tab_switch",
		Confidence: 1,
	})
	if appErr.GetCode(err) != appErr.AttemptTerminated {
		t.Fatalf("err = %v, want AttemptTerminated", err)
	}

	if err := f.svc.Terminate("att-1", "again"); appErr.GetCode(err) != appErr.AttemptTerminated {
		t.Fatalf("second terminate err = %v, want AttemptTerminated", err)
	}

	// scoring state survives for audit assembly
	attempt, err := f.svc.Attempt("att-1")
	if err != nil {
		t.Fatalf("attempt after terminate: %v", err)
	}
	if attempt.Status != model.AttemptTerminated || attempt.EndTime == nil {
		t.Fatalf("attempt = %+v, want terminated with end time", attempt)
	}
	if attempt.TrustScore >= 100 {
		t.Fatalf("trust score = %v, penalties should survive termination", attempt.TrustScore)
	}
}

func TestLiveSessionsOrderedByRisk(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireSignature = false
	f := newMonitorFixture(t, cfg)
	ctx := context.Background()

	for _, id := range []string{"att-clean", "att-warm", "att-hot"} {
		f.initAttempt(t, id)
	}

	// att-warm stays in the low tier with a reduced score
	for i := 0; i < 3; i++ {
		if _, err := f.svc.IngestEvent(ctx, "behavior", "att-warm", EventInput{
			EventType:  "tab_switch",
			Confidence: 0,
		}); err != nil {
			t.Fatalf("ingest warm: %v", err)
		}
	}
	// att-hot drops below the low tier boundary
	for i := 0; i < 7; i++ {
		if _, err := f.svc.IngestEvent(ctx, "behavior", "att-hot", EventInput{
			EventType:  "devtools_open",
			Confidence: 0,
		}); err != nil {
			t.Fatalf("ingest hot: %v", err)
		}
	}
	for i := 0; i < 13; i++ {
		if _, err := f.svc.IngestEvent(ctx, "behavior", "att-hot", EventInput{
			EventType:  "typing_anomaly",
			Confidence: 0,
		}); err != nil {
			t.Fatalf("ingest hot typing: %v", err)
		}
	}

	sessions := f.svc.LiveSessions("exam-1")
	if len(sessions) != 3 {
		t.Fatalf("got %d sessions, want 3", len(sessions))
	}
	want := []string{"att-hot", "att-warm", "att-clean"}
	for i, id := range want {
		if sessions[i].Attempt.ID != id {
			t.Fatalf("position %d = %s, want %s", i, sessions[i].Attempt.ID, id)
		}
	}
	if sessions[0].Attempt.RiskLevel == model.RiskLow {
		t.Fatalf("att-hot risk = %s, want below the low tier", sessions[0].Attempt.RiskLevel)
	}

	// terminated attempts fall off the dashboard
	if err := f.svc.Terminate("att-hot", "cheating confirmed"); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if n := len(f.svc.LiveSessions("exam-1")); n != 2 {
		t.Fatalf("got %d sessions after terminate, want 2", n)
	}
}

func TestAttemptStatusAggregates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireSignature = false
	f := newMonitorFixture(t, cfg)
	f.initAttempt(t, "att-1")
	ctx := context.Background()

	if _, err := f.svc.IngestEvent(ctx, "behavior", "att-1", EventInput{
		EventType:  "paste_detected",
		Payload:    map[string]interface{}{"wpm": 140.0, "backspace_ratio": 0.02},
		Confidence: 1,
	}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	status, err := f.svc.AttemptStatus(ctx, "att-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Attempt.TrustScore >= 100 {
		t.Fatalf("trust score = %v, want penalized", status.Attempt.TrustScore)
	}
	if len(status.Recent) != 1 {
		t.Fatalf("recent events = %d, want 1", len(status.Recent))
	}
	if status.Typing == nil || !status.Typing.PasteDetected {
		t.Fatalf("typing = %+v, want paste flag", status.Typing)
	}
	if status.Typing.AvgWPM != 140 {
		t.Fatalf("avg wpm = %v, want 140", status.Typing.AvgWPM)
	}

	if _, err := f.svc.AttemptStatus(ctx, "ghost"); appErr.GetCode(err) != appErr.AttemptNotFound {
		t.Fatalf("err = %v, want AttemptNotFound", err)
	}
}
