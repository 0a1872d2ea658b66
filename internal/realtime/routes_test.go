package realtime

import (
	"encoding/json"
	"testing"
	"time"
)

func decodeMessage(t *testing.T, raw []byte) *Message {
	t.Helper()
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode delivery: %v", err)
	}
	return &msg
}

func TestRouteViolationReachesTeachersAndAdmins(t *testing.T) {
	hub := NewHub()
	router := NewRouter(hub)

	teacher := hub.Join(TeacherFeedChannel("exam-1"), "teacher-1")
	admin := hub.Join(AdminChannel, "admin-1")
	student := hub.Join(ExamChannel("att-1"), "student-1")

	router.Route(nil, &Message{
		Type:      TypeViolation,
		AttemptID: "att-1",
		ExamID:    "exam-1",
		Data:      map[string]interface{}{"violation_type": "tab_switch"},
	})

	got := decodeMessage(t, recvOrTimeout(t, teacher))
	if got.Type != TypeViolation {
		t.Fatalf("teacher got type %q", got.Type)
	}
	if got := decodeMessage(t, recvOrTimeout(t, admin)); got.Type != TypeViolation {
		t.Fatalf("admin got type %q", got.Type)
	}
	select {
	case msg := <-student.Outbox():
		t.Fatalf("student must not receive violations, got %s", msg)
	default:
	}
}

func TestRouteCodeUpdateTeacherFeedOnly(t *testing.T) {
	hub := NewHub()
	router := NewRouter(hub)

	teacher := hub.Join(TeacherFeedChannel("exam-1"), "teacher-1")
	admin := hub.Join(AdminChannel, "admin-1")

	router.Route(nil, &Message{Type: TypeCodeUpdate, ExamID: "exam-1"})

	if got := decodeMessage(t, recvOrTimeout(t, teacher)); got.Type != TypeCodeUpdate {
		t.Fatalf("teacher got type %q", got.Type)
	}
	select {
	case msg := <-admin.Outbox():
		t.Fatalf("admin must not receive code updates, got %s", msg)
	default:
	}
}

func TestRouteInterventionTargetsExamChannel(t *testing.T) {
	hub := NewHub()
	router := NewRouter(hub)

	student := hub.Join(ExamChannel("att-1"), "student-1")
	other := hub.Join(ExamChannel("att-2"), "student-2")

	router.Route(nil, &Message{Type: TypeIntervention, AttemptID: "att-1", ExamID: "exam-1"})

	if got := decodeMessage(t, recvOrTimeout(t, student)); got.Type != TypeIntervention {
		t.Fatalf("student got type %q", got.Type)
	}
	select {
	case msg := <-other.Outbox():
		t.Fatalf("other attempt must not receive intervention, got %s", msg)
	default:
	}
}

func TestRoutePingEchoesPongToSender(t *testing.T) {
	hub := NewHub()
	router := NewRouter(hub)

	sender := hub.Join(ExamChannel("att-1"), "student-1")
	peer := hub.Join(ExamChannel("att-1"), "student-2")

	router.Route(sender, &Message{Type: TypePing})

	if got := decodeMessage(t, recvOrTimeout(t, sender)); got.Type != TypePong {
		t.Fatalf("sender got type %q", got.Type)
	}
	select {
	case msg := <-peer.Outbox():
		t.Fatalf("peer must not receive pong, got %s", msg)
	default:
	}
}

func TestRouteTimerSyncUnicast(t *testing.T) {
	hub := NewHub()
	router := NewRouter(hub)

	sender := hub.Join(ExamChannel("att-1"), "student-1")
	router.Route(sender, &Message{Type: TypeTimerSync, Data: map[string]interface{}{"remaining": 120}})

	got := decodeMessage(t, recvOrTimeout(t, sender))
	if got.Type != TypeTimerSync {
		t.Fatalf("got type %q", got.Type)
	}
	if got.SentAt.IsZero() {
		t.Fatalf("expected router to stamp sent_at")
	}
}

func TestRouteUnknownTypeDropped(t *testing.T) {
	hub := NewHub()
	router := NewRouter(hub)

	teacher := hub.Join(TeacherFeedChannel("exam-1"), "teacher-1")
	admin := hub.Join(AdminChannel, "admin-1")

	router.Route(nil, &Message{Type: "gibberish", ExamID: "exam-1", SentAt: time.Now()})

	select {
	case msg := <-teacher.Outbox():
		t.Fatalf("unknown type must be dropped, teacher got %s", msg)
	case msg := <-admin.Outbox():
		t.Fatalf("unknown type must be dropped, admin got %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
