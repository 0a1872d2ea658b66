package realtime

import (
	"encoding/json"
	"time"
)

// Message is the envelope exchanged over realtime channels.
type Message struct {
	Type      string                 `json:"type"`
	AttemptID string                 `json:"attempt_id,omitempty"`
	ExamID    string                 `json:"exam_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	SentAt    time.Time              `json:"sent_at,omitempty"`
}

// Message types understood by the router.
const (
	TypeViolation   = "violation"
	TypeTrustUpdate = "trust_update"
	TypeCodeUpdate  = "code_update"
	TypeCameraFrame = "camera_frame"
	TypeAudioAlert  = "audio_alert"
	TypeSnapshot    = "snapshot"
	TypeDisconnect  = "student_disconnect"

	TypeIntervention = "intervention"
	TypePauseExam    = "pause_exam"
	TypeResumeExam   = "resume_exam"
	TypeTerminate    = "terminate_exam"

	TypeTimerSync = "timer_sync"
	TypePing      = "ping"
	TypePong      = "pong"
)

// Router applies the channel routing rules to inbound realtime messages.
type Router struct {
	hub *Hub
}

// NewRouter creates a router on the given hub.
func NewRouter(hub *Hub) *Router {
	return &Router{hub: hub}
}

// Route dispatches msg according to its type. sender identifies the
// originating observer so echo replies reach only it. Messages with an
// unrecognized type are dropped; a routing table miss is not an error the
// sender can act on.
func (r *Router) Route(sender *Observer, msg *Message) {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return
	}

	switch msg.Type {
	case TypeViolation, TypeTrustUpdate:
		// Proctors and admins both need these.
		r.hub.Broadcast(TeacherFeedChannel(msg.ExamID), body)
		r.hub.Broadcast(AdminChannel, body)

	case TypeCodeUpdate, TypeCameraFrame, TypeAudioAlert, TypeSnapshot, TypeDisconnect:
		r.hub.Broadcast(TeacherFeedChannel(msg.ExamID), body)

	case TypeIntervention, TypePauseExam, TypeResumeExam, TypeTerminate:
		r.hub.Broadcast(ExamChannel(msg.AttemptID), body)

	case TypeTimerSync:
		if sender != nil {
			r.hub.Unicast(sender.Channel, sender.ID, body)
		}

	case TypePing:
		if sender != nil {
			pong, err := json.Marshal(&Message{Type: TypePong, SentAt: time.Now()})
			if err != nil {
				return
			}
			r.hub.Unicast(sender.Channel, sender.ID, pong)
		}
	}
}
