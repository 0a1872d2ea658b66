// Package controller exposes the monitoring HTTP surface.
package controller

import (
	"time"

	"proctorhub/internal/audit"
	"proctorhub/internal/auth"
	"proctorhub/internal/monitor/model"
	"proctorhub/internal/monitor/service"
	appErr "proctorhub/pkg/errors"
	"proctorhub/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// MonitorController handles exam monitoring endpoints.
type MonitorController struct {
	monitor   *service.MonitorService
	assembler audit.Assembler
	archiver  *audit.Archiver
}

// NewMonitorController creates the controller. archiver may be nil when no
// object storage is configured.
func NewMonitorController(monitor *service.MonitorService, assembler audit.Assembler, archiver *audit.Archiver) *MonitorController {
	return &MonitorController{monitor: monitor, assembler: assembler, archiver: archiver}
}

// RegisterRoutes mounts the monitoring endpoints. Student endpoints need any
// authenticated principal; proctor endpoints need teacher or admin.
func (mc *MonitorController) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/session-init", mc.SessionInit)
	rg.POST("/heartbeat", mc.Heartbeat)
	rg.POST("/events/camera", mc.ingestHandler("camera"))
	rg.POST("/events/audio", mc.ingestHandler("audio"))
	rg.POST("/events/behavior", mc.ingestHandler("behavior"))
	rg.GET("/status/:attemptID", mc.Status)

	proctor := rg.Group("", auth.RequireRole(auth.RoleTeacher, auth.RoleAdmin))
	proctor.GET("/live-sessions/:examID", mc.LiveSessions)
	proctor.POST("/override", mc.Override)
	proctor.POST("/intervene", mc.Intervene)
	proctor.GET("/audit/:attemptID", mc.Audit)
}

type sessionInitRequest struct {
	AttemptID string             `json:"attempt_id" binding:"required"`
	ExamID    string             `json:"exam_id" binding:"required"`
	Device    service.DeviceInfo `json:"device"`
}

// SessionInit runs device preflight and registers the attempt.
func (mc *MonitorController) SessionInit(c *gin.Context) {
	var req sessionInitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, ok := auth.UserFrom(c)
	if !ok {
		response.Error(c, appErr.New(appErr.TokenMissing))
		return
	}

	result, err := mc.monitor.InitSession(req.AttemptID, user.ID, req.ExamID, req.Device)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

type heartbeatRequest struct {
	AttemptID string `json:"attempt_id" binding:"required"`
	Timestamp int64  `json:"timestamp"`
	// Visibility flags default to true so a beat that omits them is not
	// turned into manufactured violations.
	TabVisible      *bool    `json:"tab_visible"`
	Fullscreen      *bool    `json:"fullscreen"`
	BatteryLevel    *float64 `json:"battery_level"`
	BatteryCharging *bool    `json:"battery_charging"`
}

// Heartbeat processes one liveness ping.
func (mc *MonitorController) Heartbeat(c *gin.Context) {
	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	in := service.HeartbeatInput{
		TabVisible:      true,
		Fullscreen:      true,
		BatteryLevel:    req.BatteryLevel,
		BatteryCharging: req.BatteryCharging,
	}
	if req.TabVisible != nil {
		in.TabVisible = *req.TabVisible
	}
	if req.Fullscreen != nil {
		in.Fullscreen = *req.Fullscreen
	}
	if req.Timestamp > 0 {
		in.Timestamp = time.UnixMilli(req.Timestamp)
	}

	report, attempt, err := mc.monitor.Heartbeat(c.Request.Context(), req.AttemptID, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"gap_seconds": report.GapSeconds,
		"violations":  report.Violations,
		"paused":      report.Paused,
		"trust_score": attempt.TrustScore,
		"risk_level":  attempt.RiskLevel,
	})
}

type eventRequest struct {
	AttemptID  string                 `json:"attempt_id" binding:"required"`
	EventType  string                 `json:"event_type" binding:"required"`
	Payload    map[string]interface{} `json:"payload"`
	Confidence float64                `json:"confidence"`
	Signature  string                 `json:"signature"`
}

// ingestHandler builds the handler for one event source route.
func (mc *MonitorController) ingestHandler(source string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req eventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		adj, err := mc.monitor.IngestEvent(c.Request.Context(), source, req.AttemptID, service.EventInput{
			EventType:  req.EventType,
			Payload:    req.Payload,
			Confidence: req.Confidence,
			Signature:  req.Signature,
		})
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, gin.H{
			"dimension":   adj.Dimension,
			"delta":       adj.Amount,
			"trust_score": adj.Overall,
			"risk_level":  adj.RiskLevel,
		})
	}
}

// Status returns the consolidated live view of one attempt.
func (mc *MonitorController) Status(c *gin.Context) {
	status, err := mc.monitor.AttemptStatus(c.Request.Context(), c.Param("attemptID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// LiveSessions lists active attempts for an exam, highest risk first.
func (mc *MonitorController) LiveSessions(c *gin.Context) {
	sessions := mc.monitor.LiveSessions(c.Param("examID"))
	response.Success(c, gin.H{
		"exam_id":  c.Param("examID"),
		"count":    len(sessions),
		"sessions": sessions,
	})
}

type overrideRequest struct {
	AttemptID string  `json:"attempt_id" binding:"required"`
	Dimension string  `json:"dimension" binding:"required"`
	Amount    float64 `json:"amount" binding:"required"`
	Reason    string  `json:"reason"`
}

// Override applies a manual trust correction.
func (mc *MonitorController) Override(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, _ := auth.UserFrom(c)

	adj, err := mc.monitor.Override(c.Request.Context(), user.Role, req.AttemptID,
		model.Dimension(req.Dimension), req.Amount, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"dimension":   adj.Dimension,
		"delta":       adj.Amount,
		"trust_score": adj.Overall,
		"risk_level":  adj.RiskLevel,
	})
}

type interveneRequest struct {
	AttemptID string `json:"attempt_id" binding:"required"`
	Action    string `json:"action" binding:"required"`
	Reason    string `json:"reason"`
}

// Intervene executes a proctor command against an attempt.
func (mc *MonitorController) Intervene(c *gin.Context) {
	var req interveneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var err error
	switch req.Action {
	case "pause":
		err = mc.monitor.Pause(req.AttemptID)
	case "resume":
		err = mc.monitor.Resume(req.AttemptID)
	case "terminate":
		err = mc.monitor.Terminate(req.AttemptID, req.Reason)
	case "complete":
		err = mc.monitor.Complete(req.AttemptID)
	default:
		response.BadRequest(c, "unknown action: "+req.Action)
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"attempt_id": req.AttemptID, "action": req.Action})
}

// Audit assembles the signed audit report for an attempt. With archive=true
// the report is also compressed and stored.
func (mc *MonitorController) Audit(c *gin.Context) {
	report, err := mc.assembler.Assemble(c.Request.Context(), c.Param("attemptID"))
	if err != nil {
		response.Error(c, err)
		return
	}

	var objectKey string
	if c.Query("archive") == "true" && mc.archiver != nil {
		objectKey, err = mc.archiver.Archive(c.Request.Context(), report)
		if err != nil {
			response.Error(c, err)
			return
		}
	}
	response.Success(c, gin.H{"report": report, "object_key": objectKey})
}
