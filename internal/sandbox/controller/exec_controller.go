// Package controller exposes the execution HTTP surface.
package controller

import (
	"proctorhub/internal/sandbox/repository"
	"proctorhub/internal/sandbox/service"
	"proctorhub/pkg/utils/logger"
	"proctorhub/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ExecController handles code execution and submission endpoints.
type ExecController struct {
	exec        *service.ExecService
	submissions *repository.SubmissionStore
}

// NewExecController creates the controller. submissions may be nil when no
// object storage is configured.
func NewExecController(exec *service.ExecService, submissions *repository.SubmissionStore) *ExecController {
	return &ExecController{exec: exec, submissions: submissions}
}

// RegisterRoutes mounts the execution endpoints.
func (ec *ExecController) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/run", ec.Run)
	rg.POST("/submit/:attemptID/:questionID", ec.Submit)
}

type runRequest struct {
	Language string `json:"language" binding:"required"`
	Code     string `json:"code" binding:"required"`
	Stdin    string `json:"stdin"`
}

// Run executes code once with optional custom input.
func (ec *ExecController) Run(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := ec.exec.Execute(c.Request.Context(), req.Language, req.Code, req.Stdin)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

type submitRequest struct {
	Language string `json:"language" binding:"required"`
	Code     string `json:"code" binding:"required"`
}

// Submit grades code against the question's test cases and archives the
// source.
func (ec *ExecController) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	attemptID := c.Param("attemptID")
	questionID := c.Param("questionID")

	report, err := ec.exec.Grade(c.Request.Context(), questionID, req.Language, req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}

	var objectKey string
	if ec.submissions != nil {
		objectKey, err = ec.submissions.Save(c.Request.Context(), attemptID, questionID, req.Language, req.Code)
		if err != nil {
			// The grade stands even when archiving fails.
			logger.Error(c.Request.Context(), "archive submission failed",
				zap.String("attempt_id", attemptID),
				zap.String("question_id", questionID),
				zap.Error(err))
			objectKey = ""
		}
	}

	response.Success(c, gin.H{
		"attempt_id":  attemptID,
		"question_id": questionID,
		"report":      report,
		"object_key":  objectKey,
	})
}
