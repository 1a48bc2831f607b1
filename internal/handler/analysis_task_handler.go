package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/legs-backend-go/internal/repository"
	"github.com/jengzang/legs-backend-go/internal/service"
	"github.com/jengzang/legs-backend-go/pkg/response"
)

// AnalysisTaskHandler handles HTTP requests for pipeline jobs and their tasks
type AnalysisTaskHandler struct {
	service *service.AnalysisTaskService
}

// NewAnalysisTaskHandler creates a new analysis task handler
func NewAnalysisTaskHandler(service *service.AnalysisTaskService) *AnalysisTaskHandler {
	return &AnalysisTaskHandler{service: service}
}

// RunJobRequest represents the request body for running a job
type RunJobRequest struct {
	Cutoff *int64 `json:"cutoff" binding:"omitempty,gt=0"` // Unix timestamp, defaults to now
	Repair bool   `json:"repair"`
}

// RunJob starts a job in the background and returns its task
// POST /api/admin/jobs/:name
func (h *AnalysisTaskHandler) RunJob(c *gin.Context) {
	var req RunJobRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}
	}

	var cutoff time.Time
	if req.Cutoff != nil {
		cutoff = time.Unix(*req.Cutoff, 0)
	}

	createdBy := c.GetString("user")
	if createdBy == "" {
		createdBy = "admin"
	}

	task, err := h.service.CreateTask(c.Param("name"), h.service.Options(cutoff, req.Repair), createdBy)
	if err != nil {
		if errors.Is(err, service.ErrUnknownJob) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err.Error())
		return
	}

	response.Accepted(c, task)
}

// GetTask retrieves a task by ID
// GET /api/admin/tasks/:id
func (h *AnalysisTaskHandler) GetTask(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "Invalid task ID")
		return
	}

	task, err := h.service.GetTask(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(c, "Task not found")
			return
		}
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, task)
}
