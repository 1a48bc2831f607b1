package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/legs-backend-go/internal/models"
	"github.com/jengzang/legs-backend-go/internal/repository"
	"github.com/jengzang/legs-backend-go/internal/service"
	"github.com/jengzang/legs-backend-go/pkg/response"
)

// LegHandler handles HTTP requests for legs and manual mode corrections
type LegHandler struct {
	service *service.LegService
}

// NewLegHandler creates a new leg handler
func NewLegHandler(service *service.LegService) *LegHandler {
	return &LegHandler{service: service}
}

// SetModeRequest represents the request body for correcting a leg's mode
type SetModeRequest struct {
	Mode string `json:"mode" binding:"required,oneof=BUS TRAM SUBWAY RAIL FERRY CAR BICYCLE WALK"`
	Line string `json:"line" binding:"max=32"`
}

// GetDeviceLegs handles GET /api/v1/devices/:id/legs
func (h *LegHandler) GetDeviceLegs(c *gin.Context) {
	deviceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "Invalid device ID")
		return
	}

	var filter models.LegFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}

	legs, err := h.service.DeviceLegs(c.Request.Context(), deviceID, filter)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(c, "Device not found")
			return
		}
		response.BadRequest(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"legs":  legs,
		"total": len(legs),
	})
}

// SetMode handles PUT /api/v1/legs/:id/mode
func (h *LegHandler) SetMode(c *gin.Context) {
	legID, ok := legIDParam(c)
	if !ok {
		return
	}

	var req SetModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	leg, err := h.service.SetUserMode(c.Request.Context(), legID, req.Mode, req.Line)
	if err != nil {
		h.legError(c, err)
		return
	}

	response.Success(c, leg)
}

// DeleteMode handles DELETE /api/v1/legs/:id/mode
func (h *LegHandler) DeleteMode(c *gin.Context) {
	legID, ok := legIDParam(c)
	if !ok {
		return
	}

	if err := h.service.DeleteUserMode(c.Request.Context(), legID); err != nil {
		h.legError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *LegHandler) legError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		response.NotFound(c, err.Error())
		return
	}
	response.InternalError(c, err.Error())
}

func legIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "Invalid leg ID")
		return 0, false
	}
	return id, true
}
