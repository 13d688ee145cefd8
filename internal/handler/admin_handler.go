package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/response"
	"github.com/stemsi/labexam-backend/internal/service"
)

// AdminHandler handles lab administration: devices, users, dashboard.
type AdminHandler struct {
	authService    *service.AuthService
	deviceService  *service.DeviceService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	authService *service.AuthService,
	deviceService *service.DeviceService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *AdminHandler {
	return &AdminHandler{
		authService:    authService,
		deviceService:  deviceService,
		monitorService: monitorService,
		log:            log.With().Str("component", "admin_handler").Logger(),
	}
}

// ListDevices godoc
// GET /api/v1/admin/devices
func (h *AdminHandler) ListDevices(c *gin.Context) {
	devices, err := h.deviceService.List(c.Request.Context())
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	if devices == nil {
		devices = []model.Device{}
	}

	response.Success(c, http.StatusOK, gin.H{"devices": devices})
}

// ApproveDevice godoc
// POST /api/v1/admin/devices/:id/approve
func (h *AdminHandler) ApproveDevice(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.deviceService.Approve(c.Request.Context(), id); err != nil {
		h.failDevice(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"device_id": id, "status": model.DeviceStatusApproved})
}

// DeleteDevice godoc
// DELETE /api/v1/admin/devices/:id
func (h *AdminHandler) DeleteDevice(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.deviceService.Delete(c.Request.Context(), id); err != nil {
		h.failDevice(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// failDevice maps a missing device to 404; on admin routes it is a resource,
// not a credential.
func (h *AdminHandler) failDevice(c *gin.Context, err error) {
	if errors.Is(err, service.ErrDeviceNotFound) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	failWith(c, h.log, err)
}

// ListUsers godoc
// GET /api/v1/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.authService.ListUsers(c.Request.Context())
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}

	response.Success(c, http.StatusOK, gin.H{"users": users})
}

// Stats godoc
// GET /api/v1/admin/stats
// Returns counts of exams, users, approved devices and completed sessions.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.monitorService.Stats(c.Request.Context())
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, stats)
}

// FlaggedEvents godoc
// GET /api/v1/admin/events
// Returns the most recent flagged integrity events across all exams.
func (h *AdminHandler) FlaggedEvents(c *gin.Context) {
	events, err := h.monitorService.FlaggedEvents(c.Request.Context())
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	if events == nil {
		events = []model.FlaggedEvent{}
	}

	response.Success(c, http.StatusOK, gin.H{"events": events})
}
