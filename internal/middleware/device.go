package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/labexam-backend/internal/response"
	"github.com/stemsi/labexam-backend/internal/service"
)

const (
	// HeaderDeviceID identifies the lab workstation on client requests.
	HeaderDeviceID = "X-Device-ID"
	// ContextKeyDeviceID is the Gin context key for the parsed device id.
	ContextKeyDeviceID = "device_id"
)

// RequireDevice admits only registered, approved workstations.
func RequireDevice(deviceService *service.DeviceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader(HeaderDeviceID))
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrDeviceUnknown)
			return
		}

		if _, err := deviceService.Authorize(c.Request.Context(), id); err != nil {
			switch {
			case errors.Is(err, service.ErrDeviceNotFound):
				response.AbortFail(c, http.StatusUnauthorized, response.ErrDeviceUnknown)
			case errors.Is(err, service.ErrDeviceNotApproved):
				response.AbortFail(c, http.StatusForbidden, response.ErrDeviceNotApproved)
			default:
				response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			}
			return
		}

		c.Set(ContextKeyDeviceID, id)
		c.Next()
	}
}

// OptionalDevice parses X-Device-ID when present. The device itself is
// checked by the service that binds it; a malformed header is rejected here.
func OptionalDevice() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderDeviceID)
		if raw == "" {
			c.Next()
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrDeviceUnknown)
			return
		}
		c.Set(ContextKeyDeviceID, id)
		c.Next()
	}
}

// DeviceID returns the device id set by RequireDevice or OptionalDevice.
func DeviceID(c *gin.Context) *uuid.UUID {
	val, ok := c.Get(ContextKeyDeviceID)
	if !ok {
		return nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}
