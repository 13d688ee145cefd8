package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/labexam-backend/internal/clock"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/repository"
)

// DeviceService handles workstation registration and approval.
type DeviceService struct {
	devices DeviceStore
	clock   clock.Clock
	log     zerolog.Logger
}

// NewDeviceService creates a new DeviceService.
func NewDeviceService(stores Stores, clk clock.Clock, log zerolog.Logger) *DeviceService {
	return &DeviceService{
		devices: stores.Devices,
		clock:   clk,
		log:     log.With().Str("component", "device_service").Logger(),
	}
}

// Register records a workstation by hostname. Registering again is harmless
// and reports the current approval status.
func (s *DeviceService) Register(ctx context.Context, req model.RegisterDeviceRequest) (*model.RegisterDeviceResult, error) {
	d, created, err := s.devices.Register(ctx, strings.TrimSpace(req.Hostname), strings.TrimSpace(req.MacAddress), s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}
	if created {
		s.log.Info().Str("device_id", d.ID.String()).Str("hostname", d.Hostname).Msg("Device registered, pending approval")
	}
	return &model.RegisterDeviceResult{DeviceID: d.ID, Status: d.Status(), Created: created}, nil
}

// Authorize checks that a device exists and is approved, and marks it seen.
func (s *DeviceService) Authorize(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	d, err := s.devices.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	if !d.Approved {
		return nil, ErrDeviceNotApproved
	}
	if err := s.devices.Touch(ctx, id, s.clock.Now()); err != nil {
		s.log.Warn().Err(err).Str("device_id", id.String()).Msg("Failed to update last_seen")
	}
	return d, nil
}

// List returns every registered device.
func (s *DeviceService) List(ctx context.Context) ([]model.Device, error) {
	return s.devices.List(ctx)
}

// Approve allows a device to take exams.
func (s *DeviceService) Approve(ctx context.Context, id uuid.UUID) error {
	if err := s.devices.Approve(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrDeviceNotFound
		}
		return err
	}
	s.log.Info().Str("device_id", id.String()).Msg("Device approved")
	return nil
}

// Delete removes a device registration.
func (s *DeviceService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.devices.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrDeviceNotFound
		}
		return err
	}
	s.log.Info().Str("device_id", id.String()).Msg("Device deleted")
	return nil
}
