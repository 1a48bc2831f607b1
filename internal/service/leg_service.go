package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jengzang/legs-backend-go/internal/models"
	"github.com/jengzang/legs-backend-go/internal/repository"
)

// LegService serves a device's legs and the manual mode corrections on them
type LegService struct {
	legs    *repository.LegRepository
	devices *repository.DeviceRepository
	now     func() time.Time
}

// NewLegService creates a new leg service
func NewLegService(legs *repository.LegRepository, devices *repository.DeviceRepository) *LegService {
	return &LegService{legs: legs, devices: devices, now: time.Now}
}

// DeviceLegs returns the device's legs overlapping the filter's interval.
// A missing bound means the last 24 hours up to now.
func (s *LegService) DeviceLegs(ctx context.Context, deviceID int64, filter models.LegFilter) ([]models.Leg, error) {
	if _, err := s.devices.GetByID(ctx, deviceID); err != nil {
		return nil, err
	}

	to := s.now()
	if filter.To > 0 {
		to = time.Unix(filter.To, 0)
	}
	from := to.Add(-24 * time.Hour)
	if filter.From > 0 {
		from = time.Unix(filter.From, 0)
	}
	if from.After(to) {
		return nil, fmt.Errorf("from %d is after to %d", filter.From, filter.To)
	}

	legs, err := s.legs.DeviceLegs(ctx, deviceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get legs: %w", err)
	}
	if legs == nil {
		legs = []models.Leg{}
	}
	return legs, nil
}

// SetUserMode records the user's mode for a leg and returns the updated leg
func (s *LegService) SetUserMode(ctx context.Context, legID int64, mode, line string) (models.Leg, error) {
	if err := s.legs.SetUserMode(ctx, legID, mode, line); err != nil {
		return models.Leg{}, err
	}
	return s.legs.GetByID(ctx, legID)
}

// DeleteUserMode removes the user's mode of a leg
func (s *LegService) DeleteUserMode(ctx context.Context, legID int64) error {
	return s.legs.DeleteUserMode(ctx, legID)
}
