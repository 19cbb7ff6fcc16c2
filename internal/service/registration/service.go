// Package registration admits applicant registrations and serves lookups
// over them.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/gfgkiit/trapped/internal/apperr"
	"github.com/gfgkiit/trapped/internal/cache"
	"github.com/gfgkiit/trapped/internal/domain"
	"github.com/gfgkiit/trapped/internal/repository"
	"github.com/gfgkiit/trapped/internal/validation"
)

// EventCreated is the feed event type for a new registration.
const EventCreated = "registration.created"

const (
	msgDeviceRegistered = "this device has already submitted the form"
	msgEmailRegistered  = "this email is already registered"
)

// Publisher receives admin feed events.
type Publisher interface {
	Publish(topic string, v any) error
}

// Options carries optional collaborators.
type Options struct {
	// Devices caches positive device checks. Nil disables caching.
	Devices   *cache.TTL[bool]
	DeviceTTL time.Duration
	Feed      Publisher
	Clock     func() time.Time
}

// Service orchestrates applicant admission and lookup.
type Service struct {
	repo      repository.RegistrationRepository
	validator *validation.Validator
	devices   *cache.TTL[bool]
	deviceTTL time.Duration
	feed      Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// New returns a registration service.
func New(repo repository.RegistrationRepository, validator *validation.Validator, logger *slog.Logger, opts Options) Service {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return Service{
		repo:      repo,
		validator: validator,
		devices:   opts.Devices,
		deviceTTL: opts.DeviceTTL,
		feed:      opts.Feed,
		logger:    logger,
		now:       now,
	}
}

// Register validates and persists an applicant registration. Device and email
// uniqueness are checked before the insert; the storage unique index rejects
// anything that slips between the check and the write.
func (s Service) Register(ctx context.Context, input validation.RegistrationInput) (*domain.Registration, error) {
	reg, err := s.validator.Registration(input)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetRegistrationByDevice(ctx, reg.DeviceID); err == nil {
		return nil, apperr.Conflict(apperr.ReasonDeviceRegistered, msgDeviceRegistered)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, s.upstream("lookup device", err)
	}
	if _, err := s.repo.GetRegistrationByEmail(ctx, reg.Email); err == nil {
		return nil, apperr.Conflict(apperr.ReasonEmailRegistered, msgEmailRegistered)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, s.upstream("lookup email", err)
	}

	reg.ID = uuid.NewString()
	reg.CreatedAt = s.now().UTC()
	if err := s.repo.CreateRegistration(ctx, &reg); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.logger.Error("registration insert rejected", "reason", "unique_index_race", "email", reg.Email, "device_id", reg.DeviceID, "error", err)
			return nil, apperr.Upstream(fmt.Errorf("insert registration: %w", err))
		}
		return nil, s.upstream("insert registration", err)
	}
	if s.devices != nil {
		s.devices.Set(reg.DeviceID, true, s.deviceTTL)
	}
	s.publish(reg)
	s.logger.Info("registration admitted", "registration_id", reg.ID, "domain1", reg.Domain1)
	return &reg, nil
}

// Get fetches a registration by id.
func (s Service) Get(ctx context.Context, id string) (*domain.Registration, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.Validation("id", "id is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.Validation("id", "id is not a valid registration id")
	}
	reg, err := s.repo.GetRegistrationByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("registration not found")
		}
		return nil, s.upstream("get registration", err)
	}
	return reg, nil
}

// FindByEmail fetches a registration by applicant email.
func (s Service) FindByEmail(ctx context.Context, email string) (*domain.Registration, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperr.Validation("email", "email is required")
	}
	reg, err := s.repo.GetRegistrationByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("no registration found for this email")
		}
		return nil, s.upstream("find by email", err)
	}
	return reg, nil
}

// DeviceRegistered reports whether deviceID has already registered.
func (s Service) DeviceRegistered(ctx context.Context, deviceID string) (bool, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return false, apperr.Validation("deviceId", "deviceId is required")
	}
	if s.devices != nil {
		if hit, ok := s.devices.Get(deviceID); ok && hit {
			return true, nil
		}
	}
	_, err := s.repo.GetRegistrationByDevice(ctx, deviceID)
	switch {
	case err == nil:
		if s.devices != nil {
			s.devices.Set(deviceID, true, s.deviceTTL)
		}
		return true, nil
	case errors.Is(err, repository.ErrNotFound):
		return false, nil
	default:
		return false, s.upstream("lookup device", err)
	}
}

// Card builds the trainer card projection for a registration.
func (s Service) Card(ctx context.Context, id string) (*domain.TrainerCard, error) {
	reg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	card := CardFor(*reg)
	return &card, nil
}

// CardFor projects a registration onto its trainer card.
func CardFor(reg domain.Registration) domain.TrainerCard {
	return domain.TrainerCard{
		ID:          reg.ID,
		TrainerNo:   trainerNo(reg.ID),
		Name:        reg.Username,
		Year:        reg.Year,
		Domain1:     reg.Domain1,
		Domain2:     reg.Domain2,
		Avatar:      reg.Avatar,
		Github:      reg.Github,
		LinkedIn:    reg.LinkedIn,
		MemberSince: reg.CreatedAt,
	}
}

func trainerNo(id string) string {
	compact := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return "#" + compact
}

func (s Service) publish(reg domain.Registration) {
	if s.feed == nil {
		return
	}
	event := domain.Event{Type: EventCreated, ID: reg.ID, Name: reg.Username, Domain: reg.Domain1, At: reg.CreatedAt}
	if err := s.feed.Publish(domain.TopicRegistrations, event); err != nil {
		s.logger.Warn("feed publish failed", "registration_id", reg.ID, "error", err)
	}
}

func (s Service) upstream(op string, err error) error {
	s.logger.Error("registration storage failure", "op", op, "error", err)
	return apperr.Upstream(fmt.Errorf("%s: %w", op, err))
}
