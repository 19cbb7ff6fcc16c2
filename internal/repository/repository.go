package repository

import (
	"context"

	"github.com/gfgkiit/trapped/internal/domain"
)

// RegistrationFilter narrows applicant listings by canonical domain name.
// Empty fields do not filter; when both are set a record must match both.
type RegistrationFilter struct {
	Domain1 string
	Domain2 string
}

// RegistrationRepository persists applicant registrations. Implementations
// must enforce uniqueness of email and device id and report a rejected insert
// as ErrDuplicate.
type RegistrationRepository interface {
	CreateRegistration(ctx context.Context, reg *domain.Registration) error
	GetRegistrationByID(ctx context.Context, id string) (*domain.Registration, error)
	GetRegistrationByEmail(ctx context.Context, email string) (*domain.Registration, error)
	GetRegistrationByDevice(ctx context.Context, deviceID string) (*domain.Registration, error)
	ListRegistrations(ctx context.Context, filter RegistrationFilter) ([]domain.Registration, error)
}

// TeamRepository persists team registrations. Implementations must enforce
// uniqueness of the team name.
type TeamRepository interface {
	CreateTeam(ctx context.Context, team *domain.Team) error
	GetTeamByName(ctx context.Context, name string) (*domain.Team, error)
	ListTeams(ctx context.Context) ([]domain.Team, error)
}

// Store is the full persistence surface a storage backend provides.
type Store interface {
	RegistrationRepository
	TeamRepository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
