package export

import (
	"context"
	"time"

	"github.com/gfgkiit/trapped/internal/service/registration"
	"github.com/gfgkiit/trapped/internal/service/team"
)

// Service builds export tables from the admission services.
type Service struct {
	registrations registration.Service
	teams         team.Service
	loc           *time.Location
}

// New returns an export service rendering timestamps in loc.
func New(registrations registration.Service, teams team.Service, loc *time.Location) Service {
	if loc == nil {
		loc = time.UTC
	}
	return Service{registrations: registrations, teams: teams, loc: loc}
}

// Registrations renders every applicant.
func (s Service) Registrations(ctx context.Context) (Table, error) {
	records, err := s.registrations.List(ctx, "", registration.SlotBoth)
	if err != nil {
		return Table{}, err
	}
	return RegistrationTable(records, s.loc), nil
}

// Teams renders every team.
func (s Service) Teams(ctx context.Context) (Table, error) {
	teams, err := s.teams.List(ctx)
	if err != nil {
		return Table{}, err
	}
	return TeamTable(teams, s.loc), nil
}

// Domain renders applicants whose preference in slot matches name.
func (s Service) Domain(ctx context.Context, name string, slot registration.Slot) (Table, error) {
	matches, err := s.registrations.Match(ctx, name, slot)
	if err != nil {
		return Table{}, err
	}
	return DomainTable(matches.Domain, matches.First, matches.Second), nil
}
