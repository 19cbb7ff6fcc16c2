// Package memory keeps registrations in process memory. It enforces the same
// unique keys as the database backends and is used for local development and
// tests.
package memory

import (
	"context"
	"sync"

	"github.com/gfgkiit/trapped/internal/domain"
	"github.com/gfgkiit/trapped/internal/repository"
)

// Store is a map-backed repository.Store.
type Store struct {
	mu            sync.RWMutex
	registrations []domain.Registration
	byID          map[string]int
	byEmail       map[string]int
	byDevice      map[string]int
	teams         []domain.Team
	teamsByName   map[string]int
}

var _ repository.Store = (*Store)(nil)

// New constructs an empty Store.
func New() *Store {
	return &Store{
		byID:        make(map[string]int),
		byEmail:     make(map[string]int),
		byDevice:    make(map[string]int),
		teamsByName: make(map[string]int),
	}
}

// CreateRegistration inserts a registration.
func (s *Store) CreateRegistration(_ context.Context, reg *domain.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[reg.ID]; ok {
		return repository.ErrDuplicate
	}
	if _, ok := s.byEmail[reg.Email]; ok {
		return repository.ErrDuplicate
	}
	if _, ok := s.byDevice[reg.DeviceID]; ok {
		return repository.ErrDuplicate
	}
	idx := len(s.registrations)
	s.registrations = append(s.registrations, *reg)
	s.byID[reg.ID] = idx
	s.byEmail[reg.Email] = idx
	s.byDevice[reg.DeviceID] = idx
	return nil
}

// GetRegistrationByID fetches a registration by identifier.
func (s *Store) GetRegistrationByID(_ context.Context, id string) (*domain.Registration, error) {
	return s.lookup(s.byID, id)
}

// GetRegistrationByEmail fetches a registration by email.
func (s *Store) GetRegistrationByEmail(_ context.Context, email string) (*domain.Registration, error) {
	return s.lookup(s.byEmail, email)
}

// GetRegistrationByDevice fetches a registration by device id.
func (s *Store) GetRegistrationByDevice(_ context.Context, deviceID string) (*domain.Registration, error) {
	return s.lookup(s.byDevice, deviceID)
}

func (s *Store) lookup(index map[string]int, key string) (*domain.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := index[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	reg := s.registrations[idx]
	return &reg, nil
}

// ListRegistrations returns registrations in insertion order.
func (s *Store) ListRegistrations(_ context.Context, filter repository.RegistrationFilter) ([]domain.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Registration, 0, len(s.registrations))
	for _, reg := range s.registrations {
		if filter.Domain1 != "" && reg.Domain1 != filter.Domain1 {
			continue
		}
		if filter.Domain2 != "" && reg.Domain2 != filter.Domain2 {
			continue
		}
		out = append(out, reg)
	}
	return out, nil
}

// CreateTeam inserts a team.
func (s *Store) CreateTeam(_ context.Context, team *domain.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teamsByName[team.TeamName]; ok {
		return repository.ErrDuplicate
	}
	stored := *team
	stored.Members = append([]domain.Member(nil), team.Members...)
	s.teamsByName[team.TeamName] = len(s.teams)
	s.teams = append(s.teams, stored)
	return nil
}

// GetTeamByName fetches a team by its exact name.
func (s *Store) GetTeamByName(_ context.Context, name string) (*domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.teamsByName[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	team := s.teams[idx]
	team.Members = append([]domain.Member(nil), team.Members...)
	return &team, nil
}

// ListTeams returns teams in insertion order.
func (s *Store) ListTeams(_ context.Context) ([]domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Team, len(s.teams))
	for i, team := range s.teams {
		team.Members = append([]domain.Member(nil), team.Members...)
		out[i] = team
	}
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }
