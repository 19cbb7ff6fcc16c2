// Package team admits team registrations.
package team

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/gfgkiit/trapped/internal/apperr"
	"github.com/gfgkiit/trapped/internal/domain"
	"github.com/gfgkiit/trapped/internal/repository"
	"github.com/gfgkiit/trapped/internal/validation"
)

// EventCreated is the feed event type for a new team.
const EventCreated = "team.created"

const msgTeamNameTaken = "team name already exists"

// Publisher receives admin feed events.
type Publisher interface {
	Publish(topic string, v any) error
}

// Service handles team workflows.
type Service struct {
	repo      repository.TeamRepository
	validator *validation.Validator
	feed      Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs a Service. feed may be nil.
func New(repo repository.TeamRepository, validator *validation.Validator, feed Publisher, logger *slog.Logger) Service {
	return Service{repo: repo, validator: validator, feed: feed, logger: logger, now: time.Now}
}

// WithClock returns a copy of s that stamps records using now.
func (s Service) WithClock(now func() time.Time) Service {
	s.now = now
	return s
}

// Register validates the roster and persists the team. All roster rules run
// before the team name is checked against storage.
func (s Service) Register(ctx context.Context, input validation.TeamInput) (*domain.Team, error) {
	team, err := s.validator.Team(input)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetTeamByName(ctx, team.TeamName); err == nil {
		return nil, apperr.Conflict(apperr.ReasonTeamNameTaken, msgTeamNameTaken)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, s.upstream("lookup team name", err)
	}

	team.ID = uuid.NewString()
	team.CreatedAt = s.now().UTC()
	if err := s.repo.CreateTeam(ctx, &team); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.logger.Error("team insert rejected", "reason", "unique_index_race", "team_name", team.TeamName, "error", err)
			return nil, apperr.Upstream(fmt.Errorf("insert team: %w", err))
		}
		return nil, s.upstream("insert team", err)
	}
	if s.feed != nil {
		event := domain.Event{Type: EventCreated, ID: team.ID, Name: team.TeamName, At: team.CreatedAt}
		if err := s.feed.Publish(domain.TopicTeams, event); err != nil {
			s.logger.Warn("feed publish failed", "team_id", team.ID, "error", err)
		}
	}
	s.logger.Info("team registered", "team_id", team.ID, "members", len(team.Members))
	return &team, nil
}

// List returns every team in creation order.
func (s Service) List(ctx context.Context) ([]domain.Team, error) {
	teams, err := s.repo.ListTeams(ctx)
	if err != nil {
		return nil, s.upstream("list teams", err)
	}
	return teams, nil
}

func (s Service) upstream(op string, err error) error {
	s.logger.Error("team storage failure", "op", op, "error", err)
	return apperr.Upstream(fmt.Errorf("%s: %w", op, err))
}
