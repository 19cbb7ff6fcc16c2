package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gfgkiit/trapped/internal/domain"
	"github.com/gfgkiit/trapped/internal/repository"
)

const (
	// uniqueViolation is the SQLSTATE raised when a unique index rejects a row.
	uniqueViolation = "23505"
	// invalidText is raised when a lookup key cannot be cast, e.g. a non-UUID id.
	invalidText = "22P02"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.RegistrationRepository = (*Repository)(nil)
	_ repository.TeamRepository         = (*Repository)(nil)
	_ repository.Store                  = (*Repository)(nil)
)

const registrationColumns = `id::text, username, contact, email, year, why_gfg, domain1, domain2,
	github, linkedin, resume_link, avatar, device_id, created_at`

// CreateRegistration inserts a registration.
func (r *Repository) CreateRegistration(ctx context.Context, reg *domain.Registration) error {
	const query = `INSERT INTO registrations (id, username, contact, email, year, why_gfg, domain1, domain2,
		github, linkedin, resume_link, avatar, device_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.pool.Exec(ctx, query, reg.ID, reg.Username, reg.Contact, reg.Email, reg.Year, reg.WhyGfg,
		reg.Domain1, reg.Domain2, reg.Github, reg.LinkedIn, reg.ResumeLink, reg.Avatar, reg.DeviceID, reg.CreatedAt)
	return translateWriteError(err)
}

// GetRegistrationByID fetches a registration by identifier.
func (r *Repository) GetRegistrationByID(ctx context.Context, id string) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`
	return r.getRegistration(ctx, query, id)
}

// GetRegistrationByEmail fetches a registration by email.
func (r *Repository) GetRegistrationByEmail(ctx context.Context, email string) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE email = $1`
	return r.getRegistration(ctx, query, email)
}

// GetRegistrationByDevice fetches a registration by device id.
func (r *Repository) GetRegistrationByDevice(ctx context.Context, deviceID string) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE device_id = $1`
	return r.getRegistration(ctx, query, deviceID)
}

func (r *Repository) getRegistration(ctx context.Context, query string, arg any) (*domain.Registration, error) {
	reg, err := scanRegistration(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, translateReadError(err)
	}
	return &reg, nil
}

// ListRegistrations returns registrations ordered by creation time.
func (r *Repository) ListRegistrations(ctx context.Context, filter repository.RegistrationFilter) ([]domain.Registration, error) {
	var (
		where []string
		args  []any
	)
	if filter.Domain1 != "" {
		args = append(args, filter.Domain1)
		where = append(where, fmt.Sprintf("domain1 = $%d", len(args)))
	}
	if filter.Domain2 != "" {
		args = append(args, filter.Domain2)
		where = append(where, fmt.Sprintf("domain2 = $%d", len(args)))
	}
	query := `SELECT ` + registrationColumns + ` FROM registrations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanRegistration)
}

// CreateTeam inserts a team; members are stored as a JSONB array.
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team) error {
	const query = `INSERT INTO teams (id, team_name, members, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, team.ID, team.TeamName, team.Members, team.CreatedAt)
	return translateWriteError(err)
}

// GetTeamByName fetches a team by its exact name.
func (r *Repository) GetTeamByName(ctx context.Context, name string) (*domain.Team, error) {
	const query = `SELECT id::text, team_name, members, created_at FROM teams WHERE team_name = $1`
	team, err := scanTeam(r.pool.QueryRow(ctx, query, name))
	if err != nil {
		return nil, translateReadError(err)
	}
	return &team, nil
}

// ListTeams returns teams ordered by creation time.
func (r *Repository) ListTeams(ctx context.Context) ([]domain.Team, error) {
	const query = `SELECT id::text, team_name, members, created_at FROM teams ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTeam)
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases pooled connections.
func (r *Repository) Close(context.Context) error {
	r.pool.Close()
	return nil
}

func scanRegistration(row pgx.Row) (domain.Registration, error) {
	var reg domain.Registration
	err := row.Scan(&reg.ID, &reg.Username, &reg.Contact, &reg.Email, &reg.Year, &reg.WhyGfg, &reg.Domain1,
		&reg.Domain2, &reg.Github, &reg.LinkedIn, &reg.ResumeLink, &reg.Avatar, &reg.DeviceID, &reg.CreatedAt)
	return reg, err
}

func scanTeam(row pgx.Row) (domain.Team, error) {
	var team domain.Team
	err := row.Scan(&team.ID, &team.TeamName, &team.Members, &team.CreatedAt)
	return team, err
}

// collect drains rows into a non-nil slice so empty results encode as [].
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// translateReadError maps a missing row, or a key the column type cannot
// hold, to ErrNotFound.
func translateReadError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == invalidText {
		return repository.ErrNotFound
	}
	return err
}

func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", repository.ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
