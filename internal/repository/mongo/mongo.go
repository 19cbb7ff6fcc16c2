// Package mongo stores registrations as documents in MongoDB. Uniqueness of
// applicant email, device id and team name is enforced by unique indexes
// created in EnsureIndexes.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/gfgkiit/trapped/internal/domain"
	"github.com/gfgkiit/trapped/internal/repository"
)

const (
	registrationsCollection = "registrations"
	teamsCollection         = "teams"
)

// Repository implements persistence interfaces on MongoDB.
type Repository struct {
	client        *mongo.Client
	registrations *mongo.Collection
	teams         *mongo.Collection
}

var (
	_ repository.RegistrationRepository = (*Repository)(nil)
	_ repository.TeamRepository         = (*Repository)(nil)
	_ repository.Store                  = (*Repository)(nil)
)

// Connect dials MongoDB and verifies the connection.
func Connect(ctx context.Context, uri, database string) (*Repository, error) {
	if database == "" {
		return nil, errors.New("empty mongo database name")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return New(client, database), nil
}

// New wraps an existing client.
func New(client *mongo.Client, database string) *Repository {
	db := client.Database(database)
	return &Repository{
		client:        client,
		registrations: db.Collection(registrationsCollection),
		teams:         db.Collection(teamsCollection),
	}
}

// EnsureIndexes creates the unique and lookup indexes. It is idempotent.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.registrations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName("email_unique").SetUnique(true)},
		{Keys: bson.D{{Key: "deviceId", Value: 1}}, Options: options.Index().SetName("device_unique").SetUnique(true)},
		{Keys: bson.D{{Key: "domain1", Value: 1}}, Options: options.Index().SetName("domain1")},
		{Keys: bson.D{{Key: "domain2", Value: 1}}, Options: options.Index().SetName("domain2")},
	})
	if err != nil {
		return fmt.Errorf("create registration indexes: %w", err)
	}
	_, err = r.teams.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "teamName", Value: 1}},
		Options: options.Index().SetName("team_name_unique").SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create team indexes: %w", err)
	}
	return nil
}

// CreateRegistration inserts a registration document.
func (r *Repository) CreateRegistration(ctx context.Context, reg *domain.Registration) error {
	_, err := r.registrations.InsertOne(ctx, reg)
	return translateWriteError(err)
}

// GetRegistrationByID fetches a registration by identifier.
func (r *Repository) GetRegistrationByID(ctx context.Context, id string) (*domain.Registration, error) {
	return r.findRegistration(ctx, bson.M{"_id": id})
}

// GetRegistrationByEmail fetches a registration by email.
func (r *Repository) GetRegistrationByEmail(ctx context.Context, email string) (*domain.Registration, error) {
	return r.findRegistration(ctx, bson.M{"email": email})
}

// GetRegistrationByDevice fetches a registration by device id.
func (r *Repository) GetRegistrationByDevice(ctx context.Context, deviceID string) (*domain.Registration, error) {
	return r.findRegistration(ctx, bson.M{"deviceId": deviceID})
}

func (r *Repository) findRegistration(ctx context.Context, filter bson.M) (*domain.Registration, error) {
	var reg domain.Registration
	if err := r.registrations.FindOne(ctx, filter).Decode(&reg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &reg, nil
}

// ListRegistrations returns registrations ordered by creation time.
func (r *Repository) ListRegistrations(ctx context.Context, filter repository.RegistrationFilter) ([]domain.Registration, error) {
	cursor, err := r.registrations.Find(ctx, registrationFilter(filter), options.Find().SetSort(creationOrder()))
	if err != nil {
		return nil, err
	}
	out := []domain.Registration{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTeam inserts a team document with its members embedded.
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team) error {
	_, err := r.teams.InsertOne(ctx, team)
	return translateWriteError(err)
}

// GetTeamByName fetches a team by its exact name.
func (r *Repository) GetTeamByName(ctx context.Context, name string) (*domain.Team, error) {
	var team domain.Team
	if err := r.teams.FindOne(ctx, bson.M{"teamName": name}).Decode(&team); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &team, nil
}

// ListTeams returns teams ordered by creation time.
func (r *Repository) ListTeams(ctx context.Context) ([]domain.Team, error) {
	cursor, err := r.teams.Find(ctx, bson.M{}, options.Find().SetSort(creationOrder()))
	if err != nil {
		return nil, err
	}
	out := []domain.Team{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping checks connectivity to the primary.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func registrationFilter(filter repository.RegistrationFilter) bson.M {
	query := bson.M{}
	if filter.Domain1 != "" {
		query["domain1"] = filter.Domain1
	}
	if filter.Domain2 != "" {
		query["domain2"] = filter.Domain2
	}
	return query
}

func creationOrder() bson.D {
	return bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}
}

func translateWriteError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	}
	return err
}
