// Package store persists projects, container executions, and message
// requests in MongoDB.
package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/schmitthub/forgeyard/internal/fault"
	"github.com/schmitthub/forgeyard/internal/logger"
)

const (
	databaseName = "forgeyard"

	collProjects   = "projects"
	collExecutions = "container_executions"
	collRequests   = "message_requests"

	connectTimeout = 10 * time.Second
)

// Store wraps the MongoDB database used by both services.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, uri string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(connectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "connecting to mongodb")
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fault.Wrap(fault.Internal, err, "mongodb unreachable")
	}

	logger.Info().Str("database", databaseName).Msg("connected to mongodb")
	return &Store{client: client, db: client.Database(databaseName)}, nil
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// UpsertProject replaces the project document, creating it if absent. The
// replace is a single document write, so readers observe either the old
// image or the new one.
func (s *Store) UpsertProject(ctx context.Context, p Project) error {
	_, err := s.db.Collection(collProjects).ReplaceOne(ctx,
		bson.M{"_id": p.Name}, p, options.Replace().SetUpsert(true))
	if err != nil {
		return fault.Wrap(fault.Internal, err, "upserting project %q", p.Name)
	}
	return nil
}

// GetProject fetches a project by name.
func (s *Store) GetProject(ctx context.Context, name string) (Project, error) {
	var p Project
	err := s.db.Collection(collProjects).FindOne(ctx, bson.M{"_id": name}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Project{}, fault.New(fault.ProjectNotFound, "project %q not found", name)
	}
	if err != nil {
		return Project{}, fault.Wrap(fault.Internal, err, "fetching project %q", name)
	}
	return p, nil
}

// DeleteProject removes a project document. Deleting an absent project is
// reported as PROJECT_NOT_FOUND.
func (s *Store) DeleteProject(ctx context.Context, name string) error {
	res, err := s.db.Collection(collProjects).DeleteOne(ctx, bson.M{"_id": name})
	if err != nil {
		return fault.Wrap(fault.Internal, err, "deleting project %q", name)
	}
	if res.DeletedCount == 0 {
		return fault.New(fault.ProjectNotFound, "project %q not found", name)
	}
	return nil
}

// ListProjects returns all tracked projects.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	cursor, err := s.db.Collection(collProjects).Find(ctx, bson.M{})
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "listing projects")
	}
	var projects []Project
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, fault.Wrap(fault.Internal, err, "decoding projects")
	}
	return projects, nil
}

// InsertExecution appends a container execution record and fills in its id.
func (s *Store) InsertExecution(ctx context.Context, exec *ContainerExecution) error {
	if exec.ID.IsZero() {
		exec.ID = primitive.NewObjectID()
	}
	_, err := s.db.Collection(collExecutions).InsertOne(ctx, exec)
	if err != nil {
		return fault.Wrap(fault.Internal, err, "inserting execution for %q", exec.Project)
	}
	return nil
}

// GetExecution fetches a single execution record by id.
func (s *Store) GetExecution(ctx context.Context, id primitive.ObjectID) (ContainerExecution, error) {
	var exec ContainerExecution
	err := s.db.Collection(collExecutions).FindOne(ctx, bson.M{"_id": id}).Decode(&exec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ContainerExecution{}, fault.New(fault.NotFound, "execution %q not found", id.Hex())
	}
	if err != nil {
		return ContainerExecution{}, fault.Wrap(fault.Internal, err, "fetching execution %q", id.Hex())
	}
	return exec, nil
}

// ListExecutions returns the execution history of a project, newest first.
func (s *Store) ListExecutions(ctx context.Context, project string) ([]ContainerExecution, error) {
	cursor, err := s.db.Collection(collExecutions).Find(ctx,
		bson.M{"project": project},
		options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}}))
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "listing executions for %q", project)
	}
	var execs []ContainerExecution
	if err := cursor.All(ctx, &execs); err != nil {
		return nil, fault.Wrap(fault.Internal, err, "decoding executions")
	}
	return execs, nil
}

// CreateMessageRequest records a pending bus round-trip.
func (s *Store) CreateMessageRequest(ctx context.Context, req *MessageRequest) error {
	if req.ID.IsZero() {
		req.ID = primitive.NewObjectID()
	}
	req.Status = RequestPending
	req.CreatedAt = time.Now().UTC()

	_, err := s.db.Collection(collRequests).InsertOne(ctx, req)
	if err != nil {
		return fault.Wrap(fault.Internal, err, "recording message request")
	}
	return nil
}

// CompleteMessageRequest marks a round-trip finished with either a response
// or an error payload.
func (s *Store) CompleteMessageRequest(ctx context.Context, id primitive.ObjectID, response any, errPayload *ErrorPayload) error {
	update := bson.M{
		"status":      RequestCompleted,
		"isError":     errPayload != nil,
		"completedAt": time.Now().UTC(),
	}
	if errPayload != nil {
		update["errorResponse"] = errPayload
	} else {
		update["response"] = response
	}

	_, err := s.db.Collection(collRequests).UpdateByID(ctx, id, bson.M{"$set": update})
	if err != nil {
		return fault.Wrap(fault.Internal, err, "completing message request")
	}
	return nil
}
