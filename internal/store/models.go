package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/schmitthub/forgeyard/internal/testoutput"
)

// Purpose classifies what a container execution was run for.
type Purpose string

const (
	PurposeProjectCreation Purpose = "PROJECT_CREATION"
	PurposeSubmission      Purpose = "SUBMISSION"
)

// RequestStatus tracks the lifecycle of a bus round-trip.
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestCompleted RequestStatus = "COMPLETED"
)

// Project is one template image tracked by the runner. The document id is
// the project name, which makes name uniqueness structural.
type Project struct {
	Name                string                `bson:"_id" json:"name"`
	ImageID             string                `bson:"imageId" json:"imageId"`
	Tag                 string                `bson:"tag" json:"tag"`
	BuiltAt             time.Time             `bson:"builtAt" json:"builtAt"`
	ContainerTimeoutSec int                   `bson:"containerTimeout,omitempty" json:"containerTimeout,omitempty"`
	DefaultExecArgs     map[string]string     `bson:"defaultExecutionArgs,omitempty" json:"defaultExecutionArgs,omitempty"`
	BaselineTests       []string              `bson:"baselineTests" json:"baselineTests"`
	Baseline            testoutput.TestOutput `bson:"baseline" json:"baseline"`
}

// TimeoutOrDefault resolves the per-project container timeout, falling back
// to the service default.
func (p Project) TimeoutOrDefault(def time.Duration) time.Duration {
	if p.ContainerTimeoutSec > 0 {
		return time.Duration(p.ContainerTimeoutSec) * time.Second
	}
	return def
}

// ContainerExecution is the append-only record of one sandbox run.
type ContainerExecution struct {
	ID            primitive.ObjectID     `bson:"_id,omitempty" json:"id,omitempty"`
	Project       string                 `bson:"project" json:"project"`
	Purpose       Purpose                `bson:"purpose" json:"purpose"`
	StatusCode    string                 `bson:"statusCode" json:"statusCode"`
	ExitCode      int                    `bson:"exitCode" json:"exitCode"`
	ElapsedMS     int64                  `bson:"elapsedMs" json:"elapsedMs"`
	StartedAt     time.Time              `bson:"startedAt" json:"startedAt"`
	FinishedAt    time.Time              `bson:"finishedAt" json:"finishedAt"`
	TestOutput    *testoutput.TestOutput `bson:"testOutput,omitempty" json:"testOutput,omitempty"`
	ExecutionArgs map[string]string      `bson:"executionArgs,omitempty" json:"executionArgs,omitempty"`
	Stderr        string                 `bson:"stderr,omitempty" json:"stderr,omitempty"`
}

// ErrorPayload is the error half of a completed message request.
type ErrorPayload struct {
	Kind    string `bson:"kind" json:"kind"`
	Message string `bson:"message" json:"message"`
}

// MessageRequest tracks one front-service bus round-trip.
type MessageRequest struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Submitter       string             `bson:"submitter,omitempty" json:"submitter,omitempty"`
	Operation       string             `bson:"operation" json:"operation"`
	Project         string             `bson:"project" json:"project"`
	CorrelationID   string             `bson:"correlationId" json:"correlationId"`
	Status          RequestStatus      `bson:"status" json:"status"`
	IsError         bool               `bson:"isError" json:"isError"`
	StartingPosInQ  *int               `bson:"startingPositionInQueue,omitempty" json:"startingPositionInQueue,omitempty"`
	ExecutionID     primitive.ObjectID `bson:"executionId,omitempty" json:"executionId,omitempty"`
	Response        any                `bson:"response,omitempty" json:"response,omitempty"`
	ErrorResponse   *ErrorPayload      `bson:"errorResponse,omitempty" json:"errorResponse,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	CompletedAt     time.Time          `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}
