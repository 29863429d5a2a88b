// Package queue delivers import jobs from the upload endpoint to workers.
//
// Jobs are published to a Redis stream and consumed through a consumer
// group, which gives at-least-once delivery: a job is acknowledged only after
// the job runner reached a terminal outcome, and jobs left pending by a
// crashed worker are reclaimed after an idle period. Re-running a job is safe
// because every write the import performs ignores rows that already exist.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/salesimport/internal/core"
	"github.com/JonMunkholm/salesimport/internal/logging"
)

// Message is one delivered job.
type Message struct {
	ID  string
	Job core.Job
}

// Broker is the stream the scheduler publishes to and workers consume from.
type Broker interface {
	Publish(ctx context.Context, job core.Job) (string, error)
	EnsureGroup(ctx context.Context) error
	// Read returns up to count new messages for this consumer, waiting at
	// most the broker's block timeout. No messages is not an error.
	Read(ctx context.Context, count int64) ([]Message, error)
	Ack(ctx context.Context, ids ...string) error
	// Claim takes over messages another consumer left pending for at
	// least minIdle.
	Claim(ctx context.Context, minIdle time.Duration, count int64) ([]Message, error)
}

// Scheduler enqueues import jobs.
type Scheduler struct {
	broker Broker
}

// NewScheduler returns a Scheduler publishing to broker.
func NewScheduler(broker Broker) *Scheduler {
	return &Scheduler{broker: broker}
}

// Enqueue publishes a job importing the stored source handle for the named
// platform and returns the job id.
func (s *Scheduler) Enqueue(ctx context.Context, platformName, handle string) (string, error) {
	if strings.TrimSpace(platformName) == "" {
		return "", errors.New("enqueue job: platform is required")
	}
	if handle == "" {
		return "", errors.New("enqueue job: source handle is required")
	}

	job := core.Job{
		ID:         uuid.NewString(),
		Platform:   platformName,
		Source:     handle,
		EnqueuedAt: time.Now().UTC(),
	}
	msgID, err := s.broker.Publish(ctx, job)
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w: %w", core.ErrQueueUnavailable, err)
	}

	logging.FromContext(logging.ContextWithJobID(ctx, job.ID)).Info("import job enqueued",
		slog.String("platform", platformName),
		slog.String("source", handle),
		slog.String("message_id", msgID),
	)
	return job.ID, nil
}
