// Package store keeps the job ledger: one row per video processing run,
// tracking its status from pending to a terminal state.
//
// Two backends implement JobStore. SQLiteStore is the local ledger used by
// the CLI and the local API server. DynamoStore backs the Lambda
// deployment, using a single table keyed by PK/SK with a TTL attribute.
package store

import (
	"context"
	"time"
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// IsTerminal reports whether status is final.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job is one processing run for one video.
type Job struct {
	ID      string `json:"id" dynamodbav:"-"`
	VideoID string `json:"videoId" dynamodbav:"videoId"`
	// Source is the input location: a local path or s3://bucket/key.
	Source string `json:"source" dynamodbav:"source"`
	Status string `json:"status" dynamodbav:"status"`
	Error  string `json:"error,omitempty" dynamodbav:"error,omitempty"`
	// RecordPath is where the finished record was written.
	RecordPath string    `json:"recordPath,omitempty" dynamodbav:"recordPath,omitempty"`
	ShotCount  int       `json:"shotCount" dynamodbav:"shotCount"`
	CreatedAt  time.Time `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" dynamodbav:"updatedAt"`
}

// JobStore persists jobs. Get returns (nil, nil) when the job does not
// exist. Put is a full replacement (upsert).
type JobStore interface {
	PutJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	// UpdateJobStatus sets status and error without touching other fields.
	UpdateJobStatus(ctx context.Context, id, status, errMsg string) error
	// ListJobs returns the most recent jobs first.
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
}

// DefaultListLimit applies when ListJobs is called with limit <= 0.
const DefaultListLimit = 50
