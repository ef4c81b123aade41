package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the status of a scraping job
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobKind separates per-source jobs from the bulk job that groups them
type JobKind string

const (
	JobKindSource JobKind = "source"
	JobKindBulk   JobKind = "bulk"
)

// RunCounts are the per-run tallies the orchestrator accumulates
type RunCounts struct {
	Found      int `json:"opportunities_found"`
	Published  int `json:"opportunities_published"`
	Duplicates int `json:"duplicates"`
	Updated    int `json:"updated"`
	Errors     int `json:"errors_count"`
}

// Add accumulates other into c
func (c *RunCounts) Add(other RunCounts) {
	c.Found += other.Found
	c.Published += other.Published
	c.Duplicates += other.Duplicates
	c.Updated += other.Updated
	c.Errors += other.Errors
}

// ScrapingJob records one run. It is created running and terminally
// updated exactly once.
type ScrapingJob struct {
	ID              uuid.UUID  `json:"id"`
	Kind            JobKind    `json:"kind"`
	ParentID        *uuid.UUID `json:"parent_id,omitempty"`
	SourceID        string     `json:"source_id,omitempty"`
	Status          JobStatus  `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	RunCounts
	ExecutionTimeMS int64   `json:"execution_time_ms"`
	ErrorMessage    *string `json:"error_message,omitempty"`
}

// NewScrapingJob returns a running job started now
func NewScrapingJob(kind JobKind, sourceID string, parent *uuid.UUID) *ScrapingJob {
	return &ScrapingJob{
		ID:        uuid.New(),
		Kind:      kind,
		ParentID:  parent,
		SourceID:  sourceID,
		Status:    JobStatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

// Complete marks the job completed at now
func (j *ScrapingJob) Complete(now time.Time) {
	j.finish(now, JobStatusCompleted)
}

// Fail marks the job failed at now with err's message
func (j *ScrapingJob) Fail(now time.Time, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	j.ErrorMessage = &msg
	j.finish(now, JobStatusFailed)
}

// Terminal reports whether the job has left the running state
func (j *ScrapingJob) Terminal() bool {
	return j.Status != JobStatusRunning
}

func (j *ScrapingJob) finish(now time.Time, status JobStatus) {
	now = now.UTC()
	j.Status = status
	j.CompletedAt = &now
	j.ExecutionTimeMS = now.Sub(j.StartedAt).Milliseconds()
}

// DailyAnalytics is the per-source, per-day aggregate row
type DailyAnalytics struct {
	SourceID string    `json:"source_id"`
	Day      time.Time `json:"day"`
	RunCounts
}
