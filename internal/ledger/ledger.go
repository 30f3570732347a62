// Package ledger defines the invocation history kept by regcascade.
// Every gate decision and engine run is recorded so a later "plan --diff"
// can compare a new plan against what last produced the same output.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of one invocation.
type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSkipped, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// Record is one invocation as it was planned and executed.
type Record struct {
	ID        string
	Job       string
	Dialect   string
	Args      []string
	Inputs    []string
	Outputs   []string
	Status    Status
	ExitCode  int
	Stderr    string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// NewRecord returns a record with a fresh id and start time.
func NewRecord(job, dialect string, args, inputs, outputs []string) *Record {
	return &Record{
		ID:        uuid.NewString(),
		Job:       job,
		Dialect:   dialect,
		Args:      append([]string(nil), args...),
		Inputs:    append([]string(nil), inputs...),
		Outputs:   append([]string(nil), outputs...),
		StartedAt: time.Now(),
	}
}

// PrimaryOutput returns the first declared output, the key records are
// looked up by.
func (r *Record) PrimaryOutput() string {
	if len(r.Outputs) == 0 {
		return ""
	}
	return r.Outputs[0]
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Job    string
	Output string
	Status Status
	Limit  int
}

// Repository persists invocation records.
type Repository interface {
	// Save inserts the record or replaces the record with the same ID.
	Save(record *Record) error

	// FindByID returns NotFoundError if no record has id. A unique id
	// prefix is accepted.
	FindByID(id string) (*Record, error)

	// LatestForOutput returns the newest record whose primary output is
	// output, or NotFoundError.
	LatestForOutput(output string) (*Record, error)

	// List returns records newest first.
	List(filter ListFilter) ([]*Record, error)

	Close() error
}

// NotFoundError is returned when a lookup matches nothing.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("invocation record not found: %s", e.Key)
}
