// Package pubsub provides a generic publish/subscribe event system used to
// stream invocation progress to the CLI and the batch runner.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// JobStarted fires when a job begins planning.
	JobStarted EventType = "job.started"
	// InvocationSkipped fires when the gate finds every output present.
	InvocationSkipped EventType = "invocation.skipped"
	// InvocationStarted fires right before the engine process starts.
	InvocationStarted EventType = "invocation.started"
	// InvocationSucceeded fires when the engine exits zero.
	InvocationSucceeded EventType = "invocation.succeeded"
	// InvocationFailed fires on a non-zero exit or start failure.
	InvocationFailed EventType = "invocation.failed"
	// JobFinished fires once per job with its final error, if any.
	JobFinished EventType = "job.finished"
)

// Terminal reports whether t ends an invocation.
func (t EventType) Terminal() bool {
	switch t {
	case InvocationSkipped, InvocationSucceeded, InvocationFailed:
		return true
	}
	return false
}

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
