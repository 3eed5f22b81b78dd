package queue

import "context"

// Client dispatches analysis jobs to a queue backend.
//
// Send enqueues exactly one execution unit for the task; the caller never
// consumes a result. Cancel is a best-effort revoke of in-flight or queued
// work: failure to actually stop the execution unit is logged by the backend,
// never surfaced, because cancelling the task record is independent of whether
// the worker stops.
type Client interface {
	Send(ctx context.Context, msg Message) error
	Cancel(ctx context.Context, taskID string)
}
