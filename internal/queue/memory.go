package queue

import (
	"context"
	"errors"
	"sync"

	"prreview-backend/internal/shared/telemetry"
)

const defaultBuffer = 256

// MemoryClient is an in-process channel-backed queue consumed by the worker
// pool in the same process. It tracks revocations so cancelled jobs are
// skipped at dequeue time and in-flight jobs get their contexts cancelled.
type MemoryClient struct {
	ch chan Message

	mu       sync.Mutex
	revoked  map[string]struct{}
	inFlight map[string]context.CancelFunc
	closed   bool
}

// NewMemoryClient constructs a MemoryClient with a bounded buffer.
func NewMemoryClient(buffer int) *MemoryClient {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &MemoryClient{
		ch:       make(chan Message, buffer),
		revoked:  make(map[string]struct{}),
		inFlight: make(map[string]context.CancelFunc),
	}
}

// Send enqueues the message, failing if the buffer is full rather than
// blocking the request path. The send happens under the same lock Close
// takes, so a send never races the channel close.
func (m *MemoryClient) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("job queue closed")
	}
	select {
	case m.ch <- msg:
		return nil
	default:
		return errors.New("job queue full")
	}
}

// Cancel revokes the task: queued copies are dropped on dequeue and a running
// execution unit has its context cancelled.
func (m *MemoryClient) Cancel(ctx context.Context, taskID string) {
	_ = ctx
	m.mu.Lock()
	m.revoked[taskID] = struct{}{}
	cancel := m.inFlight[taskID]
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		telemetry.Info("queue.revoked_in_flight", map[string]any{"task_id": taskID})
		return
	}
	telemetry.Info("queue.revoked", map[string]any{"task_id": taskID})
}

// Messages exposes the consume side for the worker pool.
func (m *MemoryClient) Messages() <-chan Message { return m.ch }

// Revoked reports whether the task was cancelled before execution started.
func (m *MemoryClient) Revoked(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[taskID]
	return ok
}

// Track registers the cancel function for a running execution unit.
func (m *MemoryClient) Track(taskID string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight[taskID] = cancel
}

// Untrack removes a finished execution unit from the registry.
func (m *MemoryClient) Untrack(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, taskID)
	delete(m.revoked, taskID)
}

// Close stops accepting messages. Pending messages remain consumable.
func (m *MemoryClient) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.ch)
	}
}

var _ Client = (*MemoryClient)(nil)
