package worker

import (
	"context"
	"sync"

	"prreview-backend/internal/queue"
	"prreview-backend/internal/shared/telemetry"
)

const defaultConcurrency = 4

// Pool consumes jobs from an in-process queue with bounded concurrency.
// Revoked jobs are dropped before execution; running jobs are registered
// with the queue so a cancel can abort their context.
type Pool struct {
	runner      *Runner
	client      *queue.MemoryClient
	concurrency int
}

// NewPool constructs a Pool over the given queue client.
func NewPool(runner *Runner, client *queue.MemoryClient, concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Pool{
		runner:      runner,
		client:      client,
		concurrency: concurrency,
	}
}

// Run consumes jobs until ctx is cancelled or the queue is closed.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.consume(ctx)
		}()
	}
	wg.Wait()
}

// Start runs the pool in a background goroutine.
func (p *Pool) Start(ctx context.Context) {
	go p.Run(ctx)
}

func (p *Pool) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.client.Messages():
			if !ok {
				return
			}
			p.handle(ctx, msg)
		}
	}
}

func (p *Pool) handle(ctx context.Context, msg queue.Message) {
	if p.client.Revoked(msg.TaskID) {
		telemetry.Info("worker.skipping_revoked", map[string]any{"task_id": msg.TaskID})
		p.client.Untrack(msg.TaskID)
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	p.client.Track(msg.TaskID, cancel)
	defer func() {
		cancel()
		p.client.Untrack(msg.TaskID)
	}()

	if err := p.runner.Execute(jobCtx, msg); err != nil {
		telemetry.Error("worker.job_failed", map[string]any{
			"task_id": msg.TaskID,
			"error":   err.Error(),
		})
	}
}
