package queue

import (
	"context"
	"fmt"
	"testing"
)

func TestMemoryClientSendReceive(t *testing.T) {
	client := NewMemoryClient(4)
	ctx := context.Background()

	msg := Message{TaskID: "t1", RepoURL: "https://github.com/acme/widgets", PRNumber: 9, Version: 1}
	if err := client.Send(ctx, msg); err != nil {
		t.Fatalf("send: %v", err)
	}

	got := <-client.Messages()
	if got.TaskID != "t1" || got.PRNumber != 9 {
		t.Fatalf("unexpected message %+v", got)
	}
}

func TestMemoryClientBufferFull(t *testing.T) {
	client := NewMemoryClient(2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := client.Send(ctx, Message{TaskID: fmt.Sprintf("t%d", i)}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	err := client.Send(ctx, Message{TaskID: "overflow"})
	if err == nil {
		t.Fatalf("expected error on full buffer")
	}
	if err.Error() != "job queue full" {
		t.Fatalf("unexpected error %q", err)
	}
}

func TestMemoryClientSendCancelledContext(t *testing.T) {
	client := NewMemoryClient(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.Send(ctx, Message{TaskID: "t1"}); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMemoryClientSendAfterClose(t *testing.T) {
	client := NewMemoryClient(4)
	ctx := context.Background()

	if err := client.Send(ctx, Message{TaskID: "t1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	client.Close()

	err := client.Send(ctx, Message{TaskID: "t2"})
	if err == nil {
		t.Fatalf("expected error after close")
	}
	if err.Error() != "job queue closed" {
		t.Fatalf("unexpected error %q", err)
	}

	// Messages enqueued before the close stay consumable.
	if got := <-client.Messages(); got.TaskID != "t1" {
		t.Fatalf("unexpected message %+v", got)
	}
}

func TestMemoryClientRevoke(t *testing.T) {
	client := NewMemoryClient(4)
	ctx := context.Background()

	if client.Revoked("t1") {
		t.Fatalf("fresh task should not be revoked")
	}
	client.Cancel(ctx, "t1")
	if !client.Revoked("t1") {
		t.Fatalf("expected t1 revoked after cancel")
	}

	// Untrack clears the revocation so task ids can be reused.
	client.Untrack("t1")
	if client.Revoked("t1") {
		t.Fatalf("untrack should clear revocation")
	}
}

func TestMemoryClientCancelInFlight(t *testing.T) {
	client := NewMemoryClient(4)
	jobCtx, jobCancel := context.WithCancel(context.Background())
	client.Track("t1", jobCancel)
	defer client.Untrack("t1")

	client.Cancel(context.Background(), "t1")

	select {
	case <-jobCtx.Done():
	default:
		t.Fatalf("cancel should cancel the tracked job context")
	}
}

func TestEncodeDecodeMessage(t *testing.T) {
	msg := Message{
		TaskID:      "t1",
		RepoURL:     "https://github.com/acme/widgets",
		PRNumber:    3,
		GitHubToken: "tok",
		RequestID:   "req-1",
		EnqueuedAt:  "2026-01-02T03:04:05Z",
		Version:     1,
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != msg {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}

	if _, err := DecodeMessage([]byte("{not json")); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
