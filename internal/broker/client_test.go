package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

// setupBroker starts a miniredis instance and returns a connected
// client.
func setupBroker(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })

	client := NewClient(Config{ResultTTL: time.Hour})
	ctx := context.Background()
	if err := client.Connect(ctx, "redis://"+mr.Addr()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func TestEnqueueAndBlockPop(t *testing.T) {
	_, client := setupBroker(t)
	ctx := context.Background()

	payload := json.RawMessage(`{"filename":"model.ifc"}`)
	id, err := client.Enqueue(ctx, "ifcconvert", "tasks.run_ifcconvert", payload, 30*time.Minute)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if id == "" {
		t.Fatal("Enqueue() returned empty id")
	}

	job, err := client.BlockPop(ctx, "ifcconvert", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("BlockPop() error = %v", err)
	}
	if job == nil {
		t.Fatal("BlockPop() returned nil job")
	}
	if job.ID != id {
		t.Errorf("job.ID = %v, want %v", job.ID, id)
	}
	if job.Handler != "tasks.run_ifcconvert" {
		t.Errorf("job.Handler = %v, want tasks.run_ifcconvert", job.Handler)
	}
	if job.Status != StatusQueued {
		t.Errorf("job.Status = %v, want %v", job.Status, StatusQueued)
	}
	if job.TimeoutSeconds != 1800 {
		t.Errorf("job.TimeoutSeconds = %v, want 1800", job.TimeoutSeconds)
	}
	if string(job.Payload) != string(payload) {
		t.Errorf("job.Payload = %s, want %s", job.Payload, payload)
	}
	if job.EnqueuedAt.IsZero() {
		t.Error("job.EnqueuedAt is zero")
	}
}

func TestBlockPopIsFIFO(t *testing.T) {
	_, client := setupBroker(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		payload := json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i))
		id, err := client.Enqueue(ctx, "ifcconvert", "tasks.run_ifcconvert", payload, time.Minute)
		if err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
		ids = append(ids, id)
	}

	for i, want := range ids {
		job, err := client.BlockPop(ctx, "ifcconvert", 100*time.Millisecond)
		if err != nil {
			t.Fatalf("BlockPop() #%d error = %v", i, err)
		}
		if job == nil {
			t.Fatalf("BlockPop() #%d returned nil, want job %s", i, want)
		}
		if job.ID != want {
			t.Fatalf("pop #%d = %s, want %s (enqueue order)", i, job.ID, want)
		}
	}

	// The queue is drained.
	job, err := client.BlockPop(ctx, "ifcconvert", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("BlockPop() error = %v", err)
	}
	if job != nil {
		t.Errorf("BlockPop() after drain = %+v, want nil", job)
	}
}

func TestBlockPopEmptyQueue(t *testing.T) {
	_, client := setupBroker(t)

	job, err := client.BlockPop(context.Background(), "ifcconvert", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("BlockPop() error = %v", err)
	}
	if job != nil {
		t.Errorf("BlockPop() on empty queue = %+v, want nil", job)
	}
}

func TestGetUnknownJob(t *testing.T) {
	_, client := setupBroker(t)

	job, err := client.Get(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Status != StatusUnknown {
		t.Errorf("job.Status = %v, want %v", job.Status, StatusUnknown)
	}
}

func TestSetStatusRecordsStartedAt(t *testing.T) {
	_, client := setupBroker(t)
	ctx := context.Background()

	id, err := client.Enqueue(ctx, "ifcdiff", "tasks.run_ifcdiff", json.RawMessage(`{}`), time.Minute)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := client.SetStatus(ctx, id, StatusStarted); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	job, err := client.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Status != StatusStarted {
		t.Errorf("job.Status = %v, want %v", job.Status, StatusStarted)
	}
	if job.StartedAt.IsZero() {
		t.Error("job.StartedAt is zero after started transition")
	}
}

func TestCompleteIsTerminalOnce(t *testing.T) {
	_, client := setupBroker(t)
	ctx := context.Background()

	id, err := client.Enqueue(ctx, "ifcconvert", "tasks.run_ifcconvert", json.RawMessage(`{}`), time.Minute)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if err := client.Complete(ctx, id, json.RawMessage(`{"ok":true}`)); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	// A second terminal write of any flavor must be rejected.
	err = client.Complete(ctx, id, json.RawMessage(`{"ok":false}`))
	if !errors.Is(err, ErrTerminal) {
		t.Errorf("second Complete() error = %v, want ErrTerminal", err)
	}
	err = client.Fail(ctx, id, StatusFailed, &JobError{Kind: ErrorKindHandler, Message: "late"})
	if !errors.Is(err, ErrTerminal) {
		t.Errorf("Fail() after Complete() error = %v, want ErrTerminal", err)
	}

	job, err := client.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Status != StatusFinished {
		t.Errorf("job.Status = %v, want %v", job.Status, StatusFinished)
	}
	if string(job.Result) != `{"ok":true}` {
		t.Errorf("job.Result = %s, want the first result", job.Result)
	}
	if job.EndedAt.IsZero() {
		t.Error("job.EndedAt is zero after completion")
	}
}

func TestTimedOutBeatsLateResult(t *testing.T) {
	_, client := setupBroker(t)
	ctx := context.Background()

	id, err := client.Enqueue(ctx, "ifcclash", "tasks.run_ifcclash_detection", json.RawMessage(`{}`), time.Second)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	jobErr := &JobError{Kind: ErrorKindTimeout, Message: "job exceeded timeout of 1s"}
	if err := client.Fail(ctx, id, StatusTimedOut, jobErr); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	// The handler finishing after the watchdog must not overwrite the
	// timed_out record.
	err = client.Complete(ctx, id, json.RawMessage(`{"clashes":0}`))
	if !errors.Is(err, ErrTerminal) {
		t.Errorf("late Complete() error = %v, want ErrTerminal", err)
	}

	job, err := client.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Status != StatusTimedOut {
		t.Errorf("job.Status = %v, want %v", job.Status, StatusTimedOut)
	}
	if job.Result != nil {
		t.Errorf("job.Result = %s, want none", job.Result)
	}
	if job.Error == nil || job.Error.Kind != ErrorKindTimeout {
		t.Errorf("job.Error = %+v, want timeout kind", job.Error)
	}
}

func TestSetStatusAfterTerminalIsIgnored(t *testing.T) {
	_, client := setupBroker(t)
	ctx := context.Background()

	id, err := client.Enqueue(ctx, "ifcconvert", "tasks.run_ifcconvert", json.RawMessage(`{}`), time.Minute)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := client.Complete(ctx, id, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if err := client.SetStatus(ctx, id, StatusStarted); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	job, err := client.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Status != StatusFinished {
		t.Errorf("job.Status = %v, want finished to stick", job.Status)
	}
}

func TestFailRequiresFailureStatus(t *testing.T) {
	_, client := setupBroker(t)

	err := client.Fail(context.Background(), "some-id", StatusFinished, &JobError{})
	if err == nil {
		t.Error("Fail() with finished status should error")
	}
}

func TestQueueDepthAndSeen(t *testing.T) {
	_, client := setupBroker(t)
	ctx := context.Background()

	seen, err := client.QueueSeen(ctx, "ifcconvert")
	if err != nil {
		t.Fatalf("QueueSeen() error = %v", err)
	}
	if seen {
		t.Error("QueueSeen() = true before any enqueue")
	}

	for i := 0; i < 3; i++ {
		if _, err := client.Enqueue(ctx, "ifcconvert", "tasks.run_ifcconvert", json.RawMessage(`{}`), time.Minute); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	depth, err := client.QueueDepth(ctx, "ifcconvert")
	if err != nil {
		t.Fatalf("QueueDepth() error = %v", err)
	}
	if depth != 3 {
		t.Errorf("QueueDepth() = %d, want 3", depth)
	}

	seen, err = client.QueueSeen(ctx, "ifcconvert")
	if err != nil {
		t.Fatalf("QueueSeen() error = %v", err)
	}
	if !seen {
		t.Error("QueueSeen() = false after enqueue")
	}
}

func TestSubscribeReceivesTerminalEvent(t *testing.T) {
	_, client := setupBroker(t)
	ctx := context.Background()

	id, err := client.Enqueue(ctx, "ifcconvert", "tasks.run_ifcconvert", json.RawMessage(`{}`), time.Minute)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	sub := client.Subscribe(ctx, id)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	if err := client.Complete(ctx, id, json.RawMessage(`{"done":true}`)); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		if event.JobID != id {
			t.Errorf("event.JobID = %v, want %v", event.JobID, id)
		}
		if event.Status != StatusFinished {
			t.Errorf("event.Status = %v, want %v", event.Status, StatusFinished)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestTerminalRecordExpires(t *testing.T) {
	mr, client := setupBroker(t)
	ctx := context.Background()

	id, err := client.Enqueue(ctx, "ifcconvert", "tasks.run_ifcconvert", json.RawMessage(`{}`), time.Minute)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := client.Complete(ctx, id, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	mr.FastForward(2 * time.Hour)

	job, err := client.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Status != StatusUnknown {
		t.Errorf("job.Status after retention = %v, want %v", job.Status, StatusUnknown)
	}
}
