package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"harvester/internal/logger"
	"harvester/internal/store"
)

type fakeOutboxStore struct {
	pending   []store.OutboxMessage
	published []int64
	failed    []int64
	requeued  []int64
}

func (f *fakeOutboxStore) EnqueueOutbox(ctx context.Context, tx store.DBTransaction, msg *store.OutboxMessage) error {
	return nil
}

func (f *fakeOutboxStore) SelectPending(ctx context.Context, limit int) ([]store.OutboxMessage, error) {
	if limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutboxStore) ListOutbox(ctx context.Context, status store.OutboxStatus, limit int) ([]store.OutboxMessage, error) {
	return nil, nil
}

func (f *fakeOutboxStore) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeOutboxStore) MarkFailed(ctx context.Context, id int64) error {
	f.failed = append(f.failed, id)
	// A FAILED row leaves the pending set for good.
	kept := f.pending[:0]
	for _, m := range f.pending {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	f.pending = kept
	return nil
}

func (f *fakeOutboxStore) RequeueOutbox(ctx context.Context, id int64) error {
	f.requeued = append(f.requeued, id)
	return nil
}

type publishCall struct {
	stream    string
	messageID string
	eventType string
}

type fakeBroker struct {
	calls  []publishCall
	failOn string // message id that fails to publish
}

func (f *fakeBroker) Publish(ctx context.Context, stream, messageID, eventType string, payload []byte) error {
	if messageID == f.failOn {
		return errors.New("broker unavailable")
	}
	f.calls = append(f.calls, publishCall{stream: stream, messageID: messageID, eventType: eventType})
	return nil
}

func pendingMsg(id int64, messageID, eventType string) store.OutboxMessage {
	return store.OutboxMessage{
		ID:        id,
		MessageID: messageID,
		EventType: eventType,
		Payload:   []byte(`{}`),
		Status:    store.OutboxPending,
		CreatedAt: time.Now().Add(-time.Duration(100-id) * time.Second),
	}
}

func TestTick_PublishesAndRoutesByEventType(t *testing.T) {
	st := &fakeOutboxStore{pending: []store.OutboxMessage{
		pendingMsg(1, "m-1", "evaluation-request"),
		pendingMsg(2, "m-2", "evaluation-completed"),
		pendingMsg(3, "m-3", "balance-changed"),
	}}
	b := &fakeBroker{}
	p := NewPublisher(st, b, logger.New(), nil, time.Second, 100)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	wantStreams := map[string]string{
		"m-1": StreamEvaluation,
		"m-2": StreamCompleted,
		"m-3": StreamBalance,
	}
	if len(b.calls) != 3 {
		t.Fatalf("got %d publishes, want 3", len(b.calls))
	}
	for _, call := range b.calls {
		if call.stream != wantStreams[call.messageID] {
			t.Errorf("message %s routed to %s, want %s", call.messageID, call.stream, wantStreams[call.messageID])
		}
	}

	if len(st.published) != 3 {
		t.Errorf("got %d rows marked published, want 3", len(st.published))
	}
	if len(st.failed) != 0 {
		t.Errorf("got %d failed rows, want 0", len(st.failed))
	}
}

func TestTick_UnknownEventTypeFailsTheRow(t *testing.T) {
	st := &fakeOutboxStore{pending: []store.OutboxMessage{
		pendingMsg(1, "m-1", "mystery-event"),
		pendingMsg(2, "m-2", "balance-changed"),
	}}
	b := &fakeBroker{}
	p := NewPublisher(st, b, logger.New(), nil, time.Second, 100)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	if len(st.failed) != 1 || st.failed[0] != 1 {
		t.Errorf("got failed rows %v, want [1]", st.failed)
	}
	// The bad row must not block the rest of the batch.
	if len(st.published) != 1 || st.published[0] != 2 {
		t.Errorf("got published rows %v, want [2]", st.published)
	}
}

func TestTick_BrokerErrorFailsTheRow(t *testing.T) {
	st := &fakeOutboxStore{pending: []store.OutboxMessage{
		pendingMsg(1, "m-1", "evaluation-request"),
		pendingMsg(2, "m-2", "evaluation-request"),
	}}
	b := &fakeBroker{failOn: "m-1"}
	p := NewPublisher(st, b, logger.New(), nil, time.Second, 100)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	if len(st.failed) != 1 || st.failed[0] != 1 {
		t.Errorf("got failed rows %v, want [1]", st.failed)
	}
	if len(st.published) != 1 || st.published[0] != 2 {
		t.Errorf("got published rows %v, want [2]", st.published)
	}
}

func TestTick_FailedRowsAreNeverRetried(t *testing.T) {
	st := &fakeOutboxStore{pending: []store.OutboxMessage{
		pendingMsg(1, "m-1", "mystery-event"),
	}}
	b := &fakeBroker{}
	p := NewPublisher(st, b, logger.New(), nil, time.Second, 100)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("first Tick failed: %v", err)
	}
	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("second Tick failed: %v", err)
	}

	if len(st.failed) != 1 {
		t.Errorf("row failed %d times, want exactly once", len(st.failed))
	}
	if len(b.calls) != 0 {
		t.Errorf("got %d publishes, want 0", len(b.calls))
	}
}

func TestTick_RespectsBatchBound(t *testing.T) {
	st := &fakeOutboxStore{}
	for i := int64(1); i <= 150; i++ {
		st.pending = append(st.pending, pendingMsg(i, "m", "evaluation-request"))
	}
	b := &fakeBroker{}
	p := NewPublisher(st, b, logger.New(), nil, time.Second, 100)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	if len(st.published) != 100 {
		t.Errorf("got %d published in one tick, want the batch bound of 100", len(st.published))
	}
}

func TestTick_EmptyBacklogIsNoop(t *testing.T) {
	st := &fakeOutboxStore{}
	b := &fakeBroker{}
	p := NewPublisher(st, b, logger.New(), nil, time.Second, 100)

	if err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(b.calls) != 0 {
		t.Errorf("got %d publishes on an empty backlog, want 0", len(b.calls))
	}
}
