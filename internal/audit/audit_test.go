package audit_test

//go:generate mockgen -source=audit.go -destination=mocks/mocks.go -package=mocks Store,Publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"civica/internal/audit"
	"civica/internal/audit/mocks"
	id "civica/pkg/domain"
	"civica/pkg/requestcontext"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorkerPersistsThenFansOut(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	publisher := mocks.NewMockPublisher(ctrl)

	event := audit.Event{Action: audit.ActionRequestCreated, RequestID: id.NewRequestID()}
	published := make(chan audit.Event, 1)

	store.EXPECT().Append(gomock.Any(), event).Return(nil)
	publisher.EXPECT().Publish(gomock.Any(), event).DoAndReturn(
		func(_ context.Context, e audit.Event) error {
			published <- e
			return nil
		})

	inbox := make(chan audit.Event, 1)
	worker := audit.NewWorker(store, inbox, discardLogger(), publisher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	inbox <- event
	select {
	case got := <-published:
		assert.Equal(t, event, got)
	case <-time.After(time.Second):
		t.Fatal("event never reached the publisher")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestWorkerSurvivesPublisherFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	publisher := mocks.NewMockPublisher(ctrl)

	first := audit.Event{Action: audit.ActionRequestCreated, RequestID: id.NewRequestID()}
	second := audit.Event{Action: audit.ActionRequestSubmitted, RequestID: first.RequestID}
	published := make(chan audit.Event, 1)

	store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	publisher.EXPECT().Publish(gomock.Any(), first).Return(errors.New("broker down"))
	publisher.EXPECT().Publish(gomock.Any(), second).DoAndReturn(
		func(_ context.Context, e audit.Event) error {
			published <- e
			return nil
		})

	inbox := make(chan audit.Event, 2)
	worker := audit.NewWorker(store, inbox, discardLogger(), publisher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	inbox <- first
	inbox <- second
	select {
	case got := <-published:
		assert.Equal(t, second, got)
	case <-time.After(time.Second):
		t.Fatal("worker stopped after a publisher failure")
	}
}

func TestWorkerStopsOnStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	storeErr := errors.New("disk full")
	store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(storeErr)

	inbox := make(chan audit.Event, 1)
	worker := audit.NewWorker(store, inbox, discardLogger())

	done := make(chan error, 1)
	go func() { done <- worker.Run(context.Background()) }()

	inbox <- audit.Event{Action: audit.ActionRequestDeleted, RequestID: id.NewRequestID()}
	select {
	case err := <-done:
		require.ErrorIs(t, err, storeErr)
	case <-time.After(time.Second):
		t.Fatal("worker kept running after a store failure")
	}
}

func TestEmitterFillsTimestampAndCorrelation(t *testing.T) {
	inbox := make(chan audit.Event, 1)
	emitter := audit.NewEmitter(inbox, discardLogger())

	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithRequestID(ctx, "req-abc-123")

	emitter.Emit(ctx, audit.Event{Action: audit.ActionRequestCreated, RequestID: id.NewRequestID()})

	got := <-inbox
	assert.Equal(t, now, got.Timestamp)
	assert.Equal(t, "req-abc-123", got.CorrelationID)

	// Explicit values are never overwritten.
	explicit := audit.Event{
		Action:        audit.ActionRequestApproved,
		RequestID:     id.NewRequestID(),
		Timestamp:     now.Add(time.Hour),
		CorrelationID: "original",
	}
	emitter.Emit(ctx, explicit)
	got = <-inbox
	assert.Equal(t, explicit.Timestamp, got.Timestamp)
	assert.Equal(t, "original", got.CorrelationID)
}

func TestEmitterDropsInsteadOfBlocking(t *testing.T) {
	inbox := make(chan audit.Event, 1)
	emitter := audit.NewEmitter(inbox, discardLogger())

	emitter.Emit(context.Background(), audit.Event{Action: audit.ActionRequestCreated})
	emitter.Emit(context.Background(), audit.Event{Action: audit.ActionRequestSubmitted})

	require.Len(t, inbox, 1)
	got := <-inbox
	assert.Equal(t, audit.ActionRequestCreated, got.Action)
}

func TestInMemoryStoreScopesByRequest(t *testing.T) {
	store := audit.NewInMemoryStore()
	ctx := context.Background()

	one := id.NewRequestID()
	two := id.NewRequestID()
	require.NoError(t, store.Append(ctx, audit.Event{Action: audit.ActionRequestCreated, RequestID: one}))
	require.NoError(t, store.Append(ctx, audit.Event{Action: audit.ActionRequestApproved, RequestID: one}))
	require.NoError(t, store.Append(ctx, audit.Event{Action: audit.ActionRequestCreated, RequestID: two}))

	events, err := store.ListByRequest(ctx, one)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionRequestCreated, events[0].Action)
	assert.Equal(t, audit.ActionRequestApproved, events[1].Action)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
