package sse

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwellapp/inkwell-server/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBook(id string) *domain.Book {
	book := &domain.Book{Title: "A Wizard of Earthsea", Author: "Ursula K. Le Guin"}
	book.ID = id
	book.InitTimestamps()
	return book
}

func receiveEvent(t *testing.T, client *Client) Event {
	t.Helper()
	select {
	case event := <-client.EventChan:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestEmitBroadcastsToAllClients(t *testing.T) {
	m := NewManager(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	first, err := m.Connect()
	require.NoError(t, err)
	second, err := m.Connect()
	require.NoError(t, err)
	assert.Equal(t, 2, m.ClientCount())

	m.Emit(NewBookCreatedEvent(testBook("book-1")))

	for _, client := range []*Client{first, second} {
		event := receiveEvent(t, client)
		assert.Equal(t, EventBookCreated, event.Type)
		data, ok := event.Data.(BookEventData)
		require.True(t, ok)
		assert.Equal(t, "book-1", data.Book.ID)
	}
}

func TestDisconnectStopsDelivery(t *testing.T) {
	m := NewManager(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	gone, err := m.Connect()
	require.NoError(t, err)
	stays, err := m.Connect()
	require.NoError(t, err)

	m.Disconnect(gone.ID)
	assert.Equal(t, 1, m.ClientCount())

	select {
	case <-gone.Done:
	default:
		t.Fatal("disconnected client's Done channel not closed")
	}

	// Broadcasting still reaches the remaining client.
	m.Emit(NewBookDeletedEvent("book-1"))
	event := receiveEvent(t, stays)
	assert.Equal(t, EventBookDeleted, event.Type)

	// Disconnecting twice is harmless.
	m.Disconnect(gone.ID)
}

func TestSlowClientDropsInsteadOfBlocking(t *testing.T) {
	m := NewManager(testLogger())

	slow, err := m.Connect()
	require.NoError(t, err)

	// Fill the client's buffer so the next broadcast cannot deliver.
	filler := NewHeartbeatEvent()
	for i := 0; i < cap(slow.EventChan); i++ {
		slow.EventChan <- filler
	}

	done := make(chan struct{})
	go func() {
		m.broadcast(NewBookDeletedEvent("book-1"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
	assert.Len(t, slow.EventChan, cap(slow.EventChan))
}

func TestShutdownDrainsQueuedEvents(t *testing.T) {
	m := NewManager(testLogger())

	client, err := m.Connect()
	require.NoError(t, err)

	// Queued before the broadcast loop ever runs; Shutdown's drain must
	// still deliver it.
	m.Emit(NewBookCreatedEvent(testBook("book-1")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	event := receiveEvent(t, client)
	assert.Equal(t, EventBookCreated, event.Type)
}

func TestEmitAfterShutdownIsDropped(t *testing.T) {
	m := NewManager(testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	// Must not panic on the closed channel.
	m.Emit(NewBookDeletedEvent("book-1"))
}

func TestEmitIgnoresForeignValues(t *testing.T) {
	m := NewManager(testLogger())
	m.Emit("not an event")
	m.Emit(nil)
}

func TestRebuildStateTracking(t *testing.T) {
	m := NewManager(testLogger())
	assert.False(t, m.IsRebuilding())

	m.broadcast(NewRebuildStartedEvent())
	assert.True(t, m.IsRebuilding())

	m.broadcast(NewRebuildCompletedEvent(3, 150*time.Millisecond))
	assert.False(t, m.IsRebuilding())
}

func TestContextCancelClosesClients(t *testing.T) {
	m := NewManager(testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	go func() {
		close(started)
		m.Start(ctx)
	}()
	<-started

	client, err := m.Connect()
	require.NoError(t, err)

	cancel()

	select {
	case <-client.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("client not closed after manager context cancellation")
	}
	assert.Equal(t, 0, m.ClientCount())
}
