package events

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndDecode(t *testing.T) {
	e, err := New(SyncCompleted, TopicSync, SyncCompletedData{Uploaded: 3, Failed: 2, TotalPending: 5})
	require.NoError(t, err)
	assert.Equal(t, SyncCompleted, e.Type)
	assert.Equal(t, TopicSync, e.Topic)
	assert.False(t, e.Timestamp.IsZero())
	assert.JSONEq(t, `{"uploaded":3,"failed":2,"totalPending":5}`, string(e.Data))

	var got SyncCompletedData
	require.NoError(t, e.Decode(&got))
	assert.Equal(t, SyncCompletedData{Uploaded: 3, Failed: 2, TotalPending: 5}, got)

	_, err = New("bad", TopicSync, func() {})
	assert.Error(t, err)
}

func TestBus_FanOutAndUnsubscribe(t *testing.T) {
	bus := NewBus()
	var (
		mu   sync.Mutex
		a, b []string
	)
	unsubA := bus.Subscribe(func(_ context.Context, e Event) {
		mu.Lock()
		a = append(a, e.Type)
		mu.Unlock()
	})
	bus.Subscribe(func(_ context.Context, e Event) {
		mu.Lock()
		b = append(b, e.Type)
		mu.Unlock()
	})

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, Event{Type: ConnectivityOnline}))
	unsubA()
	require.NoError(t, bus.Publish(ctx, Event{Type: ConnectivityOffline}))

	assert.Equal(t, []string{ConnectivityOnline}, a)
	assert.Equal(t, []string{ConnectivityOnline, ConnectivityOffline}, b)
}
