package conductor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_OnReceivesEmittedEvents(t *testing.T) {
	m := newTestManager()
	var mu sync.Mutex
	var received []any
	m.On(EventComponentStarted, func(payload any) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, payload)
	})

	m.RegisterComponent("a", newMock(), Options{})
	m.StartComponent("a", StartOptions{})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
}

func TestManager_OnceFiresOnlyOnceAcrossRepeatedEmits(t *testing.T) {
	m := newTestManager()
	count := 0
	var mu sync.Mutex
	m.Once(EventComponentStarted, func(any) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	m.RegisterComponent("a", newMock(), Options{})
	m.RegisterComponent("b", newMock(), Options{})
	m.StartComponent("a", StartOptions{})
	m.StartComponent("b", StartOptions{})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestManager_HasListenerAndListenerCount(t *testing.T) {
	m := newTestManager()
	assert.False(t, m.HasListener(EventComponentStopped))
	assert.Equal(t, 0, m.ListenerCount(EventComponentStopped))

	m.On(EventComponentStopped, func(any) {})
	m.On(EventComponentStopped, func(any) {})

	assert.True(t, m.HasListener(EventComponentStopped))
	assert.Equal(t, 2, m.ListenerCount(EventComponentStopped))
}

func TestManager_ListenerPanicIsSwallowed(t *testing.T) {
	m := newTestManager()
	m.On(EventComponentStarted, func(any) { panic("boom") })
	m.RegisterComponent("a", newMock(), Options{})

	assert.NotPanics(t, func() {
		m.StartComponent("a", StartOptions{})
	})
}

func TestManager_EventTransportReceivesEnvelope(t *testing.T) {
	transport := &fakeTransport{}
	m := NewManager(WithEventTransport(transport))
	m.RegisterComponent("a", newMock(), Options{})
	m.StartComponent("a", StartOptions{})

	transport.mu.Lock()
	defer transport.mu.Unlock()
	found := false
	for _, env := range transport.envelopes {
		if env.Name == EventComponentStarted {
			found = true
			assert.NotEmpty(t, env.ID)
		}
	}
	assert.True(t, found)
}

type fakeTransport struct {
	mu        sync.Mutex
	envelopes []Envelope
}

func (f *fakeTransport) Publish(e Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.envelopes = append(f.envelopes, e)
}
