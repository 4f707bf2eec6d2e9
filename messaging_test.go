package conductor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageToComponent_Success(t *testing.T) {
	m := newTestManager()
	base := newMock()
	c := &mockComponentWithMessage{mockComponent: base}
	m.RegisterComponent("a", c, Options{})
	m.StartComponent("a", StartOptions{})

	res := m.SendMessageToComponent("a", "hello", MessageOptions{})
	require.True(t, res.Sent)
	assert.Equal(t, CodeSent, res.Code)
	assert.Equal(t, "echo:hello", res.Data)
}

func TestSendMessageToComponent_NotFound(t *testing.T) {
	m := newTestManager()
	res := m.SendMessageToComponent("ghost", "x", MessageOptions{})
	assert.False(t, res.Sent)
	assert.Equal(t, CodeNotFound, res.Code)
}

func TestSendMessageToComponent_NoHandler(t *testing.T) {
	m := newTestManager()
	m.RegisterComponent("a", newMock(), Options{})
	m.StartComponent("a", StartOptions{})

	res := m.SendMessageToComponent("a", "x", MessageOptions{})
	assert.False(t, res.Sent)
	assert.Equal(t, CodeNoHandler, res.Code)
}

func TestSendMessageToComponent_StoppedRejected(t *testing.T) {
	m := newTestManager()
	base := newMock()
	c := &mockComponentWithMessage{mockComponent: base}
	m.RegisterComponent("a", c, Options{})

	res := m.SendMessageToComponent("a", "x", MessageOptions{})
	assert.False(t, res.Sent)
	assert.Equal(t, CodeStopped, res.Code)
}

func TestBroadcastMessage_ImplicitSkipsNonRunning(t *testing.T) {
	m := newTestManager()
	base1 := newMock()
	c1 := &mockComponentWithMessage{mockComponent: base1}
	m.RegisterComponent("a", c1, Options{})
	m.RegisterComponent("b", newMock(), Options{})
	m.StartComponent("a", StartOptions{})

	res := m.BroadcastMessage("ping", BroadcastMessageOptions{})
	require.Len(t, res.Components, 1)
	assert.Equal(t, "a", res.Components[0].Name)
}

func TestBroadcastMessage_ExplicitReportsNotFound(t *testing.T) {
	m := newTestManager()
	res := m.BroadcastMessage("ping", BroadcastMessageOptions{ComponentNames: []string{"ghost"}})
	require.Len(t, res.Components, 1)
	assert.Equal(t, CodeNotFound, res.Components[0].Code)
}

func TestGetValue_Success(t *testing.T) {
	m := newTestManager()
	c := &valueProviderMock{mockComponent: newMock(), values: map[string]any{"k": "v"}}
	m.RegisterComponent("a", c, Options{})
	m.StartComponent("a", StartOptions{})

	res := m.GetValue("a", "k")
	assert.True(t, res.Found)
	assert.Equal(t, "v", res.Value)
}

func TestGetValue_NoProvider(t *testing.T) {
	m := newTestManager()
	m.RegisterComponent("a", newMock(), Options{})
	m.StartComponent("a", StartOptions{})

	res := m.GetValue("a", "k")
	assert.False(t, res.Found)
	assert.Equal(t, CodeNoHandler, res.Code)
}

func TestCheckComponentHealth_Healthy(t *testing.T) {
	m := newTestManager()
	base := newMock()
	c := &mockComponentWithHealth{mockComponent: base}
	m.RegisterComponent("a", c, Options{})
	m.StartComponent("a", StartOptions{})

	res := m.CheckComponentHealth("a")
	assert.True(t, res.Healthy)
	assert.Equal(t, CodeSuccess, res.Code)
}

func TestCheckComponentHealth_NotRunning(t *testing.T) {
	m := newTestManager()
	m.RegisterComponent("a", newMock(), Options{})

	res := m.CheckComponentHealth("a")
	assert.Equal(t, CodeStopped, res.Code)
}

func TestCheckComponentHealth_NoHandlerDefaultsHealthy(t *testing.T) {
	m := newTestManager()
	m.RegisterComponent("a", newMock(), Options{})
	m.StartComponent("a", StartOptions{})

	res := m.CheckComponentHealth("a")
	assert.True(t, res.Healthy)
	assert.Equal(t, CodeNoHandler, res.Code)
}

func TestCheckAllHealth_AggregatesUnhealthy(t *testing.T) {
	m := newTestManager()
	unhealthy := false
	base := newMock()
	c := &mockComponentWithHealth{mockComponent: base, healthy: &unhealthy}
	m.RegisterComponent("sick", c, Options{})
	m.RegisterComponent("ok", newMock(), Options{})
	m.StartAllComponents(StartAllOptions{})

	res := m.CheckAllHealth()
	assert.False(t, res.AggregateHealthy)
	assert.Equal(t, CodeDegraded, res.Code)
}

func TestComponentLifecycleRef_SetsFromAutomatically(t *testing.T) {
	m := newTestManager()
	base := newMock()
	target := &mockComponentWithMessage{mockComponent: base}
	target.onMessage = func(payload any, from string) (any, error) { return from, nil }
	m.RegisterComponent("target", target, Options{})
	m.StartComponent("target", StartOptions{})

	ref, ok := m.GetComponentRef("caller")
	assert.False(t, ok)

	m.RegisterComponent("caller", newMock(), Options{})
	ref, ok = m.GetComponentRef("caller")
	require.True(t, ok)
	assert.Equal(t, "caller", ref.Name())

	res := ref.SendMessageToComponent("target", "hi", MessageOptions{})
	require.True(t, res.Sent)
	assert.Equal(t, "caller", res.Data)
}

// valueProviderMock implements ValueProvider for messaging tests.
type valueProviderMock struct {
	*mockComponent
	values map[string]any
}

func (v *valueProviderMock) GetValue(key, from string) (any, bool) {
	val, ok := v.values[key]
	return val, ok
}
