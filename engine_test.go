package conductor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartComponent_Success(t *testing.T) {
	m := newTestManager()
	c := newMock()
	m.RegisterComponent("a", c, Options{})

	res := m.StartComponent("a", StartOptions{})
	require.True(t, res.Success)
	assert.Equal(t, 1, c.StartCalls())
	status, ok := m.GetComponentStatus("a")
	require.True(t, ok)
	assert.Equal(t, StateRunning, status.State)
}

func TestStartComponent_NotFound(t *testing.T) {
	m := newTestManager()
	res := m.StartComponent("ghost", StartOptions{})
	assert.False(t, res.Success)
	assert.Equal(t, CodeComponentNotFound, res.Code)
}

func TestStartComponent_DependencyNotRunningBlocks(t *testing.T) {
	m := newTestManager()
	m.RegisterComponent("db", newMock(), Options{})
	m.RegisterComponent("api", newMock(), Options{Dependencies: []string{"db"}})

	res := m.StartComponent("api", StartOptions{})
	assert.False(t, res.Success)
	assert.Equal(t, CodeDependencyNotRunning, res.Code)
}

func TestStartComponent_OptionalDependencyNotRunningAllowed(t *testing.T) {
	m := newTestManager()
	m.RegisterComponent("db", newMock(), Options{Optional: true})
	m.RegisterComponent("api", newMock(), Options{Dependencies: []string{"db"}})

	res := m.StartComponent("api", StartOptions{})
	assert.True(t, res.Success)
}

func TestStartComponent_FailureNonOptionalReturnsToRegistered(t *testing.T) {
	m := newTestManager()
	c := newMock()
	c.startErr = errors.New("boom")
	m.RegisterComponent("a", c, Options{})

	res := m.StartComponent("a", StartOptions{})
	assert.False(t, res.Success)
	status, _ := m.GetComponentStatus("a")
	assert.Equal(t, StateRegistered, status.State)
}

func TestStartComponent_FailureOptionalGoesToFailed(t *testing.T) {
	m := newTestManager()
	c := newMock()
	c.startErr = errors.New("boom")
	m.RegisterComponent("a", c, Options{Optional: true})

	res := m.StartComponent("a", StartOptions{})
	assert.False(t, res.Success)
	status, _ := m.GetComponentStatus("a")
	assert.Equal(t, StateFailed, status.State)
}

func TestStartComponent_Timeout(t *testing.T) {
	m := newTestManager()
	c := newMock()
	c.startDelay = 50 * time.Millisecond
	m.RegisterComponent("a", c, Options{StartupTimeoutMS: 10})

	res := m.StartComponent("a", StartOptions{})
	assert.False(t, res.Success)
	assert.Equal(t, CodeStartTimeout, res.Code)
	status, _ := m.GetComponentStatus("a")
	assert.Equal(t, StateStartingTimedOut, status.State)
}

func TestStopComponent_GracefulSuccess(t *testing.T) {
	m := newTestManager()
	c := newMock()
	m.RegisterComponent("a", c, Options{})
	m.StartComponent("a", StartOptions{})

	res := m.StopComponent("a", StopOptions{})
	require.True(t, res.Success)
	assert.Equal(t, 1, c.StopCalls())
	status, _ := m.GetComponentStatus("a")
	assert.Equal(t, StateStopped, status.State)
}

func TestStopComponent_AlreadyStoppingRejectsConcurrentCall(t *testing.T) {
	m := newTestManager()
	c := newMock()
	c.stopDelay = 40 * time.Millisecond
	m.RegisterComponent("a", c, Options{})
	m.StartComponent("a", StartOptions{})

	done := make(chan Result, 1)
	go func() { done <- m.StopComponent("a", StopOptions{}) }()
	time.Sleep(5 * time.Millisecond)

	res := m.StopComponent("a", StopOptions{})
	assert.False(t, res.Success)
	assert.Equal(t, CodeComponentAlreadyStopping, res.Code)

	first := <-done
	assert.True(t, first.Success)
}

func TestStopComponent_HasRunningDependentsBlocks(t *testing.T) {
	m := newTestManager()
	m.RegisterComponent("db", newMock(), Options{})
	m.RegisterComponent("api", newMock(), Options{Dependencies: []string{"db"}})
	m.StartAllComponents(StartAllOptions{})

	res := m.StopComponent("db", StopOptions{})
	assert.False(t, res.Success)
	assert.Equal(t, CodeHasRunningDependents, res.Code)
}

func TestStopComponent_GracefulTimeoutEntersForcePhaseThenStalls(t *testing.T) {
	m := newTestManager()
	c := newMock()
	c.stopDelay = 50 * time.Millisecond
	m.RegisterComponent("a", c, Options{ShutdownGracefulTimeoutMS: MinShutdownGracefulTimeoutMS})
	m.StartComponent("a", StartOptions{})

	res := m.StopComponent("a", StopOptions{GracefulTimeoutOverride: 10 * time.Millisecond})
	assert.False(t, res.Success)
	assert.Equal(t, CodeStopTimeout, res.Code)
	status, _ := m.GetComponentStatus("a")
	assert.Equal(t, StateStalled, status.State)
	require.NotNil(t, status.Stall)
	assert.Equal(t, StallPhaseGraceful, status.Stall.Phase)
}

func TestStopComponent_ForceHookRecoversFromGracefulTimeout(t *testing.T) {
	m := newTestManager()
	base := newMock()
	base.stopDelay = 50 * time.Millisecond
	c := &mockComponentWithForce{mockComponent: base}
	m.RegisterComponent("a", c, Options{ShutdownGracefulTimeoutMS: MinShutdownGracefulTimeoutMS})
	m.StartComponent("a", StartOptions{})

	res := m.StopComponent("a", StopOptions{GracefulTimeoutOverride: 10 * time.Millisecond})
	assert.True(t, res.Success)
	status, _ := m.GetComponentStatus("a")
	assert.Equal(t, StateStopped, status.State)
}

func TestRestartComponent_StopThenStart(t *testing.T) {
	m := newTestManager()
	c := newMock()
	m.RegisterComponent("a", c, Options{})
	m.StartComponent("a", StartOptions{})

	res := m.RestartComponent("a", StartOptions{}, StopOptions{})
	assert.True(t, res.Success)
	assert.Equal(t, 2, c.StartCalls())
	assert.Equal(t, 1, c.StopCalls())
}

func TestRestartComponent_StopFailureReported(t *testing.T) {
	m := newTestManager()
	c := newMock()
	c.stopDelay = 50 * time.Millisecond
	m.RegisterComponent("a", c, Options{ShutdownGracefulTimeoutMS: MinShutdownGracefulTimeoutMS})
	m.StartComponent("a", StartOptions{})

	res := m.RestartComponent("a", StartOptions{}, StopOptions{GracefulTimeoutOverride: 10 * time.Millisecond})
	assert.False(t, res.Success)
	assert.Equal(t, CodeRestartStopFailed, res.Code)
}
