package conductor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartAllComponents_LinearOrder(t *testing.T) {
	m := newTestManager()
	m.RegisterComponent("a", newMock(), Options{})
	m.RegisterComponent("b", newMock(), Options{Dependencies: []string{"a"}})
	m.RegisterComponent("c", newMock(), Options{Dependencies: []string{"b"}})

	res := m.StartAllComponents(StartAllOptions{})
	require.True(t, res.Success)
	assert.Equal(t, []string{"a", "b", "c"}, res.StartedComponents)
	for _, n := range []string{"a", "b", "c"} {
		status, _ := m.GetComponentStatus(n)
		assert.Equal(t, StateRunning, status.State)
	}
}

func TestStartAllComponents_DiamondOrder(t *testing.T) {
	m := newTestManager()
	m.RegisterComponent("db", newMock(), Options{})
	m.RegisterComponent("c1", newMock(), Options{Dependencies: []string{"db"}})
	m.RegisterComponent("c2", newMock(), Options{Dependencies: []string{"db"}})
	m.RegisterComponent("api", newMock(), Options{Dependencies: []string{"c1", "c2"}})

	res := m.StartAllComponents(StartAllOptions{})
	require.True(t, res.Success)
	require.Len(t, res.StartedComponents, 4)
	assert.Equal(t, "db", res.StartedComponents[0])
	assert.Equal(t, "api", res.StartedComponents[3])
}

func TestStartAllComponents_NoComponentsRegistered(t *testing.T) {
	m := newTestManager()
	res := m.StartAllComponents(StartAllOptions{})
	assert.False(t, res.Success)
	assert.Equal(t, CodeNoComponentsRegistered, res.Code)
}

func TestStartAllComponents_OptionalDependencyFailsChainSkipped(t *testing.T) {
	m := newTestManager()
	flaky := newMock()
	flaky.startErr = errors.New("flaky boom")
	m.RegisterComponent("flaky", flaky, Options{Optional: true})
	m.RegisterComponent("report", newMock(), Options{Dependencies: []string{"flaky"}})
	m.RegisterComponent("standalone", newMock(), Options{})

	res := m.StartAllComponents(StartAllOptions{})
	require.True(t, res.Success)
	assert.Contains(t, res.FailedOptionalComponents, "flaky")
	require.Len(t, res.SkippedComponents, 1)
	assert.Equal(t, "report", res.SkippedComponents[0].Name)
	assert.Equal(t, "flaky", res.SkippedComponents[0].Reason)
	assert.Contains(t, res.StartedComponents, "standalone")

	reportStatus, _ := m.GetComponentStatus("report")
	assert.Equal(t, StateRegistered, reportStatus.State)
}

func TestStartAllComponents_NonOptionalFailureRollsBack(t *testing.T) {
	m := newTestManager()
	m.RegisterComponent("db", newMock(), Options{})
	failing := newMock()
	failing.startErr = errors.New("boom")
	m.RegisterComponent("broken", failing, Options{Dependencies: []string{"db"}})

	res := m.StartAllComponents(StartAllOptions{})
	assert.False(t, res.Success)
	assert.True(t, res.RolledBack)

	dbStatus, _ := m.GetComponentStatus("db")
	assert.Equal(t, StateStopped, dbStatus.State)
}

func TestStartAllComponents_AlreadyInProgress(t *testing.T) {
	m := newTestManager()
	slow := newMock()
	slow.startDelay = 50 * time.Millisecond
	m.RegisterComponent("slow", slow, Options{})

	done := make(chan StartAllResult, 1)
	go func() { done <- m.StartAllComponents(StartAllOptions{}) }()
	time.Sleep(5 * time.Millisecond)

	res := m.StartAllComponents(StartAllOptions{})
	assert.False(t, res.Success)
	assert.Equal(t, CodeAlreadyInProgress, res.Code)

	<-done
}

func TestStartAllComponents_BlockedByStalledComponents(t *testing.T) {
	m := newTestManager()
	c := newMock()
	c.stopDelay = 50 * time.Millisecond
	m.RegisterComponent("a", c, Options{ShutdownGracefulTimeoutMS: MinShutdownGracefulTimeoutMS})
	m.StartComponent("a", StartOptions{})
	m.StopComponent("a", StopOptions{GracefulTimeoutOverride: 10 * time.Millisecond})

	status, _ := m.GetComponentStatus("a")
	require.Equal(t, StateStalled, status.State)

	res := m.StartAllComponents(StartAllOptions{})
	assert.False(t, res.Success)
	assert.Equal(t, CodeComponentStalled, res.Code)
	assert.Contains(t, res.BlockedByStalledComponents, "a")
}

func TestStopAllComponents_ReverseOrder(t *testing.T) {
	m := newTestManager()
	m.RegisterComponent("a", newMock(), Options{})
	m.RegisterComponent("b", newMock(), Options{Dependencies: []string{"a"}})
	m.StartAllComponents(StartAllOptions{})

	res := m.StopAllComponents(StopAllOptions{})
	require.True(t, res.Success)
	assert.Equal(t, []string{"b", "a"}, res.StoppedComponents)
}

func TestStopAllComponents_StallThenHalts(t *testing.T) {
	m := newTestManager()
	m.RegisterComponent("a", newMock(), Options{})
	stuck := newMock()
	stuck.stopErr = errors.New("stuck boom")
	m.RegisterComponent("b", stuck, Options{Dependencies: []string{"a"}})
	m.StartAllComponents(StartAllOptions{})

	haltOnStall := true
	res := m.StopAllComponents(StopAllOptions{HaltOnStall: &haltOnStall})
	assert.False(t, res.Success)
	assert.Contains(t, res.StalledComponents, "b")
	assert.NotContains(t, res.StoppedComponents, "a")
}

func TestStopAllComponents_RetryStalledReattemptsWithinSameCall(t *testing.T) {
	// A component that stalls mid-call (not one already stalled before the
	// call started) stays in the result's StalledComponents list; since its
	// Stop still returns an error on retry, it is not recovered, but the
	// retry pass must not lose track of it.
	m := newTestManager()
	c := newMock()
	c.stopErr = errors.New("stop always fails")
	m.RegisterComponent("a", c, Options{})
	m.StartComponent("a", StartOptions{})

	halt := false
	res := m.StopAllComponents(StopAllOptions{HaltOnStall: &halt, RetryStalled: true})
	assert.Contains(t, res.StalledComponents, "a")
}

func TestStopAllComponents_RetryStalledRecoversComponentStalledByEarlierCall(t *testing.T) {
	// First stopAll stalls "a"; it is externally fixed; a later, separate
	// stopAll({retryStalled:true}) call must still pick it up even though
	// nothing stalled during that second call itself.
	m := newTestManager()
	c := newMock()
	c.stopErr = errors.New("stop fails for now")
	m.RegisterComponent("a", c, Options{})
	m.StartComponent("a", StartOptions{})

	first := m.StopAllComponents(StopAllOptions{})
	assert.False(t, first.Success)
	assert.Contains(t, first.StalledComponents, "a")
	status, _ := m.GetComponentStatus("a")
	assert.Equal(t, StateStalled, status.State)

	c.mu.Lock()
	c.stopErr = nil
	c.mu.Unlock()

	second := m.StopAllComponents(StopAllOptions{RetryStalled: true})
	assert.True(t, second.Success)
	assert.Empty(t, second.StalledComponents)
	status, _ = m.GetComponentStatus("a")
	assert.Equal(t, StateStopped, status.State)
}

func TestRestartAllComponents_ComposesStopAndStart(t *testing.T) {
	m := newTestManager()
	c := newMock()
	m.RegisterComponent("a", c, Options{})
	m.StartAllComponents(StartAllOptions{})

	stopRes, startRes := m.RestartAllComponents(StopAllOptions{}, StartAllOptions{})
	assert.True(t, stopRes.Success)
	assert.True(t, startRes.Success)
	assert.Equal(t, 2, c.StartCalls())
	assert.Equal(t, 1, c.StopCalls())
}
