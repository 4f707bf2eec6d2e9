package conductor

import (
	"fmt"
	"time"
)

// StartOptions modifies a single StartComponent call.
type StartOptions struct {
	// AllowNonRunningDependencies lets the start proceed even though a
	// declared (non-optional) dependency is not running.
	AllowNonRunningDependencies bool
	// AllowDuringBulkStartup lets an individual start bypass the
	// isStarting gate, provided all of this component's dependencies are
	// already running.
	AllowDuringBulkStartup bool
}

// StopOptions modifies a single StopComponent call.
type StopOptions struct {
	// ForceImmediate skips straight to the force phase, bypassing the
	// graceful phase entirely.
	ForceImmediate bool
	// AllowStopWithRunningDependents lets the stop proceed even though
	// running dependents exist.
	AllowStopWithRunningDependents bool
	// GracefulTimeoutOverride, if non-zero, replaces the component's own
	// ShutdownGracefulTimeoutMS for this call only.
	GracefulTimeoutOverride time.Duration
}

// runGuarded races fn (a user hook) against an optional timeout. It
// always releases the timer on every exit path and never blocks the
// caller past the timeout even if fn never returns — the late result is
// simply dropped on the floor, per §5's "late completions are ignored".
func runGuarded(fn func() error, timeout time.Duration, hasTimeout bool) (err error, timedOut bool) {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn()
	}()

	if !hasTimeout {
		return <-done, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err = <-done:
		return err, false
	case <-timer.C:
		return nil, true
	}
}

// StartComponent runs a single component through the start phase of the
// state machine: registered -> starting -> running|starting-timed-out|
// registered|failed.
func (m *Manager) StartComponent(name string, opts StartOptions) Result {
	m.mu.Lock()
	rec, ok := m.reg.get(name)
	if !ok {
		m.mu.Unlock()
		return Result{Success: false, Code: CodeComponentNotFound}
	}
	if rec.isRunning() {
		m.mu.Unlock()
		return Result{Success: false, Code: CodeComponentAlreadyRunning}
	}
	if rec.state == StateStarting {
		m.mu.Unlock()
		return Result{Success: false, Code: CodeComponentAlreadyStarting}
	}
	if m.isShuttingDown {
		m.mu.Unlock()
		return Result{Success: false, Code: CodeShutdownInProgress}
	}
	if m.isStarting {
		if !(opts.AllowDuringBulkStartup && m.allDependenciesRunningLocked(rec)) {
			m.mu.Unlock()
			return Result{Success: false, Code: CodeStartupInProgress}
		}
	}

	for _, dep := range rec.opts.Dependencies {
		depRec, exists := m.reg.get(dep)
		if !exists {
			m.mu.Unlock()
			return Result{Success: false, Code: CodeMissingDependency, Reason: dep}
		}
		if !depRec.isRunning() && !depRec.opts.Optional && !opts.AllowNonRunningDependencies {
			m.mu.Unlock()
			return Result{Success: false, Code: CodeDependencyNotRunning, Reason: dep}
		}
	}

	rec.state = StateStarting
	m.mu.Unlock()
	m.emitSafe(EventComponentStarting, map[string]any{"name": name})
	m.recordComponentStart(name)

	timeout, hasTimeout := rec.opts.startupTimeout()
	err, timedOut := runGuarded(rec.component.Start, timeout, hasTimeout)

	// Every suspension point below (the abort hook, event emission) runs
	// with the lock released, per §5; only the state mutation itself is
	// guarded.
	switch {
	case timedOut:
		m.mu.Lock()
		rec.state = StateStartingTimedOut
		status := rec.snapshot()
		m.mu.Unlock()

		m.invokeOnStartupAborted(rec)
		m.recordComponentReady(name, false)
		m.emitSafe(EventComponentStartTimeout, map[string]any{"name": name})
		return Result{Success: false, Code: CodeStartTimeout, Status: &status}

	case err != nil:
		m.mu.Lock()
		rec.lastError = err
		optional := rec.opts.Optional
		if optional {
			rec.state = StateFailed
		} else {
			rec.state = StateRegistered
		}
		status := rec.snapshot()
		m.mu.Unlock()

		m.recordComponentReady(name, false)
		if optional {
			m.emitSafe(EventComponentStartFailedOptional, map[string]any{"name": name, "error": err.Error()})
		} else {
			m.emitSafe(EventComponentStartFailed, map[string]any{"name": name, "error": err.Error()})
		}
		return Result{Success: false, Code: CodeUnknownError, Err: err, Status: &status}

	default:
		m.mu.Lock()
		rec.state = StateRunning
		rec.startedAt = time.Now()
		rec.lastError = nil
		status := rec.snapshot()
		m.mu.Unlock()

		m.recordComponentReady(name, true)
		m.emitSafe(EventComponentStarted, map[string]any{"name": name})
		return Result{Success: true, Status: &status}
	}
}

func (m *Manager) allDependenciesRunningLocked(rec *record) bool {
	for _, dep := range rec.opts.Dependencies {
		depRec, ok := m.reg.get(dep)
		if !ok || !depRec.isRunning() {
			return false
		}
	}
	return true
}

func (m *Manager) invokeOnStartupAborted(rec *record) {
	if h, ok := rec.component.(OnStartupAborted); ok {
		m.safeHook(func() { h.OnStartupAborted() })
	}
}

func (m *Manager) safeHook(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorf("hook panicked: %v", r)
		}
	}()
	fn()
}

func statusPtr(s ComponentStatus) *ComponentStatus { return &s }

// StopComponent runs a single component through the two-phase stop
// sequence: graceful (stopping) then, if needed, force (force-stopping).
func (m *Manager) StopComponent(name string, opts StopOptions) Result {
	m.mu.Lock()
	rec, ok := m.reg.get(name)
	if !ok {
		m.mu.Unlock()
		return Result{Success: false, Code: CodeComponentNotFound}
	}
	if rec.state == StateStalled {
		m.mu.Unlock()
		return Result{Success: false, Code: CodeComponentStalled}
	}
	if rec.state == StateStopping || rec.state == StateForceStopping {
		m.mu.Unlock()
		return Result{Success: false, Code: CodeComponentAlreadyStopping}
	}
	if !rec.isRunning() {
		m.mu.Unlock()
		return Result{Success: false, Code: CodeComponentNotRunning}
	}
	if m.isStarting {
		m.mu.Unlock()
		return Result{Success: false, Code: CodeStartupInProgress}
	}
	if m.isShuttingDown {
		m.mu.Unlock()
		return Result{Success: false, Code: CodeShutdownInProgress}
	}

	dependents := m.reg.runningDependents(name)
	if len(dependents) > 0 && !opts.AllowStopWithRunningDependents {
		m.mu.Unlock()
		return Result{Success: false, Code: CodeHasRunningDependents, Reason: dependents[0]}
	}

	m.mu.Unlock()

	if opts.ForceImmediate {
		return m.runForcePhase(rec, false, false, nil)
	}
	return m.runGracefulThenForce(rec, opts)
}

func (m *Manager) runGracefulThenForce(rec *record, opts StopOptions) Result {
	m.mu.Lock()
	rec.state = StateStopping
	m.mu.Unlock()
	m.emitSafe(EventComponentStopping, map[string]any{"name": rec.name})

	gracefulTimeout := rec.opts.gracefulTimeout()
	if opts.GracefulTimeoutOverride > 0 {
		gracefulTimeout = opts.GracefulTimeoutOverride
	}
	start := time.Now()
	err, timedOut := runGuarded(rec.component.Stop, gracefulTimeout, true)
	m.recordComponentStop(rec.name, time.Since(start))

	if timedOut {
		if h, ok := rec.component.(OnGracefulStopTimeout); ok {
			m.safeHook(h.OnGracefulStopTimeout)
		}
		m.emitSafe(EventComponentStopTimeout, map[string]any{"name": rec.name})
		return m.runForcePhase(rec, true, true, nil)
	}
	if err != nil {
		return m.runForcePhase(rec, true, false, err)
	}

	m.mu.Lock()
	rec.state = StateStopped
	rec.stall = nil
	rec.stoppedAt = time.Now()
	m.mu.Unlock()
	m.emitSafe(EventComponentStopped, map[string]any{"name": rec.name})
	return Result{Success: true, Status: statusPtr(rec.snapshot())}
}

// runForcePhase runs the force phase. gracefulRan/gracefulTimedOut
// describe how we got here (or false/false on the forceImmediate path).
// gracefulErr is the non-timeout error from the graceful phase, if any.
func (m *Manager) runForcePhase(rec *record, gracefulRan, gracefulTimedOut bool, gracefulErr error) Result {
	m.mu.Lock()
	rec.state = StateForceStopping
	m.mu.Unlock()
	m.emitSafe(EventComponentShutdownForce, map[string]any{
		"name":             rec.name,
		"gracefulPhaseRan": gracefulRan,
		"gracefulTimedOut": gracefulTimedOut,
	})

	forcer, hasForce := rec.component.(OnShutdownForce)
	if !hasForce {
		reason := StallReasonError
		if gracefulTimedOut {
			reason = StallReasonTimeout
		}
		return m.enterStall(rec, StallPhaseGraceful, reason, gracefulErr)
	}

	err, timedOut := runGuarded(forcer.OnShutdownForce, rec.opts.forceTimeout(), true)
	if timedOut {
		if h, ok := rec.component.(OnShutdownForceAborted); ok {
			m.safeHook(h.OnShutdownForceAborted)
		}
		m.emitSafe(EventComponentShutdownForceTimeout, map[string]any{"name": rec.name})
		reason := StallReasonTimeout
		if gracefulTimedOut {
			reason = StallReasonBoth
		}
		return m.enterStall(rec, StallPhaseForce, reason, nil)
	}
	if err != nil {
		reason := StallReasonError
		if gracefulTimedOut {
			reason = StallReasonBoth
		}
		return m.enterStall(rec, StallPhaseForce, reason, err)
	}

	m.emitSafe(EventComponentShutdownForceCompleted, map[string]any{"name": rec.name})
	m.mu.Lock()
	rec.state = StateStopped
	rec.stall = nil
	rec.stoppedAt = time.Now()
	m.mu.Unlock()
	m.emitSafe(EventComponentStopped, map[string]any{"name": rec.name})
	return Result{Success: true, Status: statusPtr(rec.snapshot())}
}

func (m *Manager) enterStall(rec *record, phase StallPhase, reason StallReason, err error) Result {
	m.mu.Lock()
	now := time.Now()
	started := rec.startedAt
	if started.IsZero() {
		started = now
	}
	rec.stall = &StallInfo{
		Name:      rec.name,
		Phase:     phase,
		Reason:    reason,
		StartedAt: started,
		StalledAt: now,
		Err:       err,
	}
	rec.state = StateStalled
	m.mu.Unlock()
	m.recordComponentError(rec.name, "stalled_"+string(phase))
	m.emitSafe(EventComponentStalled, map[string]any{"name": rec.name, "phase": phase, "reason": reason})
	return Result{Success: false, Code: CodeStopTimeout, Err: err, Status: statusPtr(rec.snapshot())}
}

// RestartComponent composes StopComponent then StartComponent, reporting
// distinct codes so operators can tell which half failed.
func (m *Manager) RestartComponent(name string, startOpts StartOptions, stopOpts StopOptions) Result {
	m.mu.Lock()
	if m.isStarting {
		m.mu.Unlock()
		return Result{Success: false, Code: CodeStartupInProgress}
	}
	if m.isShuttingDown {
		m.mu.Unlock()
		return Result{Success: false, Code: CodeShutdownInProgress}
	}
	rec, ok := m.reg.get(name)
	m.mu.Unlock()
	if !ok {
		return Result{Success: false, Code: CodeComponentNotFound}
	}

	if rec.isRunning() {
		if res := m.StopComponent(name, stopOpts); !res.Success {
			return Result{Success: false, Code: CodeRestartStopFailed, Err: res.Err, Status: res.Status}
		}
	}

	res := m.StartComponent(name, startOpts)
	if !res.Success {
		return Result{Success: false, Code: CodeRestartStartFailed, Err: res.Err, Status: res.Status}
	}
	return res
}
