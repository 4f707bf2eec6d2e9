package conductor

import "time"

// StartAllOptions modifies a single startAllComponents call.
type StartAllOptions struct {
	// IgnoreStalledComponents lets startAll proceed even though stalled
	// components exist in the registry; their names still surface in
	// BlockedByStalledComponents for the caller's awareness, but they no
	// longer block the whole call.
	IgnoreStalledComponents bool
}

// StartAllResult is the outcome of startAllComponents.
type StartAllResult struct {
	Result
	StartedComponents          []string
	SkippedComponents          []SkippedComponent
	FailedOptionalComponents   []string
	BlockedByStalledComponents []string
	RolledBack                 bool
}

// SkippedComponent records why a component was skipped during startAll.
type SkippedComponent struct {
	Name   string
	Reason string // name of the stalled/failed/skipped dependency that caused the skip
}

// StartAllComponents brings up every registered component in topological
// order, skipping components whose dependency chain is broken and rolling
// back on any non-optional failure or a concurrent shutdown request.
func (m *Manager) StartAllComponents(opts StartAllOptions) StartAllResult {
	m.mu.Lock()
	if m.isStarting {
		m.mu.Unlock()
		return StartAllResult{Result: Result{Success: false, Code: CodeAlreadyInProgress}}
	}
	if m.isShuttingDown {
		m.mu.Unlock()
		return StartAllResult{Result: Result{Success: false, Code: CodeShutdownInProgress}}
	}
	if len(m.reg.order) == 0 {
		m.mu.Unlock()
		return StartAllResult{Result: Result{Success: false, Code: CodeNoComponentsRegistered}}
	}

	stalled := m.reg.stalledNames()
	if len(stalled) > 0 && !opts.IgnoreStalledComponents {
		m.mu.Unlock()
		return StartAllResult{
			Result:                     Result{Success: false, Code: CodeComponentStalled},
			BlockedByStalledComponents: stalled,
		}
	}

	allRunning := true
	for _, n := range m.reg.order {
		if !m.reg.byName[n].isRunning() {
			allRunning = false
			break
		}
	}
	if allRunning {
		m.mu.Unlock()
		return StartAllResult{Result: Result{Success: true}, StartedComponents: nil}
	}

	order, complete := resolveStartupOrder(m.reg.order, m.reg.byName)
	if !complete {
		m.mu.Unlock()
		cyc := findCycle(m.reg.order, m.reg.byName)
		return StartAllResult{Result: Result{Success: false, Code: CodeDependencyCycle, Err: &DependencyCycleError{Cycle: cyc}}}
	}
	m.isStarting = true
	m.mu.Unlock()

	var started []string
	var skipped []SkippedComponent
	var failedOptional []string
	brokenBy := make(map[string]string) // name -> the dependency that broke its chain
	// Stalled components are left as they are; their dependents are skipped.
	for _, s := range stalled {
		brokenBy[s] = s
	}

	rollback := func() {
		unwind := &LIFOQueue[string]{}
		for _, name := range started {
			unwind.Push(name)
		}
		var unwound []string
		for {
			name, ok := unwind.Pop()
			if !ok {
				break
			}
			m.StopComponent(name, StopOptions{AllowStopWithRunningDependents: true})
			unwound = append(unwound, name)
		}
		m.mu.Lock()
		m.isStarting = false
		m.mu.Unlock()
		m.emitSafe(EventComponentStartupRollback, map[string]any{"stopped": unwound})
	}

	for _, name := range order {
		m.mu.Lock()
		shuttingDown := m.isShuttingDown
		rec := m.reg.byName[name]
		m.mu.Unlock()
		if rec == nil {
			continue
		}
		if rec.isRunning() {
			started = append(started, name)
			continue
		}

		if shuttingDown {
			rollback()
			return StartAllResult{Result: Result{Success: false, Code: CodeShutdownInProgress}, RolledBack: true}
		}

		if _, isStalled := brokenBy[name]; isStalled {
			continue
		}

		if reason, broken := firstBrokenDependency(rec, brokenBy); broken {
			brokenBy[name] = reason
			skipped = append(skipped, SkippedComponent{Name: name, Reason: reason})
			m.emitSafe(EventComponentStartSkipped, map[string]any{"name": name, "reason": reason})
			continue
		}

		res := m.StartComponent(name, StartOptions{AllowDuringBulkStartup: true})
		if res.Success {
			started = append(started, name)
			continue
		}

		if rec.opts.Optional {
			failedOptional = append(failedOptional, name)
			brokenBy[name] = name
			continue
		}

		rollback()
		return StartAllResult{
			Result:                     Result{Success: false, Code: res.Code, Err: res.Err, Status: res.Status},
			StartedComponents:          started,
			SkippedComponents:          skipped,
			FailedOptionalComponents:   failedOptional,
			BlockedByStalledComponents: stalled,
			RolledBack:                 true,
		}
	}

	m.mu.Lock()
	m.isStarting = false
	m.isStarted = true
	runningNow := m.reg.runningNames()
	m.mu.Unlock()

	m.emitSafe(EventManagerStarted, map[string]any{"components": runningNow})

	return StartAllResult{
		Result:                     Result{Success: true},
		StartedComponents:          started,
		SkippedComponents:          skipped,
		FailedOptionalComponents:   failedOptional,
		BlockedByStalledComponents: stalled,
	}
}

// firstBrokenDependency reports whether rec depends, directly or
// transitively through brokenBy, on a component that is stalled, failed
// (optional), or itself already skipped.
func firstBrokenDependency(rec *record, brokenBy map[string]string) (string, bool) {
	for _, dep := range rec.opts.Dependencies {
		if _, broken := brokenBy[dep]; broken {
			return dep, true
		}
	}
	return "", false
}

// StopAllOptions modifies a single stopAllComponents call.
type StopAllOptions struct {
	// HaltOnStall, when non-nil and false, lets stopAll continue past a
	// stalled component instead of aborting. Nil (the zero value) means
	// the default of true.
	HaltOnStall *bool
	// RetryStalled re-attempts every component still stalled after the
	// main pass, clearing stall state on success.
	RetryStalled bool
	// TimeoutMS bounds the entire call; 0 means unbounded.
	TimeoutMS int
	// Method records what triggered this shutdown, for observability.
	Method ShutdownMethod
}

func (o StopAllOptions) haltOnStall() bool {
	if o.HaltOnStall == nil {
		return true
	}
	return *o.HaltOnStall
}

// StopAllResult is the outcome of stopAllComponents.
type StopAllResult struct {
	Result
	StoppedComponents []string
	StalledComponents []string
	TimedOut          bool
	DurationMS        int64
}

// StopAllComponents runs the warning phase once, then stops the running
// set one at a time in reverse topological order.
func (m *Manager) StopAllComponents(opts StopAllOptions) StopAllResult {
	m.mu.Lock()
	if m.isShuttingDown {
		m.mu.Unlock()
		return StopAllResult{Result: Result{Success: false, Code: CodeAlreadyInProgress}, DurationMS: 0}
	}
	m.isShuttingDown = true
	m.shutdownMethod = opts.Method
	duringStartup := m.isStarting
	m.mu.Unlock()

	start := time.Now()
	m.emitSafe(EventManagerShutdownInitiated, map[string]any{"method": opts.Method, "duringStartup": duringStartup})

	m.runWarningPhase()

	m.mu.Lock()
	topoOrder, complete := resolveStartupOrder(m.reg.order, m.reg.byName)
	fallback := !complete
	registryOrder := m.reg.names()
	m.mu.Unlock()

	var shutdownOrder []string
	if fallback {
		shutdownOrder = reverse(registryOrder)
	} else {
		shutdownOrder = reverse(topoOrder)
	}

	var stopped []string
	var stalled []string
	timedOut := false
	var deadline time.Time
	if opts.TimeoutMS > 0 {
		deadline = start.Add(time.Duration(opts.TimeoutMS) * time.Millisecond)
	}

	for _, name := range shutdownOrder {
		if !deadline.IsZero() && time.Now().After(deadline) {
			timedOut = true
			break
		}
		m.mu.Lock()
		rec, ok := m.reg.get(name)
		running := ok && rec.isRunning()
		m.mu.Unlock()
		if !running {
			continue
		}

		res := m.StopComponent(name, StopOptions{AllowStopWithRunningDependents: true})
		if res.Success {
			stopped = append(stopped, name)
			continue
		}
		stalled = append(stalled, name)
		if opts.haltOnStall() {
			break
		}
	}

	if opts.RetryStalled {
		// Candidates are components that stalled during this call plus any
		// left stalled by an earlier call — a separate stopAll({retryStalled:
		// true}) must pick up a component an operator fixed out of band, not
		// just ones that stalled just now.
		seen := make(map[string]bool, len(stalled))
		for _, n := range stalled {
			seen[n] = true
		}
		m.mu.Lock()
		preExisting := m.reg.stalledNames()
		m.mu.Unlock()
		for _, n := range preExisting {
			if !seen[n] {
				stalled = append(stalled, n)
				seen[n] = true
			}
		}

		var stillStalled []string
		for _, name := range stalled {
			m.mu.Lock()
			rec, ok := m.reg.get(name)
			m.mu.Unlock()
			if !ok {
				continue
			}
			// StopComponent itself rejects a stalled component outright
			// (component_stalled); a retry has to re-run the stop sequence
			// directly against the record instead.
			res := m.runGracefulThenForce(rec, StopOptions{AllowStopWithRunningDependents: true})
			if res.Success {
				stopped = append(stopped, name)
				continue
			}
			stillStalled = append(stillStalled, name)
		}
		stalled = stillStalled
	}

	m.mu.Lock()
	m.isShuttingDown = false
	m.isStarted = false
	m.mu.Unlock()

	durationMS := time.Since(start).Milliseconds()

	if timedOut {
		m.emitSafe(EventManagerShutdownTimeout, map[string]any{"stopped": stopped, "stalled": stalled})
		return StopAllResult{
			Result:            Result{Success: false, Code: CodeShutdownTimeout},
			StoppedComponents: stopped,
			StalledComponents: stalled,
			TimedOut:          true,
			DurationMS:        durationMS,
		}
	}

	m.emitSafe(EventManagerShutdownCompleted, map[string]any{"stopped": stopped, "stalled": stalled})
	return StopAllResult{
		Result:            Result{Success: len(stalled) == 0},
		StoppedComponents: stopped,
		StalledComponents: stalled,
		DurationMS:        durationMS,
	}
}

// RestartAllComponents composes stopAll then startAll; it succeeds only if
// both halves succeed.
func (m *Manager) RestartAllComponents(stopOpts StopAllOptions, startOpts StartAllOptions) (StopAllResult, StartAllResult) {
	stopRes := m.StopAllComponents(stopOpts)
	if !stopRes.Success {
		return stopRes, StartAllResult{}
	}
	startRes := m.StartAllComponents(startOpts)
	return stopRes, startRes
}

// runWarningPhase implements §4.6's pre-stop broadcast. Only stopAll calls
// this; individual stopComponent calls never trigger it.
func (m *Manager) runWarningPhase() {
	ms := m.shutdownWarningTimeoutMS
	if ms < 0 {
		return
	}

	m.mu.Lock()
	running := m.reg.runningNames()
	var targets []*record
	for _, n := range running {
		if h, ok := m.reg.byName[n].component.(OnShutdownWarning); ok {
			targets = append(targets, m.reg.byName[n])
			_ = h
		}
	}
	m.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	m.emitSafe(EventManagerShutdownWarning, map[string]any{"components": recordNames(targets)})

	if ms == 0 {
		for _, rec := range targets {
			go func(r *record) {
				defer func() { recover() }()
				r.component.(OnShutdownWarning).OnShutdownWarning()
			}(rec)
		}
		m.emitSafe(EventComponentShutdownWarningCompleted, nil)
		return
	}

	done := make(chan string, len(targets))
	for _, rec := range targets {
		go func(r *record) {
			defer func() {
				if recover() != nil {
					// listener panic: swallowed, still reported done
				}
				done <- r.name
			}()
			r.component.(OnShutdownWarning).OnShutdownWarning()
		}(rec)
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	remaining := make(map[string]bool, len(targets))
	for _, rec := range targets {
		remaining[rec.name] = true
	}

	for len(remaining) > 0 {
		select {
		case name := <-done:
			delete(remaining, name)
		case <-timer.C:
			for name := range remaining {
				m.emitSafe(EventComponentShutdownWarningTimeout, map[string]any{"name": name})
			}
			return
		}
	}
	m.emitSafe(EventComponentShutdownWarningCompleted, map[string]any{"components": recordNames(targets)})
}

func recordNames(recs []*record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.name
	}
	return out
}
