package conductor

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// SignalStatus reports whether an OSSignalAdapter is currently attached.
type SignalStatus struct {
	Attached bool
}

// ComponentSignalResult is one component's outcome from a reload/info/debug
// broadcast.
type ComponentSignalResult struct {
	Name string
	Code Code
}

// BroadcastResult is the aggregate outcome of a reload/info/debug trigger.
type BroadcastResult struct {
	Result
	Components []ComponentSignalResult
}

// signalDispatcher owns the optional OSSignalAdapter attachment. The
// broadcast logic itself lives on Manager (dispatchBroadcast, below) since
// it needs the registry and event emitter; this type's only job is the
// attach/detach idempotence §8 requires.
type signalDispatcher struct {
	mu       sync.Mutex
	attached bool
	adapter  *OSSignalAdapter
}

func newSignalDispatcher(m *Manager) *signalDispatcher {
	return &signalDispatcher{}
}

// AttachSignals wires adapter (or a default OSSignalAdapter if nil) to this
// Manager's shutdown path. A second call while already attached is a no-op.
func (m *Manager) AttachSignals(adapter *OSSignalAdapter) Result {
	m.signals.mu.Lock()
	defer m.signals.mu.Unlock()
	if m.signals.attached {
		return Result{Success: true}
	}
	if adapter == nil {
		adapter = NewOSSignalAdapter()
	}
	adapter.start(m)
	m.signals.adapter = adapter
	m.signals.attached = true
	m.emitSafe(EventManagerSignalsAttached, nil)
	return Result{Success: true}
}

// DetachSignals stops and clears the attached adapter, if any. A second
// call while already detached is a no-op.
func (m *Manager) DetachSignals() Result {
	m.signals.mu.Lock()
	defer m.signals.mu.Unlock()
	if !m.signals.attached {
		return Result{Success: true}
	}
	m.signals.adapter.stopAdapter()
	m.signals.adapter = nil
	m.signals.attached = false
	m.emitSafe(EventManagerSignalsDetached, nil)
	return Result{Success: true}
}

// GetSignalStatus reports whether signals are currently attached.
func (m *Manager) GetSignalStatus() SignalStatus {
	m.signals.mu.Lock()
	defer m.signals.mu.Unlock()
	return SignalStatus{Attached: m.signals.attached}
}

// onShutdownRequested is the hook an adapter calls on receipt of a
// shutdown signal. The core is idempotent over repeated deliveries: once a
// shutdown is already underway, later deliveries are logged and ignored.
func (m *Manager) onShutdownRequested(method ShutdownMethod) {
	m.mu.Lock()
	if m.isShuttingDown {
		m.mu.Unlock()
		m.log.Infof("shutdown already in progress, ignoring duplicate %s signal", method)
		return
	}
	m.mu.Unlock()
	m.emitSafe(EventSignalShutdown, map[string]any{"method": method})
	go m.StopAllComponents(StopAllOptions{Method: method})
}

// TriggerReload broadcasts onReload to every running component, or
// delegates to a custom onReloadRequested callback if one was configured.
func (m *Manager) TriggerReload() BroadcastResult {
	m.emitSafe(EventSignalReload, nil)
	return m.dispatchOrDelegate(m.onReloadRequested,
		EventComponentReloadStarted, EventComponentReloadCompleted, EventComponentReloadFailed,
		func(c Component) (func() error, bool) {
			h, ok := c.(OnReload)
			if !ok {
				return nil, false
			}
			return h.OnReload, true
		})
}

// TriggerInfo mirrors TriggerReload for the info signal.
func (m *Manager) TriggerInfo() BroadcastResult {
	m.emitSafe(EventSignalInfo, nil)
	return m.dispatchOrDelegate(m.onInfoRequested,
		EventComponentInfoStarted, EventComponentInfoCompleted, EventComponentInfoFailed,
		func(c Component) (func() error, bool) {
			h, ok := c.(OnInfo)
			if !ok {
				return nil, false
			}
			return h.OnInfo, true
		})
}

// TriggerDebug mirrors TriggerReload for the debug signal.
func (m *Manager) TriggerDebug() BroadcastResult {
	m.emitSafe(EventSignalDebug, nil)
	return m.dispatchOrDelegate(m.onDebugRequested,
		EventComponentDebugStarted, EventComponentDebugCompleted, EventComponentDebugFailed,
		func(c Component) (func() error, bool) {
			h, ok := c.(OnDebug)
			if !ok {
				return nil, false
			}
			return h.OnDebug, true
		})
}

func (m *Manager) dispatchOrDelegate(custom func(broadcast func()), startedEvt, completedEvt, failedEvt string, hook func(Component) (func() error, bool)) BroadcastResult {
	if custom == nil {
		return m.dispatchBroadcast(startedEvt, completedEvt, failedEvt, hook)
	}
	var result BroadcastResult
	called := false
	custom(func() {
		called = true
		result = m.dispatchBroadcast(startedEvt, completedEvt, failedEvt, hook)
	})
	if !called {
		result = BroadcastResult{Result: Result{Success: true, Code: CodeOK}}
	}
	return result
}

// dispatchBroadcast iterates the running set in registry order,
// invoking hook on each and capping each call at its own signalTimeoutMS.
func (m *Manager) dispatchBroadcast(startedEvt, completedEvt, failedEvt string, hook func(Component) (func() error, bool)) BroadcastResult {
	type target struct {
		name      string
		call      func() error
		hasHook   bool
		timeout   time.Duration
		hasTimeout bool
	}

	m.mu.Lock()
	names := m.reg.runningNames()
	targets := make([]target, 0, len(names))
	for _, n := range names {
		rec := m.reg.byName[n]
		call, ok := hook(rec.component)
		to, hasTo := rec.opts.signalTimeout()
		targets = append(targets, target{name: n, call: call, hasHook: ok, timeout: to, hasTimeout: hasTo})
	}
	m.mu.Unlock()

	m.emitSafe(startedEvt, map[string]any{"components": names})

	results := make([]ComponentSignalResult, 0, len(targets))
	var anyTimeout, anyError, anyCalled bool
	for _, t := range targets {
		if !t.hasHook {
			results = append(results, ComponentSignalResult{Name: t.name, Code: CodeNoHandler})
			continue
		}
		err, timedOut := runGuarded(t.call, t.timeout, t.hasTimeout)
		switch {
		case timedOut:
			anyTimeout = true
			results = append(results, ComponentSignalResult{Name: t.name, Code: CodeTimeout})
		case err != nil:
			anyError = true
			m.log.Errorf("signal handler for %s failed: %v", t.name, err)
			results = append(results, ComponentSignalResult{Name: t.name, Code: CodeError})
		default:
			anyCalled = true
			results = append(results, ComponentSignalResult{Name: t.name, Code: CodeCalled})
		}
	}

	code := aggregateSignalCode(anyCalled, anyTimeout, anyError, len(targets))
	if code == CodeError || code == CodePartialError {
		m.emitSafe(failedEvt, map[string]any{"components": results})
	} else {
		m.emitSafe(completedEvt, map[string]any{"components": results})
	}

	return BroadcastResult{
		Result:     Result{Success: code == CodeOK, Code: code},
		Components: results,
	}
}

func aggregateSignalCode(anyCalled, anyTimeout, anyError bool, total int) Code {
	switch {
	case !anyTimeout && !anyError:
		return CodeOK
	case anyError && anyTimeout:
		return CodeError
	case anyError:
		if anyCalled {
			return CodePartialError
		}
		return CodeError
	default: // anyTimeout only
		if anyCalled {
			return CodePartialTimeout
		}
		return CodeTimeout
	}
}

// OSSignalAdapter is the default signal-adapter external collaborator: it
// subscribes to SIGINT/SIGTERM/SIGTRAP and calls the core's shutdown hook.
type OSSignalAdapter struct {
	mgr   *Manager
	sigCh chan os.Signal
	stop  chan struct{}
}

// NewOSSignalAdapter constructs an unattached adapter; AttachSignals starts it.
func NewOSSignalAdapter() *OSSignalAdapter {
	return &OSSignalAdapter{}
}

func (a *OSSignalAdapter) start(mgr *Manager) {
	a.mgr = mgr
	a.sigCh = make(chan os.Signal, 1)
	a.stop = make(chan struct{})
	signal.Notify(a.sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGTRAP)
	go a.loop()
}

func (a *OSSignalAdapter) loop() {
	for {
		select {
		case sig := <-a.sigCh:
			a.mgr.onShutdownRequested(methodForSignal(sig))
		case <-a.stop:
			signal.Stop(a.sigCh)
			return
		}
	}
}

func (a *OSSignalAdapter) stopAdapter() {
	close(a.stop)
}

func methodForSignal(sig os.Signal) ShutdownMethod {
	switch sig {
	case syscall.SIGINT:
		return ShutdownMethodSIGINT
	case syscall.SIGTERM:
		return ShutdownMethodSIGTERM
	case syscall.SIGTRAP:
		return ShutdownMethodSIGTRAP
	default:
		return ShutdownMethodNone
	}
}
