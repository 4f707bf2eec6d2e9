package conductor

import (
	"sync"
	"time"
)

// ShutdownMethod identifies what triggered a shutdown.
type ShutdownMethod string

const (
	ShutdownMethodNone    ShutdownMethod = ""
	ShutdownMethodSIGINT  ShutdownMethod = "SIGINT"
	ShutdownMethodSIGTERM ShutdownMethod = "SIGTERM"
	ShutdownMethodSIGTRAP ShutdownMethod = "SIGTRAP"
	ShutdownMethodAPI     ShutdownMethod = "api"
)

// Manager is the component registry, dependency resolver, per-component
// and bulk lifecycle engines, signal/broadcast dispatcher, and messaging
// façade, all guarded by one mutex per §5's single-logical-actor model.
//
// All state transitions happen while mu is held; every suspension point
// (a component's Start/Stop/hook call) runs with mu released, per §5.
type Manager struct {
	mu  sync.Mutex
	reg *registry

	log       Logger
	events    *eventEmitter
	metrics   *DefaultMetrics
	promRec   *PrometheusRecorder
	messageTimeout time.Duration

	shutdownWarningTimeoutMS int

	// Gate flags (§5). Never inferred from component counts; SystemState
	// is derived separately for reporting.
	isStarting     bool
	isShuttingDown bool
	isStarted      bool
	shutdownMethod ShutdownMethod

	signals *signalDispatcher

	// Custom reload/info/debug hooks. When set, triggerReload/Info/Debug
	// invoke the callback with a broadcastFn instead of broadcasting
	// directly; the callback decides whether and when to call it.
	onReloadRequested func(broadcast func())
	onInfoRequested   func(broadcast func())
	onDebugRequested  func(broadcast func())
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

// WithLogger sets the Manager's Logger. Default is a no-op logger.
func WithLogger(l Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithEventTransport sets the external observability sink every published
// event is additionally forwarded to.
func WithEventTransport(t EventTransport) ManagerOption {
	return func(m *Manager) {
		m.events = newEventEmitter(t, m.log)
	}
}

// WithMetrics installs a metrics recorder. Default is a fresh
// DefaultMetrics with no Prometheus wiring.
func WithMetrics(rec *DefaultMetrics) ManagerOption {
	return func(m *Manager) { m.metrics = rec }
}

// WithPrometheus installs a PrometheusRecorder alongside DefaultMetrics.
func WithPrometheus(rec *PrometheusRecorder) ManagerOption {
	return func(m *Manager) { m.promRec = rec }
}

// WithShutdownWarningTimeoutMS sets the manager-wide warning-phase
// timeout. 0 means fire-and-forget, <0 means skip entirely. Default 500.
func WithShutdownWarningTimeoutMS(ms int) ManagerOption {
	return func(m *Manager) { m.shutdownWarningTimeoutMS = ms }
}

// WithMessageTimeout sets the default sendMessage/broadcastMessage
// per-call timeout. Default 5000ms.
func WithMessageTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.messageTimeout = d }
}

// WithOnReloadRequested installs a custom reload hook: triggerReload will
// call cb with a broadcastFn instead of broadcasting onReload directly,
// letting the host decide whether/when to fan the signal out.
func WithOnReloadRequested(cb func(broadcast func())) ManagerOption {
	return func(m *Manager) { m.onReloadRequested = cb }
}

// WithOnInfoRequested mirrors WithOnReloadRequested for the info signal.
func WithOnInfoRequested(cb func(broadcast func())) ManagerOption {
	return func(m *Manager) { m.onInfoRequested = cb }
}

// WithOnDebugRequested mirrors WithOnReloadRequested for the debug signal.
func WithOnDebugRequested(cb func(broadcast func())) ManagerOption {
	return func(m *Manager) { m.onDebugRequested = cb }
}

// NewManager constructs a Manager with the given options applied.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		reg:                      newRegistry(),
		log:                      noopLogger{},
		metrics:                  NewDefaultMetrics(),
		shutdownWarningTimeoutMS: DefaultShutdownWarningTimeoutMS,
		messageTimeout:           DefaultMessageTimeoutMS * time.Millisecond,
	}
	for _, o := range opts {
		o(m)
	}
	if m.events == nil {
		m.events = newEventEmitter(nil, m.log)
	}
	m.signals = newSignalDispatcher(m)
	return m
}

// On subscribes fn to every future emission of the named event.
func (m *Manager) On(name string, fn func(any)) { m.events.on(name, fn) }

// Once subscribes fn to the next emission of the named event only.
func (m *Manager) Once(name string, fn func(any)) { m.events.once(name, fn) }

// HasListener reports whether any listener is subscribed to name.
func (m *Manager) HasListener(name string) bool { return m.events.hasListener(name) }

// ListenerCount returns the number of listeners subscribed to name.
func (m *Manager) ListenerCount(name string) int { return m.events.listenerCount(name) }

// RegisterComponent appends component under name after a cycle check.
// Registration is atomic: on any failure the registry is left completely
// unchanged.
func (m *Manager) RegisterComponent(name string, component Component, opts Options) RegistrationResult {
	return m.insertComponent(name, component, opts, PositionEnd, "")
}

// InsertComponentAt places component at an explicit position within the
// registry ordering — a preference for iteration/registration order, not
// the startup order the resolver computes.
func (m *Manager) InsertComponentAt(name string, component Component, opts Options, pos Position, target string) RegistrationResult {
	return m.insertComponent(name, component, opts, pos, target)
}

func (m *Manager) insertComponent(name string, component Component, opts Options, pos Position, target string) RegistrationResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.reg.order)

	if m.isShuttingDown {
		return m.rejectRegistration(CodeShutdownInProgress, before)
	}
	if m.isStarting {
		if m.isDeclaredDependency(name) {
			return m.rejectRegistration(CodeStartupInProgress, before)
		}
	}
	if err := ValidateName(name); err != nil {
		return RegistrationResult{Result: Result{Success: false, Err: err}}
	}
	if m.reg.has(name) {
		return m.rejectRegistration(CodeDuplicateName, before)
	}
	if existing, ok := m.reg.duplicateInstanceName(component); ok {
		return m.rejectRegistrationWithReason(CodeDuplicateInstance, before, existing)
	}
	if (pos == PositionBefore || pos == PositionAfter) && !m.reg.has(target) {
		return m.rejectRegistration(CodeTargetNotFound, before)
	}

	finalOpts := opts.withDefaults()

	// Cycle check against the prospective full registry, before any
	// mutation, so a rejected registration leaves the registry untouched.
	prospectiveNames := append(append([]string{}, m.reg.order...), name)
	prospectiveByName := make(map[string]*record, len(prospectiveNames))
	for _, n := range m.reg.order {
		prospectiveByName[n] = m.reg.byName[n]
	}
	prospectiveByName[name] = &record{name: name, opts: finalOpts}
	if _, complete := resolveStartupOrder(prospectiveNames, prospectiveByName); !complete {
		return m.rejectRegistration(CodeDependencyCycle, before)
	}

	rec := &record{
		name:      name,
		component: component,
		opts:      finalOpts,
		state:     StateRegistered,
	}
	if err := m.reg.insert(rec, pos, target); err != nil {
		re := err.(*registryError)
		return m.rejectRegistration(re.code, before)
	}

	order, _ := resolveStartupOrder(m.reg.order, m.reg.byName)
	manualRespected := positionRespected(order, m.reg.order, name, pos, target)

	m.emitSafe(EventComponentRegistered, map[string]any{"name": name})

	// A component registered after the system has already finished its
	// startup sequence never gets picked up by a future startAll call on
	// its own; if its dependencies are already satisfied, start it now
	// rather than leaving it registered-but-never-started.
	autoStartAttempted := false
	autoStartSucceeded := false
	if m.isStarted && !m.isStarting && !m.isShuttingDown && m.allDependenciesRunningLocked(rec) {
		autoStartAttempted = true
		m.mu.Unlock()
		res := m.StartComponent(name, StartOptions{})
		m.mu.Lock()
		autoStartSucceeded = res.Success
	}

	return RegistrationResult{
		Result:                  Result{Success: true},
		Registered:              true,
		RegistrationIndexBefore: before,
		RegistrationIndexAfter:  m.reg.indexOf(name),
		StartupOrder:            order,
		DuringStartup:           m.isStarting,
		AutoStartAttempted:      autoStartAttempted,
		AutoStartSucceeded:      autoStartSucceeded,
		ManualPositionRespected: manualRespected,
	}
}

func (m *Manager) rejectRegistration(code Code, before int) RegistrationResult {
	return m.rejectRegistrationWithReason(code, before, "")
}

// rejectRegistrationWithReason is rejectRegistration plus a Reason string
// for codes where the bare Code doesn't say enough to diagnose the
// rejection, e.g. which existing name already holds a duplicate instance.
func (m *Manager) rejectRegistrationWithReason(code Code, before int, reason string) RegistrationResult {
	m.emitSafe(EventComponentRegistrationRejected, map[string]any{"code": code, "reason": reason})
	return RegistrationResult{
		Result:                  Result{Success: false, Code: code, Reason: reason},
		RegistrationIndexBefore: before,
		RegistrationIndexAfter:  before,
	}
}

// positionRespected reports whether the resolver's topological order
// preserves the relative placement requested via pos/target.
func positionRespected(topoOrder, registryOrder []string, name string, pos Position, target string) bool {
	switch pos {
	case PositionBefore:
		return indexOfSlice(topoOrder, name) < indexOfSlice(topoOrder, target)
	case PositionAfter:
		return indexOfSlice(topoOrder, name) > indexOfSlice(topoOrder, target)
	case PositionStart:
		return indexOfSlice(topoOrder, name) == 0
	default:
		return indexOfSlice(topoOrder, name) == len(topoOrder)-1
	}
}

func indexOfSlice(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func (m *Manager) isDeclaredDependency(name string) bool {
	for _, n := range m.reg.order {
		for _, dep := range m.reg.byName[n].opts.Dependencies {
			if dep == name {
				return true
			}
		}
	}
	return false
}

// UnregisterComponent removes a component from the registry, stopping it
// first unless told not to. Stalled components cannot be unregistered
// with stopIfRunning; running components with running dependents require
// forceStop.
func (m *Manager) UnregisterComponent(name string, stopIfRunning bool, forceStop bool) Result {
	m.mu.Lock()
	if m.isStarting || m.isShuttingDown {
		m.mu.Unlock()
		return Result{Success: false, Code: CodeBulkOperationInProgress}
	}
	rec, ok := m.reg.get(name)
	if !ok {
		m.mu.Unlock()
		return Result{Success: false, Code: CodeComponentNotFound}
	}

	if rec.state == StateStalled && stopIfRunning {
		m.mu.Unlock()
		return Result{Success: false, Code: CodeComponentStalled}
	}

	if rec.isRunning() {
		if !stopIfRunning {
			m.mu.Unlock()
			return Result{Success: false, Code: CodeComponentRunning}
		}
		dependents := m.reg.runningDependents(name)
		if len(dependents) > 0 && !forceStop {
			m.mu.Unlock()
			return Result{Success: false, Code: CodeHasRunningDependents}
		}
		m.mu.Unlock()
		res := m.StopComponent(name, StopOptions{AllowStopWithRunningDependents: forceStop})
		if !res.Success {
			return res
		}
		m.mu.Lock()
	}

	m.reg.remove(name)
	m.mu.Unlock()
	m.emitSafe(EventComponentUnregistered, map[string]any{"name": name})
	return Result{Success: true}
}

// --- Introspection ---

func (m *Manager) HasComponent(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.has(name)
}

func (m *Manager) IsComponentRunning(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.reg.get(name)
	return ok && rec.isRunning()
}

func (m *Manager) GetComponentNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.names()
}

func (m *Manager) GetRunningComponentNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.runningNames()
}

func (m *Manager) GetComponentStatus(name string) (ComponentStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.reg.get(name)
	if !ok {
		return ComponentStatus{}, false
	}
	return rec.snapshot(), true
}

func (m *Manager) GetAllComponentStatuses() []ComponentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ComponentStatus, 0, len(m.reg.order))
	for _, n := range m.reg.order {
		out = append(out, m.reg.byName[n].snapshot())
	}
	return out
}

func (m *Manager) GetSystemState() SystemState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.systemState(m.isStarting, m.isShuttingDown)
}

func (m *Manager) GetStalledComponents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.stalledNames()
}

// GetStartupOrder returns the resolver's current topological order over
// the full registry, without mutating anything.
func (m *Manager) GetStartupOrder() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, complete := resolveStartupOrder(m.reg.order, m.reg.byName)
	if !complete {
		cyc := findCycle(m.reg.order, m.reg.byName)
		return nil, &DependencyCycleError{Cycle: cyc}
	}
	return order, nil
}

func (m *Manager) ValidateDependencies() DependencyReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return validateDependencies(m.reg.order, m.reg.byName)
}

// Status is the manager-wide status snapshot returned by GetStatus.
type Status struct {
	System         SystemState
	Counts         map[State]int
	IsStarting     bool
	IsShuttingDown bool
	IsStarted      bool
	ShutdownMethod ShutdownMethod
}

func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		System:         m.reg.systemState(m.isStarting, m.isShuttingDown),
		Counts:         m.reg.counts(),
		IsStarting:     m.isStarting,
		IsShuttingDown: m.isShuttingDown,
		IsStarted:      m.isStarted,
		ShutdownMethod: m.shutdownMethod,
	}
}

func (m *Manager) emitSafe(name string, payload any) {
	m.events.emit(name, payload)
}
