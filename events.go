package conductor

import (
	"sync"

	"github.com/google/uuid"
)

// Event names published by the orchestrator. Handler panics on any of
// these must never reach the engine (§5, §7): every dispatch goes through
// emitSafe.
const (
	EventComponentRegistered           = "component:registered"
	EventComponentRegistrationRejected = "component:registration-rejected"
	EventComponentUnregistered         = "component:unregistered"
	EventComponentStarting             = "component:starting"
	EventComponentStarted              = "component:started"
	EventComponentStartFailed          = "component:start-failed"
	EventComponentStartSkipped         = "component:start-skipped"
	EventComponentStartTimeout         = "component:start-timeout"
	EventComponentStartFailedOptional  = "component:start-failed-optional"
	EventComponentStopping             = "component:stopping"
	EventComponentStopped              = "component:stopped"
	EventComponentStopTimeout          = "component:stop-timeout"
	EventComponentStalled              = "component:stalled"
	EventComponentShutdownWarning          = "component:shutdown-warning"
	EventComponentShutdownWarningCompleted = "component:shutdown-warning-completed"
	EventComponentShutdownWarningTimeout   = "component:shutdown-warning-timeout"
	EventComponentShutdownForce            = "component:shutdown-force"
	EventComponentShutdownForceCompleted   = "component:shutdown-force-completed"
	EventComponentShutdownForceTimeout     = "component:shutdown-force-timeout"
	EventComponentReloadStarted   = "component:reload-started"
	EventComponentReloadCompleted = "component:reload-completed"
	EventComponentReloadFailed    = "component:reload-failed"
	EventComponentInfoStarted     = "component:info-started"
	EventComponentInfoCompleted   = "component:info-completed"
	EventComponentInfoFailed      = "component:info-failed"
	EventComponentDebugStarted    = "component:debug-started"
	EventComponentDebugCompleted  = "component:debug-completed"
	EventComponentDebugFailed     = "component:debug-failed"
	EventComponentMessageSent        = "component:message-sent"
	EventComponentMessageFailed      = "component:message-failed"
	EventComponentBroadcastStarted   = "component:broadcast-started"
	EventComponentBroadcastCompleted = "component:broadcast-completed"
	EventComponentValueRequested = "component:value-requested"
	EventComponentValueReturned  = "component:value-returned"
	EventComponentStartupRollback = "component:startup-rollback"

	EventManagerStarted            = "lifecycle-manager:started"
	EventManagerShutdownInitiated  = "lifecycle-manager:shutdown-initiated"
	EventManagerShutdownWarning    = "lifecycle-manager:shutdown-warning"
	EventManagerShutdownCompleted  = "lifecycle-manager:shutdown-completed"
	EventManagerShutdownTimeout    = "lifecycle-manager:shutdown-timeout"
	EventManagerSignalsAttached    = "lifecycle-manager:signals-attached"
	EventManagerSignalsDetached    = "lifecycle-manager:signals-detached"

	EventSignalShutdown = "signal:shutdown"
	EventSignalReload    = "signal:reload"
	EventSignalInfo      = "signal:info"
	EventSignalDebug     = "signal:debug"
)

// Envelope wraps every published event with a correlation ID so a
// downstream aggregator can tie, e.g., a shutdown-warning to the
// shutdown-force that follows it.
type Envelope struct {
	ID      string
	Name    string
	Payload any
}

// EventTransport is the external, swappable sink observability events are
// additionally forwarded to — "the event-emitter transport" §1 explicitly
// keeps out of the core's concerns. Nil is a valid, no-op transport.
type EventTransport interface {
	Publish(Envelope)
}

// listener is a subscribed callback, optionally one-shot.
type listener struct {
	fn     func(any)
	once   bool
}

// eventEmitter is the in-core pub/sub backing on/once/hasListener/
// listenerCount. It is keyed by event name rather than by reflected
// parameter type (the teacher's boot-go-boot/eventbus.go keys by Go type
// via reflection; here the payload shapes are already named by the event
// string, so that indirection is unnecessary).
type eventEmitter struct {
	mu        sync.Mutex
	listeners map[string][]*listener
	transport EventTransport
	log       Logger
}

func newEventEmitter(transport EventTransport, log Logger) *eventEmitter {
	return &eventEmitter{
		listeners: make(map[string][]*listener),
		transport: transport,
		log:       log,
	}
}

func (e *eventEmitter) on(name string, fn func(any)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[name] = append(e.listeners[name], &listener{fn: fn})
}

func (e *eventEmitter) once(name string, fn func(any)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[name] = append(e.listeners[name], &listener{fn: fn, once: true})
}

func (e *eventEmitter) hasListener(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[name]) > 0
}

func (e *eventEmitter) listenerCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[name])
}

// emit is the safe-emit wrapper: listener panics are logged and
// swallowed, never propagated into the engine (§5, §7). It also forwards
// the event to the configured EventTransport, if any.
func (e *eventEmitter) emit(name string, payload any) {
	e.mu.Lock()
	subs := append([]*listener{}, e.listeners[name]...)
	var remaining []*listener
	for _, l := range e.listeners[name] {
		if !l.once {
			remaining = append(remaining, l)
		}
	}
	e.listeners[name] = remaining
	e.mu.Unlock()

	for _, l := range subs {
		e.safeCall(name, l.fn, payload)
	}

	if e.transport != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Errorf("event transport panicked publishing %s: %v", name, r)
				}
			}()
			e.transport.Publish(Envelope{ID: uuid.NewString(), Name: name, Payload: payload})
		}()
	}
}

func (e *eventEmitter) safeCall(name string, fn func(any), payload any) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("event listener for %s panicked: %v", name, r)
		}
	}()
	fn(payload)
}
