package conductor

// Code is a stable, machine-readable result code. Callers should branch on
// Code, never on the prose in Reason.
type Code string

const (
	CodeSuccess Code = "" // zero value: operation succeeded, no code needed

	CodeDuplicateName            Code = "duplicate_name"
	CodeDuplicateInstance         Code = "duplicate_instance"
	CodeTargetNotFound            Code = "target_not_found"
	CodeInvalidPosition           Code = "invalid_position"
	CodeDependencyCycle           Code = "dependency_cycle"
	CodeShutdownInProgress        Code = "shutdown_in_progress"
	CodeStartupInProgress         Code = "startup_in_progress"
	CodeBulkOperationInProgress   Code = "bulk_operation_in_progress"
	CodeComponentNotFound         Code = "component_not_found"
	CodeComponentRunning          Code = "component_running"
	CodeComponentNotRunning       Code = "component_not_running"
	CodeComponentAlreadyRunning   Code = "component_already_running"
	CodeComponentAlreadyStarting  Code = "component_already_starting"
	CodeComponentAlreadyStopping  Code = "component_already_stopping"
	CodeComponentStalled          Code = "component_stalled"
	CodeMissingDependency         Code = "missing_dependency"
	CodeDependencyNotRunning      Code = "dependency_not_running"
	CodeHasRunningDependents      Code = "has_running_dependents"
	CodeStartTimeout              Code = "start_timeout"
	CodeStopTimeout               Code = "stop_timeout"
	CodeRestartStopFailed         Code = "restart_stop_failed"
	CodeRestartStartFailed        Code = "restart_start_failed"
	CodeUnknownError              Code = "unknown_error"
	CodeNoComponentsRegistered    Code = "no_components_registered"
	CodeAlreadyInProgress         Code = "already_in_progress"
	CodeShutdownTimeout           Code = "shutdown_timeout"

	// Signal/broadcast per-component codes.
	CodeCalled Code = "called"

	// Messaging/value/health codes.
	CodeSent         Code = "sent"
	CodeNotFound     Code = "not_found"
	CodeStopped      Code = "stopped"
	CodeStalledMsg   Code = "stalled"
	CodeNoHandler    Code = "no_handler"
	CodeTimeout      Code = "timeout"
	CodeError        Code = "error"

	// Signal/broadcast aggregate codes.
	CodeOK             Code = "ok"
	CodePartialTimeout Code = "partial_timeout"
	CodePartialError   Code = "partial_error"
	CodeDegraded       Code = "degraded"
)

// Result is the common envelope every operator-facing operation returns.
type Result struct {
	Success bool
	Reason  string
	Code    Code
	Err     error
	Status  *ComponentStatus
}

// RegistrationResult is returned by RegisterComponent / InsertComponentAt.
type RegistrationResult struct {
	Result
	Registered              bool
	RegistrationIndexBefore int
	RegistrationIndexAfter  int
	StartupOrder            []string
	DuringStartup           bool
	AutoStartAttempted      bool
	AutoStartSucceeded      bool
	ManualPositionRespected bool
}

// DependencyCycleError reports a concrete cycle found by the resolver.
type DependencyCycleError struct {
	Cycle []string
}

func (e *DependencyCycleError) Error() string {
	s := "conductor: dependency cycle detected:"
	for i, n := range e.Cycle {
		if i > 0 {
			s += " ->"
		}
		s += " " + n
	}
	return s
}
