package conductor

import (
	"reflect"
)

// Position selects where insertAt places a component within the registry
// ordering. This is a preference for registry iteration order, not the
// startup order produced by the resolver.
type Position string

const (
	PositionStart  Position = "start"
	PositionEnd    Position = "end"
	PositionBefore Position = "before"
	PositionAfter  Position = "after"
)

// registry owns component records: the ordered name list, per-name
// records, and the reverse instance-identity index used to reject
// registering the same component instance under two names.
type registry struct {
	order       []string
	byName      map[string]*record
	instanceIdx map[uintptr]string
}

func newRegistry() *registry {
	return &registry{
		byName:      make(map[string]*record),
		instanceIdx: make(map[uintptr]string),
	}
}

func instancePointer(c Component) (uintptr, bool) {
	v := reflect.ValueOf(c)
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		return v.Pointer(), true
	}
	return 0, false
}

// insert appends or positions a new record. It performs no dependency or
// cycle validation itself — callers (Manager) check cycles against the
// prospective full registry before calling insert, so that on any failure
// the registry is left completely unchanged.
func (r *registry) insert(rec *record, pos Position, target string) error {
	switch pos {
	case "", PositionEnd:
		r.order = append(r.order, rec.name)
	case PositionStart:
		r.order = append([]string{rec.name}, r.order...)
	case PositionBefore, PositionAfter:
		idx := r.indexOf(target)
		if idx < 0 {
			return &registryError{CodeTargetNotFound}
		}
		if pos == PositionAfter {
			idx++
		}
		newOrder := make([]string, 0, len(r.order)+1)
		newOrder = append(newOrder, r.order[:idx]...)
		newOrder = append(newOrder, rec.name)
		newOrder = append(newOrder, r.order[idx:]...)
		r.order = newOrder
	default:
		return &registryError{CodeInvalidPosition}
	}

	rec.registrationIndex = len(r.byName)
	r.byName[rec.name] = rec
	if ptr, ok := instancePointer(rec.component); ok {
		r.instanceIdx[ptr] = rec.name
	}
	return nil
}

type registryError struct {
	code Code
}

func (e *registryError) Error() string { return string(e.code) }

func (r *registry) indexOf(name string) int {
	for i, n := range r.order {
		if n == name {
			return i
		}
	}
	return -1
}

func (r *registry) get(name string) (*record, bool) {
	rec, ok := r.byName[name]
	return rec, ok
}

func (r *registry) has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

func (r *registry) duplicateInstanceName(c Component) (string, bool) {
	ptr, ok := instancePointer(c)
	if !ok {
		return "", false
	}
	name, exists := r.instanceIdx[ptr]
	return name, exists
}

// remove drops a record from both the ordering and the maps, breaking all
// edges the core owns (per §9's "cyclic state graphs" design note).
func (r *registry) remove(name string) {
	idx := r.indexOf(name)
	if idx < 0 {
		return
	}
	rec := r.byName[name]
	if ptr, ok := instancePointer(rec.component); ok {
		delete(r.instanceIdx, ptr)
	}
	r.order = append(r.order[:idx], r.order[idx+1:]...)
	delete(r.byName, name)
}

// names returns the registry order (insertion/position order), a stable
// copy safe for callers to retain.
func (r *registry) names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// runningNames returns names currently in StateRunning, in registry order.
func (r *registry) runningNames() []string {
	var out []string
	for _, n := range r.order {
		if rec := r.byName[n]; rec != nil && rec.isRunning() {
			out = append(out, n)
		}
	}
	return out
}

// dependents returns the names of components that declare name as a
// dependency, used by the stop path's has_running_dependents check.
func (r *registry) dependents(name string) []string {
	var out []string
	for _, n := range r.order {
		rec := r.byName[n]
		for _, dep := range rec.opts.Dependencies {
			if dep == name {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// runningDependents returns the dependents of name that are currently
// running. Per the resolved open question, only a running dependent
// blocks a stop; stalled or stopped dependents never do.
func (r *registry) runningDependents(name string) []string {
	var out []string
	for _, n := range r.dependents(name) {
		if rec := r.byName[n]; rec != nil && rec.isRunning() {
			out = append(out, n)
		}
	}
	return out
}

// counts returns the number of components in each state.
func (r *registry) counts() map[State]int {
	out := make(map[State]int)
	for _, n := range r.order {
		out[r.byName[n].state]++
	}
	return out
}

// stalledNames returns the names currently in StateStalled, registry order.
func (r *registry) stalledNames() []string {
	var out []string
	for _, n := range r.order {
		if r.byName[n].state == StateStalled {
			out = append(out, n)
		}
	}
	return out
}

// systemState derives the observable SystemState from the registry. It is
// never stored; it is recomputed on every call from gate flags + counts.
func (r *registry) systemState(isStarting, isShuttingDown bool) SystemState {
	if len(r.order) == 0 {
		return SystemNoComponents
	}
	if isShuttingDown {
		return SystemShuttingDown
	}
	if isStarting {
		return SystemStarting
	}
	c := r.counts()
	if c[StateStalled] > 0 {
		return SystemStalled
	}
	if c[StateRunning] > 0 {
		return SystemRunning
	}
	if c[StateFailed] > 0 && c[StateRunning] == 0 && c[StateStarting] == 0 {
		return SystemError
	}
	allStopped := c[StateStopped]+c[StateRegistered] == len(r.order)
	if allStopped && c[StateStopped] == len(r.order) {
		return SystemStopped
	}
	if allStopped {
		return SystemReady
	}
	return SystemReady
}
