package conductor

// StartFn runs a delegate's startup logic when wrapped by NewAdapter.
type StartFn[T any] func(delegate T) error

// StopFn runs a delegate's shutdown logic when wrapped by NewAdapter.
type StopFn[T any] func(delegate T) error

// adapter wraps an arbitrary delegate value (an *http.Server, a driver
// handle, anything that isn't itself a Component) behind the Component
// contract, so it can be registered without modifying its implementation.
type adapter[T any] struct {
	delegate T
	start    StartFn[T]
	stop     StopFn[T]
}

// NewAdapter wraps delegate in a Component that calls start/stop against
// it. Useful for third-party types that weren't written with this
// contract in mind.
//
// Example:
//
//	srv := &http.Server{Addr: ":8080"}
//	comp := conductor.NewAdapter(srv,
//	    func(s *http.Server) error { go s.ListenAndServe(); return nil },
//	    func(s *http.Server) error { return s.Shutdown(context.Background()) },
//	)
func NewAdapter[T any](delegate T, start StartFn[T], stop StopFn[T]) Component {
	return &adapter[T]{delegate: delegate, start: start, stop: stop}
}

func (a *adapter[T]) Start() error { return a.start(a.delegate) }
func (a *adapter[T]) Stop() error  { return a.stop(a.delegate) }
