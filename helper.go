package conductor

// Register is a fluent-style convenience wrapper around
// Manager.RegisterComponent: it registers component under name and
// returns component unchanged, so construction and registration can be
// chained. Callers that need the RegistrationResult (e.g. to check for a
// dependency cycle) should call RegisterComponent directly instead.
//
// Example:
//
//	db := conductor.Register(m, "database", newDatabase(cfg), conductor.Options{})
//	cache := conductor.Register(m, "cache", newCache(), conductor.Options{Dependencies: []string{"database"}})
func Register[T Component](m *Manager, name string, component T, opts Options) T {
	m.RegisterComponent(name, component, opts)
	return component
}
