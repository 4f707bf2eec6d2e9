// Package demo provides toy components exercising every corner of the
// conductor package for conductorctl's demo graph: a handful of optional
// hooks, one stubbed failure path, and one component (Cache) whose Stop
// fails unless the shutdown warning reached it first.
package demo

import (
	"fmt"
	"sync"
	"time"

	"github.com/lifecyclehq/conductor"
)

// Database simulates a connection-pooled backend with no dependencies.
type Database struct {
	mu      sync.Mutex
	healthy bool
}

func NewDatabase() *Database { return &Database{} }

func (d *Database) Start() error {
	time.Sleep(50 * time.Millisecond)
	d.mu.Lock()
	d.healthy = true
	d.mu.Unlock()
	return nil
}

func (d *Database) Stop() error {
	d.mu.Lock()
	d.healthy = false
	d.mu.Unlock()
	return nil
}

func (d *Database) HealthCheck() (conductor.HealthResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return conductor.HealthResult{Healthy: d.healthy, Message: "pool alive"}, nil
}

// Cache depends on Database and drains in-flight requests on warning.
type Cache struct {
	mu      sync.Mutex
	draining bool
}

func NewCache() *Cache { return &Cache{} }

func (c *Cache) Start() error {
	time.Sleep(20 * time.Millisecond)
	return nil
}

func (c *Cache) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.draining {
		return fmt.Errorf("stop called before warning drain")
	}
	return nil
}

func (c *Cache) OnShutdownWarning() {
	c.mu.Lock()
	c.draining = true
	c.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
}

// MessageBroker depends on Database and answers reload signals.
type MessageBroker struct {
	mu       sync.Mutex
	reloaded int
}

func NewMessageBroker() *MessageBroker { return &MessageBroker{} }

func (b *MessageBroker) Start() error { return nil }
func (b *MessageBroker) Stop() error  { return nil }

func (b *MessageBroker) OnReload() error {
	b.mu.Lock()
	b.reloaded++
	b.mu.Unlock()
	return nil
}

func (b *MessageBroker) ReloadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reloaded
}

// APIServer depends on Cache and MessageBroker and exposes OnMessage; it
// implements no force-shutdown hook.
type APIServer struct {
	mu      sync.Mutex
	serving bool
}

func NewAPIServer() *APIServer { return &APIServer{} }

func (s *APIServer) Start() error {
	s.mu.Lock()
	s.serving = true
	s.mu.Unlock()
	return nil
}

func (s *APIServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.serving {
		return nil
	}
	s.serving = false
	return nil
}

func (s *APIServer) OnMessage(payload any, from string) (any, error) {
	return fmt.Sprintf("api-server received %v from %q", payload, from), nil
}

// FlakyWorker is an optional component whose Start always fails, to
// demonstrate the optional-dependency-failure skip path.
type FlakyWorker struct{}

func NewFlakyWorker() *FlakyWorker { return &FlakyWorker{} }

func (w *FlakyWorker) Start() error { return fmt.Errorf("flaky worker: simulated startup failure") }
func (w *FlakyWorker) Stop() error  { return nil }

// ReportGenerator depends on FlakyWorker; it demonstrates the
// dependency-chain-broken skip when FlakyWorker fails to start.
type ReportGenerator struct{}

func NewReportGenerator() *ReportGenerator { return &ReportGenerator{} }

func (r *ReportGenerator) Start() error { return nil }
func (r *ReportGenerator) Stop() error  { return nil }
