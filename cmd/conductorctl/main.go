// Command conductorctl is a small demo host for the conductor package: it
// wires a handful of toy components into a Manager, then either runs them
// to completion, prints their status, or dumps the dependency graph as
// Graphviz DOT.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lifecyclehq/conductor"
	"github.com/lifecyclehq/conductor/cmd/conductorctl/internal/demo"
)

var (
	logLevel    string
	httpAddr    string
	graphOutput string
)

func buildManager() *conductor.Manager {
	log := conductor.NewZapLogger(conductor.ZapConfig{
		Level:       logLevel,
		Development: true,
		DisableJSON: true,
	})
	return conductor.NewManager(
		conductor.WithLogger(log),
		conductor.WithPrometheus(conductor.NewPrometheusRecorder(prometheus.NewRegistry())),
	)
}

func registerDemoGraph(m *conductor.Manager) {
	db := demo.NewDatabase()
	cache := demo.NewCache()
	broker := demo.NewMessageBroker()
	api := demo.NewAPIServer()
	flaky := demo.NewFlakyWorker()
	report := demo.NewReportGenerator()

	conductor.Register(m, "database", db, conductor.Options{})
	conductor.Register(m, "cache", cache, conductor.Options{Dependencies: []string{"database"}})
	conductor.Register(m, "message-broker", broker, conductor.Options{Dependencies: []string{"database"}})
	conductor.Register(m, "api-server", api, conductor.Options{Dependencies: []string{"cache", "message-broker"}})
	conductor.Register(m, "flaky-worker", flaky, conductor.Options{Optional: true})
	conductor.Register(m, "report-generator", report, conductor.Options{Dependencies: []string{"flaky-worker"}})
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "conductorctl",
		Short: "Demo host for the conductor lifecycle orchestrator",
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	root.AddCommand(newRunCmd(), newStatusCmd(), newGraphCmd())
	return root
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the demo component graph and serve its status over HTTP until a shutdown signal arrives",
		RunE:  runRun,
	}
	cmd.Flags().StringVar(&httpAddr, "addr", "127.0.0.1:8080", "address to serve /status and /healthz on")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	m := buildManager()
	registerDemoGraph(m)
	m.AttachSignals(nil)

	res := m.StartAllComponents(conductor.StartAllOptions{})
	if !res.Success {
		fmt.Fprintf(cmd.OutOrStdout(), "startup did not fully succeed (code=%s); continuing with what came up\n", res.Code)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "started: %v\nskipped: %v\n", res.StartedComponents, res.SkippedComponents)

	srv := &http.Server{Addr: httpAddr, Handler: statusHandler(m)}

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		for {
			// A failed optional component leaves the system in "error"
			// rather than "stopped" once everything else has stopped.
			if st := m.GetSystemState(); st == conductor.SystemStopped || st == conductor.SystemError {
				break
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(200 * time.Millisecond):
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	fmt.Fprintf(cmd.OutOrStdout(), "serving status on http://%s/status (SIGINT/SIGTERM to stop)\n", httpAddr)
	return g.Wait()
}

func statusHandler(m *conductor.Manager) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.GetStatus())
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		res := m.CheckAllHealth()
		w.Header().Set("Content-Type", "application/json")
		if !res.AggregateHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(res)
	})
	return mux
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Start the demo graph, wait for it to settle, and print component statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := buildManager()
			registerDemoGraph(m)
			res := m.StartAllComponents(conductor.StartAllOptions{})
			out := cmd.OutOrStdout()
			for _, s := range m.GetAllComponentStatuses() {
				fmt.Fprintf(out, "%-20s %-10s\n", s.Name, s.State)
			}
			if !res.Success {
				fmt.Fprintf(out, "\nstart result: %s\n", res.Code)
			}
			m.StopAllComponents(conductor.StopAllOptions{})
			return nil
		},
	}
}

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Dump the demo graph's dependency structure as Graphviz DOT",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := buildManager()
			registerDemoGraph(m)
			if graphOutput == "" {
				fmt.Fprint(cmd.OutOrStdout(), m.BuildGraph().ToDOT())
				return nil
			}
			return m.WriteGraphToFile(graphOutput)
		},
	}
	cmd.Flags().StringVarP(&graphOutput, "output", "o", "", "write DOT to this file instead of stdout")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
