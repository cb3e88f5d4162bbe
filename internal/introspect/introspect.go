// Package introspect implements the HTTP debug/dump surface
// (SPEC_FULL.md §4.15): GET /dump/topology, /dump/runqueue/{cpu},
// /dump/teams, /dump/load, and /metrics. This realizes spec.md §6's
// "console-command registration API for the dumpers" as an HTTP
// surface, the only form a userspace collaborator can expose. Routing
// is grounded on github.com/gorilla/mux, used for the same kind of
// debug/admin REST routing in the go-coffee example repo; the dump
// handlers themselves are grounded on the teacher's
// pkg/cri/resource-manager/visualizer dump surface.
package introspect

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tonestone57/eevdf-scheduler/internal/metrics"
)

// TopologyDumper returns a JSON-serializable snapshot of the static
// topology.
type TopologyDumper interface {
	DumpTopology() interface{}
}

// RunQueueDumper returns a JSON-serializable snapshot of one CPU's run
// queue. ok is false if the CPU ID is unknown.
type RunQueueDumper interface {
	DumpRunQueue(cpu int) (interface{}, bool)
}

// TeamsDumper returns a JSON-serializable snapshot of every team.
type TeamsDumper interface {
	DumpTeams() interface{}
}

// LoadDumper returns a JSON-serializable snapshot of per-CPU/core load.
type LoadDumper interface {
	DumpLoad() interface{}
}

// Server wires the dump handlers and the metrics handler onto a
// gorilla/mux router.
type Server struct {
	router   *mux.Router
	topology TopologyDumper
	runqueue RunQueueDumper
	teams    TeamsDumper
	load     LoadDumper
}

// NewServer builds the introspection HTTP server. Any dumper may be
// nil; its route responds 503 until wired.
func NewServer(collector *metrics.Collector, topology TopologyDumper, runqueue RunQueueDumper, teams TeamsDumper, load LoadDumper) *Server {
	s := &Server{router: mux.NewRouter(), topology: topology, runqueue: runqueue, teams: teams, load: load}

	s.router.HandleFunc("/dump/topology", s.handleTopology).Methods(http.MethodGet)
	s.router.HandleFunc("/dump/runqueue/{cpu}", s.handleRunQueue).Methods(http.MethodGet)
	s.router.HandleFunc("/dump/teams", s.handleTeams).Methods(http.MethodGet)
	s.router.HandleFunc("/dump/load", s.handleLoad).Methods(http.MethodGet)
	if collector != nil {
		s.router.Handle("/metrics", collector.Handler()).Methods(http.MethodGet)
	}
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	if s.topology == nil {
		http.Error(w, "topology dumper not wired", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.topology.DumpTopology())
}

func (s *Server) handleRunQueue(w http.ResponseWriter, r *http.Request) {
	if s.runqueue == nil {
		http.Error(w, "run queue dumper not wired", http.StatusServiceUnavailable)
		return
	}
	cpuStr := mux.Vars(r)["cpu"]
	cpu, err := strconv.Atoi(cpuStr)
	if err != nil {
		http.Error(w, "invalid cpu id", http.StatusBadRequest)
		return
	}
	dump, ok := s.runqueue.DumpRunQueue(cpu)
	if !ok {
		http.Error(w, "unknown cpu id", http.StatusNotFound)
		return
	}
	writeJSON(w, dump)
}

func (s *Server) handleTeams(w http.ResponseWriter, r *http.Request) {
	if s.teams == nil {
		http.Error(w, "teams dumper not wired", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.teams.DumpTeams())
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if s.load == nil {
		http.Error(w, "load dumper not wired", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.load.DumpLoad())
}
