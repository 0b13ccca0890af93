// Package control exposes the supervisor's start/stop/status contract and
// the stream controls over a local HTTP API. The windowed operator UI is an
// external consumer of this surface.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vcamd/vcamd/internal/metrics"
	"github.com/vcamd/vcamd/internal/producer"
	"github.com/vcamd/vcamd/internal/scheduler"
	"github.com/vcamd/vcamd/internal/supervisor"
	"github.com/vcamd/vcamd/pkg/logging"
)

// Server wires the operator HTTP surface.
type Server struct {
	sup     *supervisor.Supervisor
	sched   *scheduler.Scheduler
	metrics *metrics.Metrics
	launch  producer.LaunchConfig
	log     *logging.Logger

	http *http.Server
}

// New creates the control server. launch is the configured producer snapshot
// used when a start request carries no overrides.
func New(sup *supervisor.Supervisor, sched *scheduler.Scheduler, m *metrics.Metrics, launch producer.LaunchConfig, log *logging.Logger) *Server {
	s := &Server{
		sup:     sup,
		sched:   sched,
		metrics: m,
		launch:  launch,
		log:     log,
	}
	// Built here, not in ListenAndServe, so Shutdown from another goroutine
	// never observes a half-assigned server.
	s.http = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/producer/start", s.handleProducerStart).Methods("POST")
	api.HandleFunc("/producer/stop", s.handleProducerStop).Methods("POST")
	api.HandleFunc("/producer/status", s.handleProducerStatus).Methods("GET")
	api.HandleFunc("/producer/logs", s.handleProducerLogs).Methods("GET")
	api.HandleFunc("/producer/events", s.handleProducerEvents).Methods("GET")
	api.HandleFunc("/stream/start", s.handleStreamStart).Methods("POST")
	api.HandleFunc("/stream/stop", s.handleStreamStop).Methods("POST")

	return r
}

// ListenAndServe starts serving on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info("control API listening", map[string]interface{}{"addr": addr})
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server. Safe before or during ListenAndServe.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// StartRequest optionally overrides parts of the configured producer launch.
type StartRequest struct {
	ListenPort *int    `json:"listen_port,omitempty"`
	StreamKey  *string `json:"stream_key,omitempty"`
	Verbose    *bool   `json:"verbose,omitempty"`
}

func (s *Server) handleProducerStart(w http.ResponseWriter, r *http.Request) {
	cfg := s.launch

	if r.Body != nil && r.ContentLength != 0 {
		var req StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.ListenPort != nil {
			cfg.ListenPort = *req.ListenPort
		}
		if req.StreamKey != nil {
			cfg.StreamKey = *req.StreamKey
		}
		if req.Verbose != nil {
			cfg.Verbose = *req.Verbose
		}
	}

	if err := s.sup.Start(cfg); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, supervisor.ErrAlreadyRunning) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sup.Status())
}

func (s *Server) handleProducerStop(w http.ResponseWriter, r *http.Request) {
	if err := s.sup.Stop(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, supervisor.ErrNotRunning) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	// Stop is asynchronous; the snapshot reports the stopping stage and the
	// caller observes the final state through status polling or events.
	writeJSON(w, http.StatusAccepted, s.sup.Status())
}

func (s *Server) handleProducerStatus(w http.ResponseWriter, r *http.Request) {
	type statusResponse struct {
		supervisor.Snapshot
		StreamActive bool `json:"stream_active"`
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Snapshot:     s.sup.Status(),
		StreamActive: s.sched.Running(),
	})
}

func (s *Server) handleProducerLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lines": s.sup.OutputLines(),
	})
}

func (s *Server) handleProducerEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": s.sup.Events(),
	})
}

func (s *Server) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.StartStream(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stream_active": true})
}

func (s *Server) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	s.sched.StopStream()
	writeJSON(w, http.StatusOK, map[string]bool{"stream_active": false})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
