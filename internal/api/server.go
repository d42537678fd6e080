package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/marinraf/StimuliApp-sub001/internal/events"
	"github.com/marinraf/StimuliApp-sub001/internal/orchestrator"
	"github.com/marinraf/StimuliApp-sub001/internal/resolver"
)

// RunController is the part of a run the HTTP surface drives.
type RunController interface {
	Status() orchestrator.Status
	SubmitResponse(resp orchestrator.Response) error
	Pause() error
	Resume() error
	Abort(reason string) error
	Resolution(sectionID string) (*resolver.Resolution, bool)
}

var (
	runMu sync.RWMutex
	run   RunController
)

// SetRun installs the run served by the control endpoints. A nil run
// makes them answer 503.
func SetRun(rc RunController) {
	runMu.Lock()
	run = rc
	runMu.Unlock()
}

func currentRun() RunController {
	runMu.RLock()
	defer runMu.RUnlock()
	return run
}

// readinessState tracks whether the run and its dependencies are up.
type readinessState struct {
	mu             sync.RWMutex
	runReady       bool
	mqttConnected  bool
	mqttOptional   bool
	storeConnected bool
	storeOptional  bool
}

var readiness = &readinessState{}

// SetRunReady marks whether the run has been resolved and started.
func SetRunReady(ready bool) {
	readiness.mu.Lock()
	readiness.runReady = ready
	readiness.mu.Unlock()
}

// SetMQTTStatus records the broker connection and whether it is required.
func SetMQTTStatus(connected, optional bool) {
	readiness.mu.Lock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
	readiness.mu.Unlock()
}

// SetMQTTConnected updates the broker connection only.
func SetMQTTConnected(connected bool) {
	readiness.mu.Lock()
	readiness.mqttConnected = connected
	readiness.mu.Unlock()
}

// SetStoreStatus records the run log store state and whether it is required.
func SetStoreStatus(connected, optional bool) {
	readiness.mu.Lock()
	readiness.storeConnected = connected
	readiness.storeOptional = optional
	readiness.mu.Unlock()
}

// SetStoreConnected updates the store state only.
func SetStoreConnected(connected bool) {
	readiness.mu.Lock()
	readiness.storeConnected = connected
	readiness.mu.Unlock()
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

// CheckStatus is the state of one readiness dependency.
type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

// ErrorResponse is the body of every failed control request.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{OK: false, Error: msg})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "stimuli",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func dependencyCheck(connected, optional bool) (CheckStatus, bool) {
	switch {
	case connected:
		return CheckStatus{Status: "ok", Optional: optional}, true
	case optional:
		return CheckStatus{Status: "unavailable", Optional: true}, true
	default:
		return CheckStatus{Status: "not_connected"}, false
	}
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	runReady := readiness.runReady
	mqttCheck, mqttOK := dependencyCheck(readiness.mqttConnected, readiness.mqttOptional)
	storeCheck, storeOK := dependencyCheck(readiness.storeConnected, readiness.storeOptional)
	readiness.mu.RUnlock()

	resp := ReadinessResponse{
		Ready:  true,
		Checks: map[string]CheckStatus{"mqtt": mqttCheck, "store": storeCheck},
	}
	if runReady {
		resp.Checks["run"] = CheckStatus{Status: "ok"}
	} else {
		resp.Checks["run"] = CheckStatus{Status: "not_ready"}
		resp.Ready = false
		resp.NotReadyMsg = "run not started"
	}
	if !mqttOK {
		resp.Ready = false
		resp.NotReadyMsg = "mqtt broker not connected"
	}
	if !storeOK {
		resp.Ready = false
		resp.NotReadyMsg = "run store not connected"
	}

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// eventsHandler serves the in-memory ring buffer (same filters as the
// websocket, plus ?since=), or the stored run log with ?source=store.
func eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") != "store" {
		filter, err := parseEventFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		since, _, err := parseSince(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, events.EventsSince(since, filter))
		return
	}

	store := events.GetStore()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "no run store configured")
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	rows, err := store.Query(limit)
	if err != nil {
		log.Printf("events query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func trialsHandler(w http.ResponseWriter, r *http.Request) {
	store := events.GetStore()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "no run store configured")
		return
	}
	rows, err := store.Trials()
	if err != nil {
		log.Printf("trials query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// withRun answers 503 until a run is installed.
func withRun(h func(w http.ResponseWriter, r *http.Request, rc RunController)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := currentRun()
		if rc == nil {
			writeError(w, http.StatusServiceUnavailable, "no run")
			return
		}
		h(w, r, rc)
	}
}

func statusHandler(w http.ResponseWriter, r *http.Request, rc RunController) {
	writeJSON(w, http.StatusOK, rc.Status())
}

// commandResult maps a queued command to its HTTP answer.
func commandResult(w http.ResponseWriter, err error) {
	if errors.Is(err, orchestrator.ErrQueueFull) {
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, ErrorResponse{OK: true})
}

func responseHandler(w http.ResponseWriter, r *http.Request, rc RunController) {
	var resp orchestrator.Response
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if resp.Value == nil && resp.X == nil && resp.Y == nil && resp.Text == "" {
		writeError(w, http.StatusBadRequest, "empty response")
		return
	}
	if rc.Status().State.Finished() {
		writeError(w, http.StatusConflict, "run finished")
		return
	}
	commandResult(w, rc.SubmitResponse(resp))
}

type AbortRequest struct {
	Reason string `json:"reason"`
}

func pauseHandler(w http.ResponseWriter, r *http.Request, rc RunController) {
	events.Emit("info", "operator.pause", "", nil)
	commandResult(w, rc.Pause())
}

func resumeHandler(w http.ResponseWriter, r *http.Request, rc RunController) {
	events.Emit("info", "operator.resume", "", nil)
	commandResult(w, rc.Resume())
}

func abortHandler(w http.ResponseWriter, r *http.Request, rc RunController) {
	var req AbortRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "operator"
	}
	events.Emit("warn", "operator.abort", "", map[string]interface{}{"reason": req.Reason})
	commandResult(w, rc.Abort(req.Reason))
}

// sectionTrialsHandler previews the resolved trials of one section.
func sectionTrialsHandler(w http.ResponseWriter, r *http.Request, rc RunController) {
	id := r.PathValue("id")
	res, ok := rc.Resolution(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("section %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// NewMux builds the routes of the API server.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler)
	mux.Handle("GET /metrics", metricsHandler())

	mux.HandleFunc("GET /events", RequireAnyRole(eventsHandler))
	mux.HandleFunc("GET /ws/events", RequireAnyRole(wsEventsHandler))
	mux.HandleFunc("GET /api/trials", RequireAnyRole(trialsHandler))
	mux.HandleFunc("GET /api/run/status", RequireAnyRole(withRun(statusHandler)))
	mux.HandleFunc("GET /api/sections/{id}/trials", RequireAnyRole(withRun(sectionTrialsHandler)))
	mux.HandleFunc("POST /api/run/response", RequireAnyRole(withRun(responseHandler)))
	mux.HandleFunc("POST /api/run/pause", RequireAnyRole(withRun(pauseHandler)))
	mux.HandleFunc("POST /api/run/resume", RequireAnyRole(withRun(resumeHandler)))
	mux.HandleFunc("POST /api/run/abort", RequireAdmin(withRun(abortHandler)))
	mux.HandleFunc("GET /{$}", RequireAnyRole(consoleHandler))
	return mux
}

// ListenAndServe serves the API on port until ctx is cancelled. TLS is
// used when InitTLS configured a certificate.
func ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tlsCfg, err := LoadTLSConfig()
	if err != nil {
		return err
	}
	srv.TLSConfig = tlsCfg

	errCh := make(chan error, 1)
	go func() {
		if tlsCfg != nil {
			log.Printf("API listening on %s (tls)", srv.Addr)
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		log.Printf("API listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Websocket streams end when their subscriber channel closes.
		events.CloseAllSubscribers()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown: %w", err)
		}
		return nil
	}
}
