// Package server exposes the experiment harness over HTTP.
//
// Routes:
//
//	GET  /api/predictors           predictor kinds and default configuration
//	POST /api/evaluate             replay the trace in the request body
//	GET  /api/runs                 stored runs, newest first (?limit=N)
//	GET  /api/runs/{id}            one stored run with its results
//	GET  /metrics                  Prometheus metrics
//
// The evaluate endpoint accepts the query parameters predictor (repeatable),
// workload, table_size, history_length and num_perceptrons.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sarchlab/bpsim/experiment"
	"github.com/sarchlab/bpsim/metrics"
	"github.com/sarchlab/bpsim/predictor"
	"github.com/sarchlab/bpsim/results"
	"github.com/sarchlab/bpsim/trace"
)

// DefaultMaxTraceBytes bounds the size of an uploaded trace.
const DefaultMaxTraceBytes = 64 << 20

// Options configures the server.
type Options struct {
	// Harness provides the default predictor and metrics settings for
	// evaluations. Zero values fall back to the package defaults; Output,
	// Logger and Collector are replaced.
	Harness experiment.HarnessConfig

	// Store, if set, records every evaluation and serves /api/runs.
	Store *results.Store

	// Collector, if set, receives evaluation results and serves /metrics.
	Collector *experiment.Collector

	// Logger receives request logs (default: discarded).
	Logger *slog.Logger

	// MaxTraceBytes limits the request body (default: DefaultMaxTraceBytes).
	MaxTraceBytes int64
}

// Server handles the HTTP API.
type Server struct {
	opts   Options
	router *mux.Router
}

// New creates a server and registers its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxTraceBytes <= 0 {
		opts.MaxTraceBytes = DefaultMaxTraceBytes
	}
	if opts.Harness.Predictor == (predictor.Config{}) {
		opts.Harness.Predictor = predictor.DefaultConfig()
	}
	if opts.Harness.Metrics == nil {
		opts.Harness.Metrics = metrics.DefaultConfig()
	}
	opts.Harness.Output = io.Discard
	opts.Harness.Logger = opts.Logger
	opts.Harness.Collector = opts.Collector

	s := &Server{opts: opts, router: mux.NewRouter()}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/predictors", s.handlePredictors).Methods(http.MethodGet)
	api.HandleFunc("/evaluate", s.handleEvaluate).Methods(http.MethodPost)
	if opts.Store != nil {
		api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
		api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	}
	if opts.Collector != nil {
		s.router.Handle("/metrics",
			promhttp.HandlerFor(opts.Collector.Registry(), promhttp.HandlerOpts{}))
	}

	s.router.Use(s.logRequests)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// PredictorsResponse is returned by GET /api/predictors.
type PredictorsResponse struct {
	Kinds  []predictor.Kind `json:"kinds"`
	Config predictor.Config `json:"config"`
}

// EvaluateResponse is returned by POST /api/evaluate.
type EvaluateResponse struct {
	RunID   string              `json:"run_id,omitempty"`
	Results []experiment.Result `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handlePredictors(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, PredictorsResponse{
		Kinds:  predictor.Kinds(),
		Config: s.opts.Harness.Predictor,
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	config := s.opts.Harness
	if err := applyQuery(&config, r.URL.Query()); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxTraceBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	events, err := trace.Parse(bytes.NewReader(body))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	name := r.URL.Query().Get("workload")
	if name == "" {
		name = "upload"
	}

	h := experiment.NewHarness(config)
	h.AddWorkload(experiment.Workload{Name: name, Events: events})

	res, err := h.RunAll(r.Context())
	if err != nil {
		if errors.Is(err, predictor.ErrInvalidConfig) {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := EvaluateResponse{Results: res}
	if s.opts.Store != nil {
		resp.RunID, err = s.opts.Store.SaveRun(r.Context(), results.Run{
			Label:     name,
			Predictor: config.Predictor,
			Metrics:   *config.Metrics,
			Results:   res,
		})
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	runs, err := s.opts.Store.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []results.Run{}
	}

	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.opts.Store.GetRun(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, results.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

// applyQuery overrides the harness configuration from query parameters.
func applyQuery(config *experiment.HarnessConfig, q url.Values) error {
	if names := q["predictor"]; len(names) > 0 {
		kinds := make([]predictor.Kind, 0, len(names))
		for _, name := range names {
			kind, err := predictor.ParseKind(name)
			if err != nil {
				return err
			}
			kinds = append(kinds, kind)
		}
		config.Kinds = kinds
	}

	for key, dst := range map[string]*int{
		"table_size":      &config.Predictor.TableSize,
		"history_length":  &config.Predictor.HistoryLength,
		"num_perceptrons": &config.Predictor.NumPerceptrons,
	} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q", key, v)
		}
		*dst = n
	}

	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.opts.Logger.Warn("failed to write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.opts.Logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
