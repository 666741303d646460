package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"vaultredact/config"
	"vaultredact/detect"
	"vaultredact/observability"
	"vaultredact/redaction"
	"vaultredact/redactor"
	"vaultredact/store"
	"vaultredact/suggest"
)

type serverDeps struct {
	cfg       *config.Config
	log       observability.Logger
	template  *detect.Template
	suggester *suggest.Client
	reports   *store.ReportStore
	storage   store.Storage
}

type server struct {
	deps serverDeps

	mu       sync.RWMutex
	pipeline *redactor.Pipeline
}

func newServer(deps serverDeps) *server {
	s := &server{deps: deps}
	s.swapTemplate(deps.template)
	return s
}

// swapTemplate rebuilds the pipeline behind the lock; in-flight requests
// finish on the detector they started with.
func (s *server) swapTemplate(tpl *detect.Template) {
	detector, err := detect.NewDetector(tpl)
	if err != nil {
		s.deps.log.Error("detector rebuild failed", observability.Error("error", err))
		return
	}
	var suggester redactor.Suggester
	if s.deps.suggester != nil {
		suggester = s.deps.suggester
	}
	p := redactor.New(detector, suggester, s.deps.log)
	s.mu.Lock()
	s.pipeline = p
	s.mu.Unlock()
}

func (s *server) currentPipeline() *redactor.Pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pipeline
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/redact", s.handleRedact).Methods(http.MethodPost)
	r.HandleFunc("/v1/reports", s.handleReports).Methods(http.MethodGet)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type redactResponse struct {
	Document string           `json:"document"`
	Output   string           `json:"output"` // base64
	Report   redaction.Report `json:"report"`
}

func (s *server) handleRedact(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.cfg.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.deps.cfg.Server.MaxUploadBytes); err != nil {
		httpError(w, http.StatusBadRequest, "multipart form required: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "file field required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		httpError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	var supplemental []string
	for _, raw := range r.MultipartForm.Value["supplemental"] {
		for _, term := range strings.Split(raw, ",") {
			if term = strings.TrimSpace(term); term != "" {
				supplemental = append(supplemental, term)
			}
		}
	}

	result, err := s.currentPipeline().Redact(r.Context(), data, redactor.Options{
		DocumentName: header.Filename,
		Supplemental: supplemental,
	})
	if err != nil {
		status, msg := classify(err)
		httpError(w, status, msg)
		return
	}

	outName := "redacted-" + header.Filename
	if err := s.deps.storage.Store(r.Context(), outName, result.Output); err != nil {
		s.deps.log.Error("store output failed", observability.Error("error", err))
	}
	if s.deps.reports != nil {
		if err := s.deps.reports.Save(r.Context(), result.Report); err != nil {
			s.deps.log.Error("save report failed", observability.Error("error", err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(redactResponse{
		Document: outName,
		Output:   base64.StdEncoding.EncodeToString(result.Output),
		Report:   result.Report,
	})
}

func (s *server) handleReports(w http.ResponseWriter, r *http.Request) {
	if s.deps.reports == nil {
		httpError(w, http.StatusNotFound, "report store not configured")
		return
	}
	reports, err := s.deps.reports.Recent(r.Context(), 50)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reports)
}

// classify maps pipeline errors to HTTP statuses.
func classify(err error) (int, string) {
	var tmplErr *redaction.TemplateValidationError
	var noMatch *redaction.NoMatchesError
	var badFormat *redaction.UnsupportedFormatError
	var verify *redaction.VerificationError
	switch {
	case errors.As(err, &tmplErr):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &badFormat):
		return http.StatusUnsupportedMediaType, err.Error()
	case errors.As(err, &noMatch):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.As(err, &verify):
		return http.StatusConflict, err.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

func httpError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
