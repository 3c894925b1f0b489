package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kbyrne/coolwatch/internal/models"
	"github.com/kbyrne/coolwatch/internal/store"
)

// Version is reported by the health endpoint.
const Version = "0.3.0"

// Pinger reports whether the local database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server provides the HTTP API for coolwatch.
type Server struct {
	service *Service
	pinger  Pinger
	addr    string
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, pinger Pinger, addr string) *Server {
	return &Server{
		service: service,
		pinger:  pinger,
		addr:    addr,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Session endpoints
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/", s.handleSessionByID)

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("Starting coolwatch API on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleSessions handles POST /sessions and GET /sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.startSession(w, r)
	case http.MethodGet:
		s.listSessions(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionByID handles /sessions/{id}/*
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}

	sessionID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getSession(w, r, sessionID)
	case action == "close" && r.Method == http.MethodPost:
		s.closeSession(w, r, sessionID)
	case action == "discard" && r.Method == http.MethodPost:
		s.discardSession(w, r, sessionID)
	case action == "audit" && r.Method == http.MethodGet:
		s.getSessionAudit(w, r, sessionID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// --- Session Handlers ---

type startSessionRequest struct {
	ItemName  string `json:"item_name"`
	Category  string `json:"category"`
	StaffName string `json:"staff_name"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	sess, err := s.service.StartCooling(req.ItemName, req.Category, req.StaffName)
	if err != nil {
		status := http.StatusInternalServerError
		if req.ItemName == "" {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sess)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	sessions := s.service.ListSessions(status)
	if sessions == nil {
		sessions = []models.CoolingSession{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := s.service.GetSession(sessionID)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess)
}

type closeSessionRequest struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	// The temperature is optional and the voice handler sends no body at all,
	// so an empty body is a valid close without a probe reading.
	var req closeSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	sess, err := s.service.CloseCooling(sessionID, req.Temperature)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess)
}

func (s *Server) discardSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := s.service.DiscardCooling(sessionID)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess)
}

func (s *Server) getSessionAudit(w http.ResponseWriter, r *http.Request, sessionID string) {
	entries, err := s.service.SessionAudit(sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// writeSessionError maps store sentinels onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyTerminal):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}

// --- Health ---

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.pinger.Ping(ctx); err != nil {
		health.OK = false
		health.DB = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if !health.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}
