// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package server exposes the scoring service over HTTP. Transport is a
// collaborator concern: nothing here adds semantics beyond principal
// authentication, JSON codecs, and error mapping.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/luxfi/riskscore"
)

// principalHeader carries the caller's hex-encoded principal id. A real
// deployment authenticates this upstream (mTLS, gateway signature); the
// server trusts the header.
const principalHeader = "X-Principal"

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "riskscore_http_requests_total",
	Help: "HTTP requests served, by endpoint and outcome.",
}, []string{"endpoint", "code"})

// Server is the HTTP front for a scoring service.
type Server struct {
	svc *riskscore.Service
	log *logrus.Logger
}

// New creates a server around svc.
func New(svc *riskscore.Service, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{svc: svc, log: log}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/submit", s.handleSubmit)
	mux.HandleFunc("/analyze", s.handleAnalyze)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/results", s.handleResults)
	mux.HandleFunc("/marker", s.handleMarkerInfo)
	mux.HandleFunc("/markers", s.handleMarkers)

	mux.HandleFunc("/decrypt/request", s.handleDecryptRequest)
	mux.HandleFunc("/decrypt/complete", s.handleDecryptComplete)

	mux.HandleFunc("/admin/marker/weight", s.handleSetWeight)
	mux.HandleFunc("/admin/marker/toggle", s.handleToggle)
	mux.HandleFunc("/admin/reviewer/authorize", s.handleAuthorizeReviewer)
	mux.HandleFunc("/admin/reviewer/revoke", s.handleRevokeReviewer)
	mux.HandleFunc("/admin/pause", s.handlePause)
	mux.HandleFunc("/admin/resume", s.handleResume)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+principalHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// caller extracts the authenticated principal from the request.
func caller(r *http.Request) (riskscore.PrincipalID, error) {
	raw := r.Header.Get(principalHeader)
	if raw == "" {
		return riskscore.PrincipalID{}, fmt.Errorf("%w: missing %s header", riskscore.ErrNotAuthorized, principalHeader)
	}
	p, err := riskscore.ParsePrincipalID(raw)
	if err != nil {
		return riskscore.PrincipalID{}, fmt.Errorf("%w: %v", riskscore.ErrInvalidInput, err)
	}
	return p, nil
}

// subjectOrCaller resolves the optional subject field, defaulting to the
// caller itself.
func subjectOrCaller(c riskscore.PrincipalID, raw string) (riskscore.PrincipalID, error) {
	if raw == "" {
		return c, nil
	}
	return riskscore.ParsePrincipalID(raw)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) writeError(w http.ResponseWriter, endpoint string, err error) {
	code := riskscore.ErrorCode(err)
	status := httpStatus(err)
	requestsTotal.WithLabelValues(endpoint, code).Inc()
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("endpoint", endpoint).Error("request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error(), Code: code})
}

func (s *Server) writeJSON(w http.ResponseWriter, endpoint string, v any) {
	requestsTotal.WithLabelValues(endpoint, "ok").Inc()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, riskscore.ErrNotAuthorized),
		errors.Is(err, riskscore.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, riskscore.ErrAlreadySubmitted),
		errors.Is(err, riskscore.ErrAlreadyAnalyzed),
		errors.Is(err, riskscore.ErrAlreadyDecrypted),
		errors.Is(err, riskscore.ErrNotAnalyzed),
		errors.Is(err, riskscore.ErrNoSample):
		return http.StatusConflict
	case errors.Is(err, riskscore.ErrInvalidInput),
		errors.Is(err, riskscore.ErrInvalidProof),
		errors.Is(err, riskscore.ErrUnknownRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "health", map[string]string{"status": "ok"})
}

type submitRequest struct {
	Sequence []uint8 `json:"sequence"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	c, err := caller(r)
	if err != nil {
		s.writeError(w, "submit", err)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "submit", err)
		return
	}
	if err := s.svc.Submit(r.Context(), c, req.Sequence); err != nil {
		s.writeError(w, "submit", err)
		return
	}
	s.writeJSON(w, "submit", map[string]bool{"submitted": true})
}

type subjectRequest struct {
	Subject string `json:"subject,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	c, err := caller(r)
	if err != nil {
		s.writeError(w, "analyze", err)
		return
	}
	var req subjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "analyze", err)
		return
	}
	subject, err := subjectOrCaller(c, req.Subject)
	if err != nil {
		s.writeError(w, "analyze", err)
		return
	}
	if err := s.svc.Analyze(r.Context(), c, subject); err != nil {
		s.writeError(w, "analyze", err)
		return
	}
	s.writeJSON(w, "analyze", map[string]bool{"analyzed": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		s.writeError(w, "status", err)
		return
	}
	subject, err := subjectOrCaller(c, r.URL.Query().Get("subject"))
	if err != nil {
		s.writeError(w, "status", err)
		return
	}
	status, err := s.svc.GetStatus(c, subject)
	if err != nil {
		s.writeError(w, "status", err)
		return
	}
	s.writeJSON(w, "status", status)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	c, err := caller(r)
	if err != nil {
		s.writeError(w, "results", err)
		return
	}
	subject, err := subjectOrCaller(c, r.URL.Query().Get("subject"))
	if err != nil {
		s.writeError(w, "results", err)
		return
	}
	results, err := s.svc.GetResults(c, subject)
	if err != nil {
		s.writeError(w, "results", err)
		return
	}
	s.writeJSON(w, "results", results)
}

func (s *Server) handleMarkerInfo(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 8)
	if err != nil {
		s.writeError(w, "marker", riskscore.ErrInvalidInput)
		return
	}
	info, err := s.svc.GetMarkerInfo(uint8(id))
	if err != nil {
		s.writeError(w, "marker", err)
		return
	}
	s.writeJSON(w, "marker", info)
}

func (s *Server) handleMarkers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "markers", s.svc.ListMarkers())
}

func (s *Server) handleDecryptRequest(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	c, err := caller(r)
	if err != nil {
		s.writeError(w, "decrypt_request", err)
		return
	}
	var req subjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "decrypt_request", err)
		return
	}
	subject, err := subjectOrCaller(c, req.Subject)
	if err != nil {
		s.writeError(w, "decrypt_request", err)
		return
	}
	requestID, err := s.svc.RequestDecryption(r.Context(), c, subject)
	if err != nil {
		s.writeError(w, "decrypt_request", err)
		return
	}
	s.writeJSON(w, "decrypt_request", map[string]string{"requestId": requestID})
}

type completeRequest struct {
	RequestID  string   `json:"requestId"`
	Plaintexts []uint64 `json:"plaintexts"`
	Proof      []byte   `json:"proof"`
}

func (s *Server) handleDecryptComplete(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "decrypt_complete", err)
		return
	}
	if err := s.svc.CompleteDecryption(r.Context(), req.RequestID, req.Plaintexts, req.Proof); err != nil {
		s.writeError(w, "decrypt_complete", err)
		return
	}
	s.writeJSON(w, "decrypt_complete", map[string]bool{"decrypted": true})
}

type weightRequest struct {
	ID     uint8 `json:"id"`
	Weight uint8 `json:"weight"`
}

func (s *Server) handleSetWeight(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	c, err := caller(r)
	if err != nil {
		s.writeError(w, "set_weight", err)
		return
	}
	var req weightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "set_weight", err)
		return
	}
	if err := s.svc.SetMarkerWeight(c, req.ID, req.Weight); err != nil {
		s.writeError(w, "set_weight", err)
		return
	}
	s.writeJSON(w, "set_weight", map[string]bool{"updated": true})
}

type toggleRequest struct {
	ID uint8 `json:"id"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	c, err := caller(r)
	if err != nil {
		s.writeError(w, "toggle", err)
		return
	}
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "toggle", err)
		return
	}
	active, err := s.svc.ToggleMarker(c, req.ID)
	if err != nil {
		s.writeError(w, "toggle", err)
		return
	}
	s.writeJSON(w, "toggle", map[string]bool{"active": active})
}

type reviewerRequest struct {
	Principal string `json:"principal"`
}

func (s *Server) handleAuthorizeReviewer(w http.ResponseWriter, r *http.Request) {
	s.handleReviewer(w, r, "authorize_reviewer", s.svc.AuthorizeReviewer)
}

func (s *Server) handleRevokeReviewer(w http.ResponseWriter, r *http.Request) {
	s.handleReviewer(w, r, "revoke_reviewer", s.svc.RevokeReviewer)
}

func (s *Server) handleReviewer(w http.ResponseWriter, r *http.Request, endpoint string, op func(caller, reviewer riskscore.PrincipalID) error) {
	if !requirePost(w, r) {
		return
	}
	c, err := caller(r)
	if err != nil {
		s.writeError(w, endpoint, err)
		return
	}
	var req reviewerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, endpoint, err)
		return
	}
	reviewer, err := riskscore.ParsePrincipalID(req.Principal)
	if err != nil {
		s.writeError(w, endpoint, err)
		return
	}
	if err := op(c, reviewer); err != nil {
		s.writeError(w, endpoint, err)
		return
	}
	s.writeJSON(w, endpoint, map[string]bool{"ok": true})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.handleGlobal(w, r, "pause", s.svc.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.handleGlobal(w, r, "resume", s.svc.Resume)
}

func (s *Server) handleGlobal(w http.ResponseWriter, r *http.Request, endpoint string, op func(caller riskscore.PrincipalID) error) {
	if !requirePost(w, r) {
		return
	}
	c, err := caller(r)
	if err != nil {
		s.writeError(w, endpoint, err)
		return
	}
	if err := op(c); err != nil {
		s.writeError(w, endpoint, err)
		return
	}
	s.writeJSON(w, endpoint, map[string]bool{"ok": true})
}
