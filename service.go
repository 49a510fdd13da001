// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package riskscore

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/luxfi/riskscore/internal/queue"
)

// Config configures a scoring service.
type Config struct {
	// Backend is the confidential-arithmetic backend. Required.
	Backend Backend

	// Queue carries decryption jobs to the oracle workers. Required.
	Queue queue.Queue

	// Markers is the marker registry; defaults to DefaultMarkers().
	Markers []MarkerConfig

	// Admin is the administrator principal. Required.
	Admin PrincipalID

	// Oracle is the decryption oracle's principal. Requested handles are
	// granted to it so the oracle can disclose them. Required.
	Oracle PrincipalID

	// OracleKey verifies the oracle's proofs over plaintext batches. Required.
	OracleKey ed25519.PublicKey

	// ScaleC is the per-marker fixed-point scaling constant (default 64).
	ScaleC uint64

	// NormK is the overall-score normalization constant (default 51).
	NormK uint64

	// ClampOverall bounds the overall score at 100. Off by default for
	// bit-exact compatibility with the reference encoding, which applies
	// no clamp after the >>8 normalization.
	ClampOverall bool

	Logger *logrus.Logger
}

// Service is the confidential pattern-risk scorer. It owns the sample
// registry, the marker registry, and the reviewer set; all state-mutating
// operations on one subject are serialized on that subject's record.
type Service struct {
	backend Backend
	queue   queue.Queue
	ops     arith
	matcher *PatternMatcher
	agg     *RiskAggregator
	markers *markerSet
	access  *accessController

	oracle    PrincipalID
	oracleKey ed25519.PublicKey
	log       *logrus.Logger

	mu       sync.Mutex
	samples  map[PrincipalID]*sample
	requests map[string]PrincipalID // request id -> subject
}

// New creates a scoring service. Marker patterns are encrypted once here and
// are immutable afterwards.
func New(cfg Config) (*Service, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrInvalidInput)
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("%w: nil queue", ErrInvalidInput)
	}
	if cfg.Admin.IsZero() {
		return nil, fmt.Errorf("%w: zero admin principal", ErrInvalidInput)
	}
	if cfg.Oracle.IsZero() {
		return nil, fmt.Errorf("%w: zero oracle principal", ErrInvalidInput)
	}
	if len(cfg.OracleKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: bad oracle key size %d", ErrInvalidInput, len(cfg.OracleKey))
	}
	if cfg.Markers == nil {
		cfg.Markers = DefaultMarkers()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	ops := arith{b: cfg.Backend}
	markers, err := newMarkerSet(ops, cfg.Markers)
	if err != nil {
		return nil, err
	}

	return &Service{
		backend:   cfg.Backend,
		queue:     cfg.Queue,
		ops:       ops,
		matcher:   newPatternMatcher(ops),
		agg:       newRiskAggregator(ops, cfg.ScaleC, cfg.NormK, cfg.ClampOverall),
		markers:   markers,
		access:    newAccessController(cfg.Admin),
		oracle:    cfg.Oracle,
		oracleKey: cfg.OracleKey,
		log:       cfg.Logger,
		samples:   make(map[PrincipalID]*sample),
		requests:  make(map[string]PrincipalID),
	}, nil
}

// sampleFor returns the subject's record, creating an empty one on first use.
func (s *Service) sampleFor(subject PrincipalID) *sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.samples[subject]
	if !ok {
		rec = &sample{state: StateEmpty}
		s.samples[subject] = rec
	}
	return rec
}

// Submit stores the subject's sequence. Submission is write-once: a second
// call fails with ErrAlreadySubmitted and leaves the stored sequence
// unchanged. Every element is encrypted atomically and granted to both the
// system and the subject.
func (s *Service) Submit(ctx context.Context, subject PrincipalID, sequence []uint8) error {
	if subject.IsZero() {
		return fmt.Errorf("%w: zero subject principal", ErrInvalidInput)
	}
	if len(sequence) != SequenceLength {
		return fmt.Errorf("%w: sequence length %d, want %d", ErrInvalidInput, len(sequence), SequenceLength)
	}

	rec := s.sampleFor(subject)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.state != StateEmpty {
		return ErrAlreadySubmitted
	}

	handles := make([]Handle, SequenceLength)
	for i, plain := range sequence {
		h, err := s.ops.encrypt(uint64(plain))
		if err != nil {
			return fmt.Errorf("encrypt sequence element %d: %w", i, err)
		}
		if err := s.backend.Grant(h, subject); err != nil {
			return fmt.Errorf("grant sequence element %d: %w", i, err)
		}
		handles[i] = h
	}

	rec.sequence = handles
	rec.submittedAt = time.Now()
	rec.state = StateSubmitted

	s.log.WithField("subject", subject).Info("sample submitted")
	return nil
}

// Analyze runs the pattern-risk analysis over the subject's sequence. It may
// run at most once per sample; the first run's scores are never overwritten.
// Every score handle is granted to the system and the subject before Analyze
// returns. Inactive markers are excluded entirely, not scored as zero.
//
// The marker registry read lock is held for the whole run, so administrative
// weight or active-flag updates never land mid-analysis.
func (s *Service) Analyze(ctx context.Context, caller, subject PrincipalID) error {
	if err := s.access.requireRead(caller, subject); err != nil {
		return err
	}

	rec := s.sampleFor(subject)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	switch {
	case rec.state == StateEmpty:
		return ErrNoSample
	case rec.state >= StateAnalyzed:
		return ErrAlreadyAnalyzed
	}

	s.markers.mu.RLock()
	defer s.markers.mu.RUnlock()
	views := s.markers.activeViews()

	perMarker := make(map[uint8]Handle, len(views))
	markerIDs := make([]uint8, 0, len(views))
	risks := make([]Handle, 0, len(views))

	for _, m := range views {
		if err := ctx.Err(); err != nil {
			return err
		}
		count, err := s.matcher.Count(rec.sequence, m.pattern)
		if err != nil {
			return fmt.Errorf("marker %d match count: %w", m.id, err)
		}
		risk, err := s.agg.MarkerRisk(count, m.weight)
		if err != nil {
			return fmt.Errorf("marker %d risk: %w", m.id, err)
		}
		if err := s.backend.Grant(risk, subject); err != nil {
			return fmt.Errorf("grant marker %d risk: %w", m.id, err)
		}
		perMarker[m.id] = risk
		markerIDs = append(markerIDs, m.id)
		risks = append(risks, risk)
	}

	overall, err := s.agg.Overall(risks)
	if err != nil {
		return fmt.Errorf("overall score: %w", err)
	}
	if err := s.backend.Grant(overall, subject); err != nil {
		return fmt.Errorf("grant overall score: %w", err)
	}

	sort.Slice(markerIDs, func(i, j int) bool { return markerIDs[i] < markerIDs[j] })

	rec.overall = overall
	rec.perMarker = perMarker
	rec.markerIDs = markerIDs
	rec.analyzedAt = time.Now()
	rec.state = StateAnalyzed

	s.log.WithFields(logrus.Fields{
		"subject": subject,
		"markers": len(markerIDs),
	}).Info("sample analyzed")
	return nil
}

// RequestDecryption grants the oracle on the sample's score handles, records
// the request id -> subject mapping, and enqueues a decryption job. The call
// returns immediately; the plaintext batch arrives later via
// CompleteDecryption. A pending request cannot be withdrawn.
func (s *Service) RequestDecryption(ctx context.Context, caller, subject PrincipalID) (string, error) {
	if err := s.access.requireRead(caller, subject); err != nil {
		return "", err
	}

	rec := s.sampleFor(subject)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	switch {
	case rec.state < StateAnalyzed:
		return "", ErrNotAnalyzed
	case rec.state > StateAnalyzed:
		return "", ErrAlreadyDecrypted
	}

	requestID := uuid.NewString()

	handles := make([]Handle, 0, 1+len(rec.markerIDs))
	handles = append(handles, rec.overall)
	for _, id := range rec.markerIDs {
		handles = append(handles, rec.perMarker[id])
	}
	for _, h := range handles {
		if err := s.backend.Grant(h, s.oracle); err != nil {
			return "", fmt.Errorf("grant oracle: %w", err)
		}
	}

	jobHandles := make([]string, len(handles))
	for i, h := range handles {
		jobHandles[i] = string(h)
	}
	job := &queue.Job{
		ID:      requestID,
		Subject: subject.String(),
		Handles: jobHandles,
	}
	if err := s.queue.Push(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue decryption job: %w", err)
	}

	s.mu.Lock()
	s.requests[requestID] = subject
	s.mu.Unlock()

	rec.requestID = requestID
	rec.requestHandles = handles
	rec.state = StateDecryptionRequested

	s.log.WithFields(logrus.Fields{
		"subject": subject,
		"request": requestID,
	}).Info("decryption requested")
	return requestID, nil
}

// CompleteDecryption delivers a plaintext batch from the oracle. The proof
// must be a valid oracle signature over the request id, the requested handle
// set, and the plaintexts in request order; anything else fails with
// ErrInvalidProof and leaves the sample at StateDecryptionRequested, so the
// oracle may retry with a corrected proof.
func (s *Service) CompleteDecryption(ctx context.Context, requestID string, plaintexts []uint64, proof []byte) error {
	s.mu.Lock()
	subject, ok := s.requests[requestID]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownRequest
	}

	rec := s.sampleFor(subject)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.state == StateDecrypted {
		return ErrAlreadyDecrypted
	}
	if rec.state != StateDecryptionRequested || rec.requestID != requestID {
		return ErrUnknownRequest
	}

	if len(plaintexts) != len(rec.requestHandles) {
		return ErrInvalidProof
	}
	if !VerifyDecryption(s.oracleKey, requestID, rec.requestHandles, plaintexts, proof) {
		return ErrInvalidProof
	}

	rec.overallPlain = plaintexts[0]
	rec.perMarkerPlain = make(map[uint8]uint64, len(rec.markerIDs))
	for i, id := range rec.markerIDs {
		rec.perMarkerPlain[id] = plaintexts[i+1]
	}
	rec.decryptedAt = time.Now()
	rec.state = StateDecrypted

	s.mu.Lock()
	delete(s.requests, requestID)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"subject": subject,
		"request": requestID,
	}).Info("decryption completed")
	return nil
}

// GetStatus returns the lifecycle view of the subject's sample.
func (s *Service) GetStatus(caller, subject PrincipalID) (Status, error) {
	if err := s.access.requireRead(caller, subject); err != nil {
		return Status{}, err
	}
	rec := s.sampleFor(subject)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.status(), nil
}

// GetResults returns the analysis outputs for the subject's sample.
func (s *Service) GetResults(caller, subject PrincipalID) (Results, error) {
	if err := s.access.requireRead(caller, subject); err != nil {
		return Results{}, err
	}
	rec := s.sampleFor(subject)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	switch {
	case rec.state == StateEmpty:
		return Results{}, ErrNoSample
	case rec.state < StateAnalyzed:
		return Results{}, ErrNotAnalyzed
	}
	return rec.results(), nil
}

// GetMarkerInfo returns a marker's weight and active flag.
func (s *Service) GetMarkerInfo(id uint8) (MarkerInfo, error) {
	return s.markers.info(id)
}

// ListMarkers returns every registered marker in registration order.
func (s *Service) ListMarkers() []MarkerInfo {
	return s.markers.infos()
}

// SetMarkerWeight updates a marker's weight. Administrator only.
func (s *Service) SetMarkerWeight(caller PrincipalID, id uint8, weight uint8) error {
	if err := s.access.requireAdmin(caller); err != nil {
		return err
	}
	if err := s.markers.setWeight(id, weight); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"marker": id, "weight": weight}).Info("marker weight updated")
	return nil
}

// ToggleMarker flips a marker's active flag and returns the new state.
// Administrator only.
func (s *Service) ToggleMarker(caller PrincipalID, id uint8) (bool, error) {
	if err := s.access.requireAdmin(caller); err != nil {
		return false, err
	}
	active, err := s.markers.toggle(id)
	if err != nil {
		return false, err
	}
	s.log.WithFields(logrus.Fields{"marker": id, "active": active}).Info("marker toggled")
	return active, nil
}

// AuthorizeReviewer grants a principal non-owner read access to all subjects'
// results. Administrator only.
func (s *Service) AuthorizeReviewer(caller, reviewer PrincipalID) error {
	if err := s.access.requireAdmin(caller); err != nil {
		return err
	}
	s.access.authorize(reviewer)
	s.log.WithField("reviewer", reviewer).Info("reviewer authorized")
	return nil
}

// RevokeReviewer removes a reviewer's read access. Administrator only.
func (s *Service) RevokeReviewer(caller, reviewer PrincipalID) error {
	if err := s.access.requireAdmin(caller); err != nil {
		return err
	}
	s.access.revoke(reviewer)
	s.log.WithField("reviewer", reviewer).Info("reviewer revoked")
	return nil
}

// Pause deactivates every marker. Administrator only. Blunt and global: the
// emergency controls have no per-marker granularity.
func (s *Service) Pause(caller PrincipalID) error {
	if err := s.access.requireAdmin(caller); err != nil {
		return err
	}
	s.markers.setAll(false)
	s.log.Warn("all markers paused")
	return nil
}

// Resume reactivates every marker. Administrator only.
func (s *Service) Resume(caller PrincipalID) error {
	if err := s.access.requireAdmin(caller); err != nil {
		return err
	}
	s.markers.setAll(true)
	s.log.Info("all markers resumed")
	return nil
}

// ErrorCode maps a service error to a stable short code, for transports.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrAlreadySubmitted):
		return "already_submitted"
	case errors.Is(err, ErrNoSample):
		return "no_sample"
	case errors.Is(err, ErrAlreadyAnalyzed):
		return "already_analyzed"
	case errors.Is(err, ErrNotAnalyzed):
		return "not_analyzed"
	case errors.Is(err, ErrAlreadyDecrypted):
		return "already_decrypted"
	case errors.Is(err, ErrInvalidProof):
		return "invalid_proof"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrUnknownRequest):
		return "unknown_request"
	default:
		return "internal"
	}
}
