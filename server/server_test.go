// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/riskscore"
	"github.com/luxfi/riskscore/internal/queue"
)

var (
	testAdmin   = riskscore.PrincipalID{0: 0xAD}
	testOracle  = riskscore.PrincipalID{0: 0x0E}
	testSubject = riskscore.PrincipalID{0: 0x5B}
)

type testServer struct {
	ts      *httptest.Server
	backend *riskscore.PlainBackend
	queue   *queue.MemoryQueue
	priv    ed25519.PrivateKey
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	backend := riskscore.NewPlainBackend()
	q := queue.NewMemoryQueue(16)
	svc, err := riskscore.New(riskscore.Config{
		Backend:   backend,
		Queue:     q,
		Admin:     testAdmin,
		Oracle:    testOracle,
		OracleKey: pub,
		Logger:    log,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(New(svc, log).Handler())
	t.Cleanup(func() {
		ts.Close()
		q.Close()
	})
	return &testServer{ts: ts, backend: backend, queue: q, priv: priv}
}

// do issues a request with the principal header set and decodes the JSON
// response into out when non-nil.
func (s *testServer) do(t *testing.T, method, path string, as riskscore.PrincipalID, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.ts.URL+path, reader)
	require.NoError(t, err)
	if !as.IsZero() {
		req.Header.Set("X-Principal", as.String())
	}

	resp, err := s.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func allA() []uint8 {
	seq := make([]uint8, riskscore.SequenceLength)
	for i := range seq {
		seq[i] = 'A'
	}
	return seq
}

func TestServerHealth(t *testing.T) {
	s := newTestServer(t)
	var out map[string]string
	code := s.do(t, http.MethodGet, "/health", riskscore.PrincipalID{}, nil, &out)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", out["status"])
}

func TestServerLifecycle(t *testing.T) {
	s := newTestServer(t)

	// Submit.
	code := s.do(t, http.MethodPost, "/submit", testSubject, map[string]any{"sequence": allA()}, nil)
	require.Equal(t, http.StatusOK, code)

	// Resubmission conflicts.
	var errOut map[string]string
	code = s.do(t, http.MethodPost, "/submit", testSubject, map[string]any{"sequence": allA()}, &errOut)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "already_submitted", errOut["code"])

	// Analyze.
	code = s.do(t, http.MethodPost, "/analyze", testSubject, map[string]any{}, nil)
	require.Equal(t, http.StatusOK, code)

	var status riskscore.Status
	code = s.do(t, http.MethodGet, "/status", testSubject, nil, &status)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, riskscore.StateAnalyzed, status.State)

	var results riskscore.Results
	code = s.do(t, http.MethodGet, "/results", testSubject, nil, &results)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, results.PerMarker, 5)
	require.False(t, results.Decrypted)

	// Request decryption.
	var reqOut map[string]string
	code = s.do(t, http.MethodPost, "/decrypt/request", testSubject, map[string]any{}, &reqOut)
	require.Equal(t, http.StatusOK, code)
	requestID := reqOut["requestId"]
	require.NotEmpty(t, requestID)

	// Play the oracle: pop the job, decrypt, sign, deliver.
	ctx := context.Background()
	job, err := s.queue.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, requestID, job.ID)

	handles := make([]riskscore.Handle, len(job.Handles))
	plaintexts := make([]uint64, len(job.Handles))
	for i, raw := range job.Handles {
		handles[i] = riskscore.Handle(raw)
		plaintexts[i], err = s.backend.Decrypt(handles[i], testOracle)
		require.NoError(t, err)
	}
	proof := riskscore.SignDecryption(s.priv, requestID, handles, plaintexts)

	code = s.do(t, http.MethodPost, "/decrypt/complete", riskscore.PrincipalID{}, map[string]any{
		"requestId":  requestID,
		"plaintexts": plaintexts,
		"proof":      proof,
	}, nil)
	require.Equal(t, http.StatusOK, code)

	code = s.do(t, http.MethodGet, "/results", testSubject, nil, &results)
	require.Equal(t, http.StatusOK, code)
	require.True(t, results.Decrypted)
	require.Equal(t, uint64(79), results.OverallPlain)
}

func TestServerAuth(t *testing.T) {
	s := newTestServer(t)

	// Missing principal header.
	code := s.do(t, http.MethodPost, "/submit", riskscore.PrincipalID{}, map[string]any{"sequence": allA()}, nil)
	require.Equal(t, http.StatusForbidden, code)

	// Strangers cannot read another subject.
	require.Equal(t, http.StatusOK,
		s.do(t, http.MethodPost, "/submit", testSubject, map[string]any{"sequence": allA()}, nil))

	stranger := riskscore.PrincipalID{0: 0x99}
	var errOut map[string]string
	code = s.do(t, http.MethodGet, "/status?subject="+testSubject.String(), stranger, nil, &errOut)
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "not_authorized", errOut["code"])

	// The administrator can.
	code = s.do(t, http.MethodGet, "/status?subject="+testSubject.String(), testAdmin, nil, nil)
	require.Equal(t, http.StatusOK, code)
}

func TestServerAdminEndpoints(t *testing.T) {
	s := newTestServer(t)

	// Non-admin rejected.
	code := s.do(t, http.MethodPost, "/admin/marker/weight", testSubject, weightRequest{ID: 1, Weight: 40}, nil)
	require.Equal(t, http.StatusForbidden, code)

	code = s.do(t, http.MethodPost, "/admin/marker/weight", testAdmin, weightRequest{ID: 1, Weight: 40}, nil)
	require.Equal(t, http.StatusOK, code)

	var info riskscore.MarkerInfo
	code = s.do(t, http.MethodGet, "/marker?id=1", riskscore.PrincipalID{}, nil, &info)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, uint8(40), info.Weight)

	var all []riskscore.MarkerInfo
	code = s.do(t, http.MethodGet, "/markers", riskscore.PrincipalID{}, nil, &all)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, all, 5)
	require.Equal(t, uint8(40), all[0].Weight)

	var toggleOut map[string]bool
	code = s.do(t, http.MethodPost, "/admin/marker/toggle", testAdmin, toggleRequest{ID: 1}, &toggleOut)
	require.Equal(t, http.StatusOK, code)
	require.False(t, toggleOut["active"])

	reviewer := riskscore.PrincipalID{0: 0xEE}
	code = s.do(t, http.MethodPost, "/admin/reviewer/authorize", testAdmin,
		reviewerRequest{Principal: reviewer.String()}, nil)
	require.Equal(t, http.StatusOK, code)

	require.Equal(t, http.StatusOK,
		s.do(t, http.MethodPost, "/submit", testSubject, map[string]any{"sequence": allA()}, nil))
	require.Equal(t, http.StatusOK,
		s.do(t, http.MethodGet, "/status?subject="+testSubject.String(), reviewer, nil, nil))

	code = s.do(t, http.MethodPost, "/admin/reviewer/revoke", testAdmin,
		reviewerRequest{Principal: reviewer.String()}, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, http.StatusForbidden,
		s.do(t, http.MethodGet, "/status?subject="+testSubject.String(), reviewer, nil, nil))

	code = s.do(t, http.MethodPost, "/admin/pause", testAdmin, nil, nil)
	require.Equal(t, http.StatusOK, code)
	code = s.do(t, http.MethodPost, "/admin/resume", testAdmin, nil, nil)
	require.Equal(t, http.StatusOK, code)
}

func TestServerMethodAndInputValidation(t *testing.T) {
	s := newTestServer(t)

	// Mutations require POST.
	code := s.do(t, http.MethodGet, "/submit", testSubject, nil, nil)
	require.Equal(t, http.StatusMethodNotAllowed, code)

	// Bad marker id.
	code = s.do(t, http.MethodGet, "/marker?id=bogus", riskscore.PrincipalID{}, nil, nil)
	require.Equal(t, http.StatusBadRequest, code)

	// Unknown marker id.
	code = s.do(t, http.MethodGet, "/marker?id=77", riskscore.PrincipalID{}, nil, nil)
	require.Equal(t, http.StatusBadRequest, code)

	// Wrong sequence length.
	var errOut map[string]string
	code = s.do(t, http.MethodPost, "/submit", testSubject, map[string]any{"sequence": []uint8{1, 2}}, &errOut)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "invalid_input", errOut["code"])

	// Unknown decryption request.
	code = s.do(t, http.MethodPost, "/decrypt/complete", riskscore.PrincipalID{}, map[string]any{
		"requestId": "nope", "plaintexts": []uint64{1}, "proof": []byte{1},
	}, &errOut)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "unknown_request", errOut["code"])
}

func TestServerCORS(t *testing.T) {
	s := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, s.ts.URL+"/submit", nil)
	require.NoError(t, err)
	resp, err := s.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
