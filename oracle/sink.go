// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSink delivers completed plaintext batches to a remote scoring service
// over its /decrypt/complete endpoint.
type HTTPSink struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSink creates a sink posting to the service at baseURL.
func NewHTTPSink(baseURL string) *HTTPSink {
	return &HTTPSink{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type completeRequest struct {
	RequestID  string   `json:"requestId"`
	Plaintexts []uint64 `json:"plaintexts"`
	Proof      []byte   `json:"proof"`
}

// CompleteDecryption implements Sink.
func (s *HTTPSink) CompleteDecryption(ctx context.Context, requestID string, plaintexts []uint64, proof []byte) error {
	body, err := json.Marshal(completeRequest{
		RequestID:  requestID,
		Plaintexts: plaintexts,
		Proof:      proof,
	})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/decrypt/complete", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("deliver batch: status %d: %s", resp.StatusCode, msg)
	}
	return nil
}
