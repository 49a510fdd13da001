// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package oracle runs the decryption oracle: workers pop decryption jobs
// from the queue, disclose the requested values, sign the plaintext batch,
// and deliver it back to the scoring service.
package oracle

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/luxfi/riskscore"
	"github.com/luxfi/riskscore/internal/queue"
)

var jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "riskscore_oracle_jobs_total",
	Help: "Decryption jobs processed by the oracle, by outcome.",
}, []string{"status"})

// Sink receives completed plaintext batches. The scoring service implements
// it directly for single-process deployments; HTTPSink delivers over the
// network.
type Sink interface {
	CompleteDecryption(ctx context.Context, requestID string, plaintexts []uint64, proof []byte) error
}

// Config configures an oracle worker pool.
type Config struct {
	// Queue is the decryption job queue. Required.
	Queue queue.Queue
	// Decryptor discloses requested values. Required.
	Decryptor riskscore.Decryptor
	// Principal is the oracle's identity; requested handles are granted to
	// it by the service. Required.
	Principal riskscore.PrincipalID
	// Key signs plaintext batches. Required.
	Key ed25519.PrivateKey
	// Sink receives completed batches. Required.
	Sink Sink
	// Workers is the pool size (default 1).
	Workers int

	Logger *logrus.Logger
}

// Pool is a pool of decryption workers.
type Pool struct {
	cfg     Config
	log     *logrus.Logger
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running atomic.Bool
}

// NewPool creates a worker pool.
func NewPool(cfg Config) (*Pool, error) {
	if cfg.Queue == nil || cfg.Decryptor == nil || cfg.Sink == nil {
		return nil, errors.New("oracle: queue, decryptor and sink are required")
	}
	if len(cfg.Key) != ed25519.PrivateKeySize {
		return nil, errors.New("oracle: bad signing key size")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Pool{cfg: cfg, log: cfg.Logger}, nil
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) error {
	if p.running.Load() {
		return errors.New("oracle: pool already running")
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.running.Store(true)

	p.log.WithField("workers", p.cfg.Workers).Info("oracle workers starting")
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	return nil
}

// Stop gracefully stops the pool.
func (p *Pool) Stop() error {
	if !p.running.Load() {
		return nil
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		return errors.New("oracle: shutdown timeout")
	}
	p.running.Store(false)
	return nil
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	log := p.log.WithField("worker", id)
	log.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopping")
			return
		default:
		}

		job, err := p.cfg.Queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			log.WithError(err).Warn("failed to pop job")
			time.Sleep(time.Second)
			continue
		}

		p.processJob(ctx, log, job)
	}
}

func (p *Pool) processJob(ctx context.Context, log *logrus.Entry, job *queue.Job) {
	log = log.WithField("request", job.ID)
	log.Info("processing decryption job")

	job.Status = queue.StatusProcessing
	if err := p.cfg.Queue.Update(ctx, job); err != nil {
		log.WithError(err).Warn("failed to mark job processing")
	}

	handles := make([]riskscore.Handle, len(job.Handles))
	plaintexts := make([]uint64, len(job.Handles))
	for i, raw := range job.Handles {
		handles[i] = riskscore.Handle(raw)
		v, err := p.cfg.Decryptor.Decrypt(handles[i], p.cfg.Principal)
		if err != nil {
			p.fail(ctx, log, job, fmt.Errorf("decrypt handle %d: %w", i, err))
			return
		}
		plaintexts[i] = v
	}

	proof := riskscore.SignDecryption(p.cfg.Key, job.ID, handles, plaintexts)

	if err := p.cfg.Sink.CompleteDecryption(ctx, job.ID, plaintexts, proof); err != nil {
		p.fail(ctx, log, job, fmt.Errorf("deliver batch: %w", err))
		return
	}

	job.Status = queue.StatusCompleted
	job.Plaintexts = plaintexts
	job.Proof = proof
	if err := p.cfg.Queue.Update(ctx, job); err != nil {
		log.WithError(err).Warn("failed to mark job completed")
	}

	jobsTotal.WithLabelValues("success").Inc()
	log.Info("decryption job completed")
}

func (p *Pool) fail(ctx context.Context, log *logrus.Entry, job *queue.Job, err error) {
	job.Status = queue.StatusFailed
	job.Error = err.Error()
	if uerr := p.cfg.Queue.Update(ctx, job); uerr != nil {
		log.WithError(uerr).Warn("failed to mark job failed")
	}
	jobsTotal.WithLabelValues("failure").Inc()
	log.WithError(err).Error("decryption job failed")
}
