// Command risk-oracle runs the decryption oracle worker pool. It shares the
// lattice secret key and ciphertext storage with the scoring service, pops
// decryption jobs from Redis, and delivers signed plaintext batches back to
// the service over HTTP.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/luxfi/riskscore"
	"github.com/luxfi/riskscore/internal/queue"
	"github.com/luxfi/riskscore/internal/storage"
	"github.com/luxfi/riskscore/lattice"
	"github.com/luxfi/riskscore/oracle"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		redisAddr    = flag.String("redis", "localhost:6379", "Redis address")
		redisDB      = flag.Int("redis-db", 0, "Redis database number")
		queueName    = flag.String("queue", "default", "decryption queue name")
		storagePath  = flag.String("storage", "/tmp/riskscore-storage", "ciphertext storage path")
		keyPath      = flag.String("key", "/tmp/riskscore-storage/secret.key", "lattice secret key path")
		signKeyPath  = flag.String("sign-key", "", "Ed25519 seed file (hex); generated if missing")
		serverURL    = flag.String("server", "http://localhost:8080", "scoring service base URL")
		principalHex = flag.String("principal", "", "oracle principal (hex)")
		workers      = flag.Int("workers", 2, "worker pool size")
		metricsAddr  = flag.String("metrics", ":9091", "metrics server address")
	)
	flag.Parse()

	log := logrus.New()

	principal, err := riskscore.ParsePrincipalID(*principalHex)
	if err != nil {
		return fmt.Errorf("-principal: %w", err)
	}

	signKey, err := loadSigningKey(*signKeyPath, log)
	if err != nil {
		return fmt.Errorf("-sign-key: %w", err)
	}
	log.WithField("public-key", hex.EncodeToString(signKey.Public().(ed25519.PublicKey))).
		Info("oracle signing key loaded")

	store, err := storage.NewFileStore(*storagePath)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	sk, err := lattice.LoadSecretKey(*keyPath)
	if err != nil {
		return fmt.Errorf("load secret key: %w", err)
	}
	dec, err := lattice.NewOracleDecryptor(lattice.PN11QP54, store, sk)
	if err != nil {
		return fmt.Errorf("create decryptor: %w", err)
	}

	q, err := queue.NewRedisQueue(queue.RedisConfig{Addr: *redisAddr, DB: *redisDB}, *queueName)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}
	defer q.Close()

	pool, err := oracle.NewPool(oracle.Config{
		Queue:     q,
		Decryptor: dec,
		Principal: principal,
		Key:       signKey,
		Sink:      oracle.NewHTTPSink(*serverURL),
		Workers:   *workers,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		return err
	}

	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: promhttp.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server error")
		}
	}()

	log.WithFields(logrus.Fields{
		"queue":   *queueName,
		"workers": *workers,
		"server":  *serverURL,
	}).Info("risk-oracle started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("shutting down")

	if err := pool.Stop(); err != nil {
		log.WithError(err).Warn("pool shutdown error")
	}
	if err := metricsSrv.Close(); err != nil {
		log.WithError(err).Warn("metrics server close error")
	}

	log.Info("shutdown complete")
	return nil
}

// loadSigningKey reads an Ed25519 seed from a hex file, generating and
// persisting a fresh one if the file does not exist yet.
func loadSigningKey(path string, log *logrus.Logger) (ed25519.PrivateKey, error) {
	if path == "" {
		return nil, fmt.Errorf("signing key path is required")
	}
	data, err := os.ReadFile(path)
	if err == nil {
		seed, derr := hex.DecodeString(strings.TrimSpace(string(data)))
		if derr != nil {
			return nil, fmt.Errorf("decode seed: %w", derr)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("want %d-byte seed, got %d", ed25519.SeedSize, len(seed))
		}
		return ed25519.NewKeyFromSeed(seed), nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	log.WithField("path", path).Info("generating oracle signing key")
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	seed := hex.EncodeToString(priv.Seed())
	if err := os.WriteFile(path, []byte(seed+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("write seed: %w", err)
	}
	return priv, nil
}
