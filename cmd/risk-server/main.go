// Command risk-server runs the confidential pattern-risk scoring service and
// its HTTP API. In standalone mode it also runs an embedded decryption oracle
// over an in-memory queue, which is the easiest way to try the system out.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/luxfi/riskscore"
	"github.com/luxfi/riskscore/internal/queue"
	"github.com/luxfi/riskscore/internal/storage"
	"github.com/luxfi/riskscore/lattice"
	"github.com/luxfi/riskscore/oracle"
	"github.com/luxfi/riskscore/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		httpAddr    = flag.String("http", ":8080", "HTTP API address")
		metricsAddr = flag.String("metrics", ":9090", "metrics server address")
		redisAddr   = flag.String("redis", "localhost:6379", "Redis address")
		redisDB     = flag.Int("redis-db", 0, "Redis database number")
		queueName   = flag.String("queue", "default", "decryption queue name")
		storagePath = flag.String("storage", "/tmp/riskscore-storage", "ciphertext storage path")
		keyPath     = flag.String("key", "/tmp/riskscore-storage/secret.key", "lattice secret key path")
		adminHex    = flag.String("admin", "", "administrator principal (hex)")
		oracleHex   = flag.String("oracle", "", "oracle principal (hex)")
		oraclePub   = flag.String("oracle-pub", "", "oracle Ed25519 public key (hex)")
		standalone  = flag.Bool("standalone", false, "run an embedded oracle over an in-memory queue")
		clamp       = flag.Bool("clamp", false, "clamp the overall score at 100")
		normK       = flag.Uint64("norm-k", riskscore.DefaultNormK, "overall-score normalization constant")
		scaleC      = flag.Uint64("scale-c", riskscore.DefaultScaleC, "per-marker scaling constant")
	)
	flag.Parse()

	log := logrus.New()

	admin, err := riskscore.ParsePrincipalID(*adminHex)
	if err != nil {
		return fmt.Errorf("-admin: %w", err)
	}

	// Ciphertext storage shared with the oracle process.
	store, err := storage.NewFileStore(*storagePath)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	// Lattice backend: load the secret key, or generate one on first run.
	var backend *lattice.Backend
	if sk, kerr := lattice.LoadSecretKey(*keyPath); kerr == nil {
		backend, err = lattice.NewWithSecretKey(lattice.PN11QP54, store, sk)
		if err != nil {
			return fmt.Errorf("create backend: %w", err)
		}
	} else {
		log.WithField("path", *keyPath).Info("generating lattice secret key")
		backend, err = lattice.New(lattice.PN11QP54, store)
		if err != nil {
			return fmt.Errorf("create backend: %w", err)
		}
		if err := lattice.SaveSecretKey(*keyPath, backend.SecretKey()); err != nil {
			return err
		}
	}

	var (
		q          queue.Queue
		oracleID   riskscore.PrincipalID
		oracleKey  ed25519.PublicKey
		oraclePriv ed25519.PrivateKey
	)
	if *standalone {
		// Embedded oracle: generated keypair, in-memory queue.
		oracleKey, oraclePriv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("generate oracle key: %w", err)
		}
		oracleID = riskscore.PrincipalID{19: 0x02}
		q = queue.NewMemoryQueue(256)
	} else {
		oracleID, err = riskscore.ParsePrincipalID(*oracleHex)
		if err != nil {
			return fmt.Errorf("-oracle: %w", err)
		}
		oracleKey, err = parseEd25519Pub(*oraclePub)
		if err != nil {
			return fmt.Errorf("-oracle-pub: %w", err)
		}
		rq, qerr := queue.NewRedisQueue(queue.RedisConfig{Addr: *redisAddr, DB: *redisDB}, *queueName)
		if qerr != nil {
			return fmt.Errorf("create queue: %w", qerr)
		}
		q = rq
	}
	defer q.Close()

	svc, err := riskscore.New(riskscore.Config{
		Backend:      backend,
		Queue:        q,
		Admin:        admin,
		Oracle:       oracleID,
		OracleKey:    oracleKey,
		ScaleC:       *scaleC,
		NormK:        *normK,
		ClampOverall: *clamp,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *standalone {
		pool, perr := oracle.NewPool(oracle.Config{
			Queue:     q,
			Decryptor: backend,
			Principal: oracleID,
			Key:       oraclePriv,
			Sink:      svc,
			Workers:   1,
			Logger:    log,
		})
		if perr != nil {
			return fmt.Errorf("create embedded oracle: %w", perr)
		}
		if err := pool.Start(ctx); err != nil {
			return err
		}
		defer pool.Stop()
	}

	log.WithFields(logrus.Fields{
		"http":       *httpAddr,
		"metrics":    *metricsAddr,
		"standalone": *standalone,
	}).Info("risk-server starting")

	api := server.New(svc, log)
	httpSrv := &http.Server{
		Addr:         *httpAddr,
		Handler:      api.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server error")
		}
	}()

	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: promhttp.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown error")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("metrics server shutdown error")
	}

	log.Info("shutdown complete")
	return nil
}

func parseEd25519Pub(s string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("want %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
