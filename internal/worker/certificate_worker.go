package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/metrics"
	"github.com/stemsi/exstem-academy/internal/model"
)

const (
	CertificateBatchSize    = 50
	CertificateBatchTimeout = 2 * time.Second
	CertificatePollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// CertificateQueue pushes issuance requests onto the Redis list the
// CertificateWorker consumes.
type CertificateQueue struct {
	rdb *redis.Client
}

// NewCertificateQueue creates a new CertificateQueue.
func NewCertificateQueue(rdb *redis.Client) *CertificateQueue {
	return &CertificateQueue{rdb: rdb}
}

// Enqueue appends req to the issuance queue.
func (q *CertificateQueue) Enqueue(ctx context.Context, req model.CertificateRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal certificate request: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.IssueCertificatesQueue, raw).Err()
}

// CertificateWriter stores certificates.
type CertificateWriter interface {
	BulkIssue(ctx context.Context, batch []model.CertificateRequest) error
	Issue(ctx context.Context, req model.CertificateRequest) error
}

// CertificateWorker drains issue_certificates_queue in batches.
type CertificateWorker struct {
	certs   CertificateWriter
	rdb     *redis.Client
	requeue func(ctx context.Context, req model.CertificateRequest) error
	log     zerolog.Logger
}

// NewCertificateWorker creates a new CertificateWorker.
func NewCertificateWorker(certs CertificateWriter, rdb *redis.Client, log zerolog.Logger) *CertificateWorker {
	return &CertificateWorker{
		certs:   certs,
		rdb:     rdb,
		requeue: NewCertificateQueue(rdb).Enqueue,
		log:     log.With().Str("component", "certificate_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

// Start runs until ctx ends, then flushes what it holds. Call in a goroutine.
func (w *CertificateWorker) Start(ctx context.Context) {
	w.log.Info().Msg("CertificateWorker started")

	batch := make([]model.CertificateRequest, 0, CertificateBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= CertificateBatchSize || time.Since(lastFlush) >= CertificateBatchTimeout) {
			w.flush(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested, flushing remaining batch")
			w.flush(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, CertificatePollTimeout, config.WorkerKey.IssueCertificatesQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			req, err := decodeCertificateRequest(item[1])
			if err != nil {
				w.log.Error().Err(err).Str("payload", item[1]).Msg("Dropping invalid certificate request")
				continue
			}
			batch = append(batch, req)
		}
	}
}

func decodeCertificateRequest(raw string) (model.CertificateRequest, error) {
	var req model.CertificateRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return req, err
	}
	if req.AttemptID == "" || req.ExamID == "" || req.StudentID <= 0 {
		return req, errors.New("certificate request missing attempt, exam or student")
	}
	return req, nil
}

// ----------------------------------------------------------------
// Batch insert with single-row fallback
// ----------------------------------------------------------------

// flush writes the batch in one statement. When that fails each request is
// retried alone and the ones that still fail go back on the queue.
func (w *CertificateWorker) flush(ctx context.Context, batch []model.CertificateRequest) {
	if len(batch) == 0 {
		return
	}
	started := time.Now()
	defer func() { metrics.CertificateFlushDuration.Observe(time.Since(started).Seconds()) }()

	err := w.certs.BulkIssue(ctx, batch)
	if err == nil {
		metrics.CertificatesIssued.Add(float64(len(batch)))
		w.log.Debug().Int("count", len(batch)).Msg("Certificates issued")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk certificate insert failed, using fallback")

	for _, req := range batch {
		if err := w.certs.Issue(ctx, req); err != nil {
			w.log.Error().Err(err).Str("attempt_id", req.AttemptID).Msg("Issue failed, requeueing")
			if err := w.requeue(ctx, req); err != nil {
				w.log.Error().Err(err).Str("attempt_id", req.AttemptID).Msg("Requeue failed, certificate lost")
			}
			continue
		}
		metrics.CertificatesIssued.Inc()
	}
}
