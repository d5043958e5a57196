// Package ingest populates the per-workspace document chunk store that
// the retrieval engine reads. Documents arrive through the API, wait in
// the SQLite job queue, and are chunked and embedded here.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mkravets/agenda/internal/retrieval"
	"github.com/mkravets/agenda/internal/storage"
)

// JobType is the queue entry type the worker claims.
const JobType = "ingest_embed"

// JobPayload references the document a job embeds.
type JobPayload struct {
	DocumentID string `json:"document_id"`
}

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// ContentEmbedder generates embeddings for chunk texts.
type ContentEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Worker drains ingest_embed jobs from the queue. Each job carries its
// workspace; the worker binds it through the pool before touching any
// tenant-scoped table.
type Worker struct {
	jobs     JobStore
	pool     *storage.Pool
	embedder ContentEmbedder
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to
// 500ms.
func NewWorker(jobs JobStore, pool *storage.Pool, embedder ContentEmbedder, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		jobs:     jobs,
		pool:     pool,
		embedder: embedder,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job. Returns true if a job was
// processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.jobs.ClaimNextJob(ctx, []string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "workspace", job.TenantID, "error", err)
		if failErr := w.jobs.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.jobs.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload JobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	conn, err := w.pool.Acquire(ctx, job.TenantID)
	if err != nil {
		return fmt.Errorf("binding workspace %s: %w", job.TenantID, err)
	}
	defer conn.Release()

	doc, err := storage.GetDocument(ctx, conn, payload.DocumentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", payload.DocumentID, err)
	}

	texts := ChunkText(doc.Content)
	if len(texts) == 0 {
		w.logger.Info("document has no content to index", "document_id", doc.ID)
		return nil
	}

	vectors, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(texts), err)
	}

	now := time.Now().UTC()
	chunks := make([]retrieval.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = retrieval.Chunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Seq:        i,
			Text:       text,
			Embedding:  vectors[i],
			CreatedAt:  now,
		}
	}

	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := retrieval.Insert(ctx, tx, chunks); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %d chunks: %w", len(chunks), err)
	}

	w.logger.Info("document indexed", "document_id", doc.ID, "chunks", len(chunks))
	return nil
}
