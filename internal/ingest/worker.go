// Package ingest runs the background worker that chunks and embeds
// uploaded policy documents.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/leaveflow/internal/policy"
	"github.com/kalambet/leaveflow/internal/retrieval"
	"github.com/kalambet/leaveflow/internal/storage"
)

// JobType is the queue type for policy embedding jobs.
const JobType = "policy_embed"

// JobStore abstracts the job queue and policy lookups.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetPolicy(id int64) (storage.Policy, error)
	UpdatePolicyEmbeddingStatus(id int64, status storage.EmbeddingStatus) error
}

// ContentEmbedder generates embeddings for text.
type ContentEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorInserter inserts chunk records into the vector store.
type VectorInserter interface {
	Insert(records []retrieval.Record) error
	DeleteByPolicy(policyID int64) error
}

// Worker processes policy_embed jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	embedder ContentEmbedder
	vectors  VectorInserter
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder ContentEmbedder, vectors VectorInserter, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
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

// RunOnce claims and processes a single policy_embed job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// EmbedPayload is the payload for a policy_embed job.
type EmbedPayload struct {
	PolicyID int64 `json:"policy_id"`
}

// NewEmbedJob builds the queue job for embedding a policy document.
func NewEmbedJob(policyID int64) (storage.Job, error) {
	payload, err := json.Marshal(EmbedPayload{PolicyID: policyID})
	if err != nil {
		return storage.Job{}, fmt.Errorf("marshaling payload: %w", err)
	}
	return storage.Job{
		ID:          uuid.New().String(),
		Type:        JobType,
		PayloadJSON: string(payload),
	}, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload EmbedPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetPolicy(payload.PolicyID)
	if err != nil {
		return fmt.Errorf("loading policy %d: %w", payload.PolicyID, err)
	}

	if err := w.store.UpdatePolicyEmbeddingStatus(doc.ID, storage.EmbeddingProcessing); err != nil {
		return fmt.Errorf("marking policy processing: %w", err)
	}

	if err := w.embedPolicy(ctx, doc); err != nil {
		if statusErr := w.store.UpdatePolicyEmbeddingStatus(doc.ID, storage.EmbeddingFailed); statusErr != nil {
			w.logger.Error("failed to mark policy failed", "policy_id", doc.ID, "error", statusErr)
		}
		return err
	}

	if err := w.store.UpdatePolicyEmbeddingStatus(doc.ID, storage.EmbeddingCompleted); err != nil {
		return fmt.Errorf("marking policy completed: %w", err)
	}
	return nil
}

func (w *Worker) embedPolicy(ctx context.Context, doc storage.Policy) error {
	chunks := policy.SplitChunks(doc.ExtractedText)
	if len(chunks) == 0 {
		return fmt.Errorf("policy %d has no extractable chunks", doc.ID)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vecs, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}

	// Re-embedding replaces any chunks from a previous attempt.
	if err := w.vectors.DeleteByPolicy(doc.ID); err != nil {
		return fmt.Errorf("clearing old chunks: %w", err)
	}

	records := make([]retrieval.Record, len(chunks))
	now := time.Now().UTC()
	for i, c := range chunks {
		records[i] = retrieval.Record{
			ID:           uuid.New().String(),
			PolicyID:     doc.ID,
			ChunkIndex:   c.Index,
			SectionTitle: c.SectionTitle,
			Content:      c.Content,
			Embedding:    vecs[i],
			CreatedAt:    now,
		}
	}

	if err := w.vectors.Insert(records); err != nil {
		return fmt.Errorf("inserting vectors: %w", err)
	}
	return nil
}
