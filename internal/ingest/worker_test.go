package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mkravets/agenda/internal/retrieval"
	"github.com/mkravets/agenda/internal/storage"
)

const testTenant = "77777777-7777-7777-7777-777777777777"

type fakeEmbedder struct {
	fail  bool
	calls int
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("embedding endpoint down")
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return vecs, nil
}

type workerEnv struct {
	store    *storage.Store
	pool     *storage.Pool
	embedder *fakeEmbedder
	worker   *Worker
}

func newWorkerEnv(t *testing.T) *workerEnv {
	t.Helper()
	s, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	pool := storage.NewPool(s, 2, time.Second)
	embedder := &fakeEmbedder{}
	return &workerEnv{
		store:    s,
		pool:     pool,
		embedder: embedder,
		worker:   NewWorker(s, pool, embedder, 10*time.Millisecond),
	}
}

func (env *workerEnv) queueDocument(t *testing.T, content string) string {
	t.Helper()
	ctx := context.Background()

	conn, err := env.pool.Acquire(ctx, testTenant)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer conn.Release()

	doc := storage.Document{ID: uuid.NewString(), Title: "FAQ", Content: content, Source: "text"}
	if err := storage.SaveDocument(ctx, conn, doc); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	payload, _ := json.Marshal(JobPayload{DocumentID: doc.ID})
	job := storage.Job{ID: uuid.NewString(), TenantID: testTenant, Type: JobType, PayloadJSON: string(payload)}
	if err := env.store.EnqueueJob(ctx, job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	return doc.ID
}

func TestRunOnceIndexesDocument(t *testing.T) {
	env := newWorkerEnv(t)
	ctx := context.Background()

	docID := env.queueDocument(t, "We are open 9 to 18.\n\nDeposits are non-refundable.")

	done, err := env.worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("RunOnce processed no job")
	}

	vectors := retrieval.NewStore(env.pool)
	count, err := vectors.Count(ctx, testTenant)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count == 0 {
		t.Fatal("no chunks indexed")
	}

	results, err := vectors.Search(ctx, testTenant, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.DocumentID != docID {
			t.Errorf("chunk %s references document %s, want %s", r.ID, r.DocumentID, docID)
		}
	}
}

func TestRunOnceNoJobs(t *testing.T) {
	env := newWorkerEnv(t)

	done, err := env.worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if done {
		t.Error("RunOnce reported work with an empty queue")
	}
	if env.embedder.calls != 0 {
		t.Errorf("embedder called %d times with an empty queue", env.embedder.calls)
	}
}

func TestRunOnceFailureSchedulesRetry(t *testing.T) {
	env := newWorkerEnv(t)
	env.embedder.fail = true
	ctx := context.Background()

	env.queueDocument(t, "Some content to embed.")

	done, err := env.worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("RunOnce processed no job")
	}

	// The failure must not leave any chunks behind, and the job goes back
	// to pending with a future run_after.
	vectors := retrieval.NewStore(env.pool)
	count, err := vectors.Count(ctx, testTenant)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("failed job left %d chunks", count)
	}

	var status string
	var attempts int
	if err := env.store.DB().QueryRow(`SELECT status, attempts FROM jobs`).Scan(&status, &attempts); err != nil {
		t.Fatalf("reading job: %v", err)
	}
	if status != "pending" || attempts != 1 {
		t.Errorf("job status=%q attempts=%d, want pending/1", status, attempts)
	}
}

func TestRunOnceSkipsEmptyDocument(t *testing.T) {
	env := newWorkerEnv(t)
	ctx := context.Background()

	env.queueDocument(t, "   \n\n  ")

	done, err := env.worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("RunOnce processed no job")
	}

	var status string
	if err := env.store.DB().QueryRow(`SELECT status FROM jobs`).Scan(&status); err != nil {
		t.Fatalf("reading job: %v", err)
	}
	if status != "completed" {
		t.Errorf("empty document job status = %q, want completed", status)
	}
}
