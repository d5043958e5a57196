// Package retrieval answers "nearest document chunks for this workspace"
// queries: brute-force cosine similarity over embeddings stored in
// SQLite, always through a tenant-bound session so no query can see
// another workspace's rows.
package retrieval

import (
	"container/heap"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mkravets/agenda/internal/storage"
)

// Chunk is a stored fragment of an ingested document.
type Chunk struct {
	ID         string
	DocumentID string
	Seq        int
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredChunk is a Chunk with its cosine similarity to the query vector.
type ScoredChunk struct {
	Chunk
	Score float32
}

// Store provides tenant-scoped vector storage and similarity search.
type Store struct {
	pool *storage.Pool
}

// NewStore creates a Store over the given pool.
func NewStore(pool *storage.Pool) *Store {
	return &Store{pool: pool}
}

// Insert adds chunks through an already-bound session or transaction.
// The ingest worker calls this inside the transaction that finalizes a
// document's embedding job.
func Insert(ctx context.Context, q storage.Querier, chunks []Chunk) error {
	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO document_chunks (id, tenant_id, document_id, seq, text_chunk, embedding, created_at)
			VALUES (?, (SELECT tenant_id FROM session_tenant), ?, ?, ?, ?, ?)`,
			c.ID, c.DocumentID, c.Seq, c.Text, encodeFloat32s(c.Embedding),
			createdAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

// idScore holds only the id and score during the scan phase of Search;
// full rows are hydrated only for the top-K winners.
type idScore struct {
	ID    string
	Score float32
}

// Search returns the workspace's topK most similar chunks, ordered by
// descending score. A zero-norm query vector is a diagnostic mode: it
// does not error, every score is 0, and the first K chunks in storage
// order come back. An empty workspace yields an empty slice.
func (s *Store) Search(ctx context.Context, tenantID string, vector []float32, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	conn, err := s.pool.Acquire(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	return searchBound(ctx, conn, vector, topK)
}

// searchBound runs the two-phase scan on an already-bound session.
func searchBound(ctx context.Context, q storage.Querier, vector []float32, topK int) ([]ScoredChunk, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, embedding FROM document_chunks
		WHERE tenant_id = (SELECT tenant_id FROM session_tenant)`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(vector)

	h := &idScoreHeap{}
	heap.Init(h)

	// Reusable buffer avoids a per-row allocation during the scan.
	var buf []float32

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	topIDs := make([]string, h.Len())
	scores := make(map[string]float32, h.Len())
	for i := len(topIDs) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		topIDs[i] = item.ID
		scores[item.ID] = item.Score
	}

	queryArgs := make([]any, len(topIDs))
	for i, id := range topIDs {
		queryArgs[i] = id
	}
	fullQuery := `SELECT id, document_id, seq, text_chunk, embedding, created_at
		FROM document_chunks
		WHERE tenant_id = (SELECT tenant_id FROM session_tenant)
		  AND id IN (?` + strings.Repeat(",?", len(topIDs)-1) + `)
		ORDER BY rowid ASC`

	fullRows, err := q.QueryContext(ctx, fullQuery, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K chunks: %w", err)
	}
	defer fullRows.Close()

	var results []ScoredChunk
	for fullRows.Next() {
		var c Chunk
		var blob []byte
		var createdAt string
		if err := fullRows.Scan(&c.ID, &c.DocumentID, &c.Seq, &c.Text, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning full chunk: %w", err)
		}
		embedding, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", c.ID, err)
		}
		c.Embedding = embedding
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		c.CreatedAt = t
		results = append(results, ScoredChunk{Chunk: c, Score: scores[c.ID]})
	}
	if err := fullRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating full chunks: %w", err)
	}

	// Descending by score; the insertion sort is stable, so equal
	// scores keep storage order.
	sortByScore(results)

	return results, nil
}

// Count returns the number of chunks visible to the workspace.
func (s *Store) Count(ctx context.Context, tenantID string) (int, error) {
	conn, err := s.pool.Acquire(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	var count int
	err = conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE tenant_id = (SELECT tenant_id FROM session_tenant)`,
	).Scan(&count)
	return count, err
}

// sortByScore sorts ScoredChunks by Score descending. Fine for small
// slices (topK).
func sortByScore(results []ScoredChunk) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32
// slice. A length that is not a multiple of 4 indicates corruption.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// decodeFloat32sInto decodes into the provided buffer, reusing it.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes cosine similarity (1 - cosine distance) as
// dot(a,b) / (aNorm * bNorm). aNorm is precomputed for the query vector;
// degenerate vectors on either side score 0 instead of erroring.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) || aNorm == 0 {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// idScoreHeap is a min-heap of idScore ordered by Score, used to track
// top-K candidates during the scan phase.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int           { return len(h) }
func (h idScoreHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x any)        { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
