package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/nexuscore/internal/store"
	"github.com/agentcore/nexuscore/pkg/models"
)

const chunksTable = "memory_chunks"

// Store persists memory chunks and answers ranked searches over them.
type Store struct {
	chunks  *store.Table[models.MemoryChunk]
	chunker *Chunker
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithChunker overrides the default chunker (size/overlap/minimum).
func WithChunker(c *Chunker) Option {
	return func(s *Store) { s.chunker = c }
}

// WithNow overrides the clock used for CreatedAt stamps and recency
// scoring in tests.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New builds a Store over st.
func New(st *store.Store, opts ...Option) *Store {
	s := &Store{
		chunks:  store.NewTable[models.MemoryChunk](st, chunksTable),
		chunker: NewChunker(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ContentHash returns the dedup key for content: a content's hash is
// identical regardless of which agent stores it.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// estimateTokens approximates token count for bookkeeping only; it is
// never used for correctness-sensitive decisions.
func estimateTokens(content string) int {
	return (len(content) + 3) / 4
}

// Ingest chunks content and stores each piece as a MemoryChunk, skipping
// any chunk whose content hash already exists for agentID. Returns the
// ids of chunks actually written (new ones only).
func (s *Store) Ingest(ctx context.Context, agentID, sessionID, content string, tags []string, source models.MemorySourceVariant) ([]string, error) {
	pieces := s.chunker.Chunk(content)
	written := make([]string, 0, len(pieces))

	for _, piece := range pieces {
		hash := ContentHash(piece)
		exists, err := s.hashExists(ctx, agentID, hash)
		if err != nil {
			return written, err
		}
		if exists {
			continue
		}

		id := uuid.NewString()
		chunk := models.MemoryChunk{
			ID:              id,
			AgentID:         agentID,
			SessionID:       sessionID,
			Content:         piece,
			ContentHash:     hash,
			EstimatedTokens: estimateTokens(piece),
			Tags:            tags,
			Source:          source,
			CreatedAt:       s.now(),
		}
		if err := s.chunks.Put(ctx, id, chunk); err != nil {
			return written, fmt.Errorf("memory: store chunk: %w", err)
		}
		written = append(written, id)
	}
	return written, nil
}

// Store persists chunk verbatim (no re-chunking), skipping it if a chunk
// with the same content hash already exists for its agent. Returns the id
// actually used: either chunk.ID (if newly written) or the id of the
// existing duplicate.
func (s *Store) Store(ctx context.Context, chunk models.MemoryChunk) (string, error) {
	if chunk.ContentHash == "" {
		chunk.ContentHash = ContentHash(chunk.Content)
	}
	if existingID, ok, err := s.findByHash(ctx, chunk.AgentID, chunk.ContentHash); err != nil {
		return "", err
	} else if ok {
		return existingID, nil
	}

	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = s.now()
	}
	if chunk.EstimatedTokens == 0 {
		chunk.EstimatedTokens = estimateTokens(chunk.Content)
	}
	if err := s.chunks.Put(ctx, chunk.ID, chunk); err != nil {
		return "", fmt.Errorf("memory: store chunk: %w", err)
	}
	return chunk.ID, nil
}

func (s *Store) hashExists(ctx context.Context, agentID, hash string) (bool, error) {
	_, ok, err := s.findByHash(ctx, agentID, hash)
	return ok, err
}

func (s *Store) findByHash(ctx context.Context, agentID, hash string) (string, bool, error) {
	all, err := s.chunks.ScanPrefix(ctx, "", 0)
	if err != nil {
		return "", false, fmt.Errorf("memory: scan chunks: %w", err)
	}
	for _, kv := range all {
		if kv.Value.AgentID == agentID && kv.Value.ContentHash == hash {
			return kv.Value.ID, true, nil
		}
	}
	return "", false, nil
}

// Get fetches a single chunk by id.
func (s *Store) Get(ctx context.Context, id string) (models.MemoryChunk, error) {
	return s.chunks.Get(ctx, id)
}

// Delete removes a chunk by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.chunks.Delete(ctx, id)
}

// ForAgent returns all chunks belonging to agentID, in no particular order.
func (s *Store) ForAgent(ctx context.Context, agentID string) ([]models.MemoryChunk, error) {
	all, err := s.chunks.ScanPrefix(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("memory: scan chunks: %w", err)
	}
	out := make([]models.MemoryChunk, 0, len(all))
	for _, kv := range all {
		if kv.Value.AgentID == agentID {
			out = append(out, kv.Value)
		}
	}
	return out, nil
}

// Stats summarizes the chunks stored for agentID.
func (s *Store) Stats(ctx context.Context, agentID string) (models.MemoryStats, error) {
	chunks, err := s.ForAgent(ctx, agentID)
	if err != nil {
		return models.MemoryStats{}, err
	}
	stats := models.MemoryStats{AgentID: agentID}
	for _, c := range chunks {
		stats.ChunkCount++
		stats.TotalBytes += int64(len(c.Content))
	}
	return stats, nil
}

// Export returns the chunks stored for agentID matching the given scope
// tags (a chunk matches if it has at least one of the requested tags, or
// all chunks are returned when no tags are requested).
func (s *Store) Export(ctx context.Context, agentID string, opts models.MemoryExportOptions) ([]models.MemoryChunk, error) {
	chunks, err := s.ForAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if len(opts.Tags) == 0 {
		return chunks, nil
	}
	want := make(map[string]struct{}, len(opts.Tags))
	for _, t := range opts.Tags {
		want[t] = struct{}{}
	}
	out := make([]models.MemoryChunk, 0, len(chunks))
	for _, c := range chunks {
		for _, t := range c.Tags {
			if _, ok := want[t]; ok {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}
