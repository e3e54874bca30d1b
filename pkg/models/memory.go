// Package models defines the core data types for the orchestration core.
package models

import "time"

// MemorySourceVariant identifies how a memory chunk entered the store.
type MemorySourceVariant string

const (
	MemorySourceMessage    MemorySourceVariant = "message"
	MemorySourceNote       MemorySourceVariant = "note"
	MemorySourceTool       MemorySourceVariant = "tool_result"
	MemorySourceTaskResult MemorySourceVariant = "task_result"
)

// MemoryChunk is a bounded, overlapping substring of a larger text used
// for memory search (C12). ContentHash is the dedup key: identical
// content must produce an identical hash regardless of which agent
// stored it.
type MemoryChunk struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id,omitempty"`

	Content     string `json:"content"`
	ContentHash string `json:"content_hash"` // sha256 hex of Content

	EstimatedTokens int      `json:"estimated_tokens"`
	Tags            []string `json:"tags,omitempty"`

	Source MemorySourceVariant `json:"source"`

	CreatedAt time.Time `json:"created_at"`
}

// MemorySearchMode selects how query keywords/phrases are matched
// against chunk content when computing the frequency score.
type MemorySearchMode string

const (
	MemorySearchKeyword MemorySearchMode = "keyword"
	MemorySearchPhrase  MemorySearchMode = "phrase"
	MemorySearchRegex   MemorySearchMode = "regex"
)

// MemorySearchWeights are the three weight multipliers applied to the
// frequency/recency/tag components of a chunk's score.
type MemorySearchWeights struct {
	Frequency float64 `json:"frequency"`
	Recency   float64 `json:"recency"`
	Tag       float64 `json:"tag"`
}

// Named weight presets (§4.12).
var (
	WeightsFrequencyFocused = MemorySearchWeights{Frequency: 0.7, Recency: 0.2, Tag: 0.1}
	WeightsRecencyFocused   = MemorySearchWeights{Frequency: 0.2, Recency: 0.7, Tag: 0.1}
	WeightsBalanced         = MemorySearchWeights{Frequency: 0.4, Recency: 0.4, Tag: 0.2}
)

// MemorySearchQuery defines parameters for a ranked memory search.
type MemorySearchQuery struct {
	AgentID   string               `json:"agent_id"`
	SessionID string               `json:"session_id,omitempty"`
	Query     string               `json:"query"`
	Mode      MemorySearchMode     `json:"mode"`
	Tags      []string             `json:"tags,omitempty"`
	Weights   MemorySearchWeights  `json:"weights"`
	MinScore  float64              `json:"min_score,omitempty"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
	DecayRate float64              `json:"decay_rate,omitempty"` // recency decay-per-hour; 0 uses default
	Now       time.Time            `json:"-"`                    // injected clock for deterministic tests
}

// MemorySearchResult represents a single ranked search result.
type MemorySearchResult struct {
	Chunk       *MemoryChunk `json:"chunk"`
	Score       float64      `json:"score"`
	Frequency   float64      `json:"frequency"`
	Recency     float64      `json:"recency"`
	TagScore    float64      `json:"tag_score"`
	MatchedTags []string     `json:"matched_tags,omitempty"`
}

// MemoryStats summarizes stored chunks for an agent.
type MemoryStats struct {
	AgentID    string `json:"agent_id"`
	ChunkCount int    `json:"chunk_count"`
	TotalBytes int64  `json:"total_bytes"`
}

// MemoryExportOptions configures a memory export.
type MemoryExportOptions struct {
	IncludeEmbeddingsPlaceholder bool     `json:"-"` // no embeddings stored; reserved for future use
	Tags                         []string `json:"tags,omitempty"`
}
