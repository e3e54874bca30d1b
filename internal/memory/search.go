package memory

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/agentcore/nexuscore/pkg/models"
)

// defaultDecayRate is applied to the recency score when a query does not
// specify one: 100 / (1 + age_hours * decay).
const defaultDecayRate = 0.05

// Search scores and ranks every chunk belonging to q.AgentID against q,
// paginating after ranking (not before) and dropping results below
// q.MinScore.
func (s *Store) Search(ctx context.Context, q models.MemorySearchQuery) ([]models.MemorySearchResult, error) {
	chunks, err := s.ForAgent(ctx, q.AgentID)
	if err != nil {
		return nil, err
	}
	if q.SessionID != "" {
		filtered := chunks[:0:0]
		for _, c := range chunks {
			if c.SessionID == q.SessionID {
				filtered = append(filtered, c)
			}
		}
		chunks = filtered
	}

	matcher, err := newMatcher(q.Mode, q.Query)
	if err != nil {
		return nil, err
	}

	weights := q.Weights
	if weights.Frequency == 0 && weights.Recency == 0 && weights.Tag == 0 {
		weights = models.WeightsBalanced
	}
	decay := q.DecayRate
	if decay == 0 {
		decay = defaultDecayRate
	}
	now := q.Now
	if now.IsZero() {
		now = s.now()
	}

	results := make([]models.MemorySearchResult, 0, len(chunks))
	for i := range chunks {
		c := chunks[i]
		frequency := matcher.score(c.Content)
		recency := recencyScore(c.CreatedAt, now, decay)
		tagScore, matchedTags := tagScore(c.Tags, q.Tags)

		total := frequency*weights.Frequency + recency*weights.Recency + tagScore*weights.Tag
		if total < q.MinScore {
			continue
		}
		results = append(results, models.MemorySearchResult{
			Chunk:       &chunks[i],
			Score:       total,
			Frequency:   frequency,
			Recency:     recency,
			TagScore:    tagScore,
			MatchedTags: matchedTags,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return paginate(results, q.Offset, q.Limit), nil
}

func paginate(results []models.MemorySearchResult, offset, limit int) []models.MemorySearchResult {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}

// recencyScore implements 100 / (1 + age_hours * decay).
func recencyScore(createdAt, now time.Time, decay float64) float64 {
	ageHours := now.Sub(createdAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return 100.0 / (1.0 + ageHours*decay)
}

// tagScore implements 100 * |matched_tags| / |query_tags|, case-insensitive.
func tagScore(chunkTags, queryTags []string) (float64, []string) {
	if len(queryTags) == 0 {
		return 0, nil
	}
	have := make(map[string]struct{}, len(chunkTags))
	for _, t := range chunkTags {
		have[strings.ToLower(t)] = struct{}{}
	}
	var matched []string
	for _, qt := range queryTags {
		if _, ok := have[strings.ToLower(qt)]; ok {
			matched = append(matched, qt)
		}
	}
	return 100.0 * float64(len(matched)) / float64(len(queryTags)), matched
}

// matcher computes the frequency component of a chunk's score: the
// min(100, matches_per_100_words) formula shared by all three modes, each
// differing only in what counts as a "match".
type matcher struct {
	mode    models.MemorySearchMode
	query   string
	keyword []string
	re      *regexp.Regexp
}

func newMatcher(mode models.MemorySearchMode, query string) (*matcher, error) {
	m := &matcher{mode: mode, query: query}
	switch mode {
	case models.MemorySearchPhrase:
		// substring match; nothing further to precompile.
	case models.MemorySearchRegex:
		re, err := regexp.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("memory: invalid search regex: %w", err)
		}
		m.re = re
	case models.MemorySearchKeyword, "":
		m.mode = models.MemorySearchKeyword
		m.keyword = strings.Fields(strings.ToLower(query))
	default:
		return nil, fmt.Errorf("memory: unknown search mode %q", mode)
	}
	return m, nil
}

func (m *matcher) score(content string) float64 {
	words := wordCount(content)
	if words == 0 {
		return 0
	}

	var matches int
	switch m.mode {
	case models.MemorySearchKeyword:
		lower := strings.ToLower(content)
		for _, kw := range m.keyword {
			if kw == "" {
				continue
			}
			matches += strings.Count(lower, kw)
		}
	case models.MemorySearchPhrase:
		if m.query != "" {
			matches = strings.Count(strings.ToLower(content), strings.ToLower(m.query))
		}
	case models.MemorySearchRegex:
		if m.re != nil {
			matches = len(m.re.FindAllStringIndex(content, -1))
		}
	}

	perHundred := float64(matches) / float64(words) * 100.0
	if perHundred > 100 {
		perHundred = 100
	}
	return perHundred
}

func wordCount(s string) int {
	count := 0
	inWord := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}
