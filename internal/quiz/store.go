package quiz

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/dsc-prep/internal/syllabus"
)

// Result is the saved summary of a completed quiz.
type Result struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"sessionId"`
	ClientID   string          `json:"clientId"`
	Mode       Mode            `json:"mode"`
	Post       syllabus.PostID `json:"post"`
	Subject    string          `json:"subject,omitempty"`
	Language   Language        `json:"language"`
	Difficulty Difficulty      `json:"difficulty"`
	Total      int             `json:"total"`
	Score      int             `json:"score"`
	TimedOut   bool            `json:"timedOut"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
}

// Percentage returns the score as a rounded percentage of the total.
func (r Result) Percentage() int {
	return Percentage(r.Score, r.Total)
}

// Percentage returns score/total as a percentage rounded half away from zero.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(score) / float64(total) * 100))
}

// ResultStore persists completed quiz results.
type ResultStore interface {
	SaveResult(ctx context.Context, r Result) error
	ListResults(ctx context.Context, clientID string, limit int) ([]Result, error)
}

// MemoryResultStore is an in-memory ResultStore.
type MemoryResultStore struct {
	results []Result
	mu      sync.RWMutex
}

// NewMemoryResultStore creates an empty in-memory result store.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{}
}

func (s *MemoryResultStore) SaveResult(_ context.Context, r Result) error {
	if r.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

// ListResults returns the client's results, newest first. limit <= 0 means
// no limit.
func (s *MemoryResultStore) ListResults(_ context.Context, clientID string, limit int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Result
	for _, r := range s.results {
		if r.ClientID == clientID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
