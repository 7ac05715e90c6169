package quiz_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/p-n-ai/dsc-prep/internal/quiz"
	"github.com/p-n-ai/dsc-prep/internal/syllabus"
)

func mustTable(t *testing.T) *syllabus.Table {
	t.Helper()
	table, err := syllabus.Default()
	if err != nil {
		t.Fatalf("syllabus.Default() error = %v", err)
	}
	return table
}

func practiceConfig() quiz.Config {
	return quiz.Config{
		Mode:          quiz.ModePractice,
		Post:          syllabus.SGT,
		Language:      quiz.English,
		Subject:       "Mathematics",
		Difficulty:    quiz.Medium,
		QuestionCount: 5,
		TimeLimit:     15,
	}
}

func sampleQuestions(n int) []quiz.Question {
	qs := make([]quiz.Question, n)
	for i := range qs {
		qs[i] = quiz.Question{
			ID:                 fmt.Sprintf("q%d", i+1),
			Text:               fmt.Sprintf("Question %d?", i+1),
			Options:            []string{"A", "B", "C", "D"},
			CorrectAnswerIndex: i % 4,
			Explanation:        "Because.",
			VisualPrompt:       fmt.Sprintf("Diagram %d", i+1),
		}
	}
	return qs
}

// questionJSON renders n well-formed records the way the model returns them.
func questionJSON(n int) string {
	type record struct {
		QuestionText       string   `json:"questionText"`
		Options            []string `json:"options"`
		CorrectAnswerIndex int      `json:"correctAnswerIndex"`
		Explanation        string   `json:"explanation"`
		AdditionalInfo     string   `json:"additionalInfo"`
		VisualPrompt       string   `json:"visualPrompt"`
		SourceExam         string   `json:"sourceExam,omitempty"`
		SourceYear         string   `json:"sourceYear,omitempty"`
	}
	records := make([]record, n)
	for i := range records {
		records[i] = record{
			QuestionText:       fmt.Sprintf("What is %d + %d?", i, i),
			Options:            []string{"1", "2", "3", "4"},
			CorrectAnswerIndex: i % 4,
			Explanation:        "Addition.",
			AdditionalInfo:     "Arithmetic basics.",
			VisualPrompt:       "A number line from 0 to 10",
			SourceExam:         "AP DSC",
			SourceYear:         "2018",
		}
	}
	raw, _ := json.Marshal(map[string]any{"questions": records})
	return string(raw)
}

// fakeGenerator returns canned questions. When block is set, Generate waits
// for it to be closed or for ctx to end.
type fakeGenerator struct {
	questions []quiz.Question
	err       error
	block     chan struct{}

	calls   atomic.Int32
	mu      sync.Mutex
	lastReq quiz.GenerationRequest
}

func (g *fakeGenerator) Generate(ctx context.Context, req quiz.GenerationRequest) ([]quiz.Question, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.lastReq = req
	g.mu.Unlock()
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.questions, nil
}

type fakeIllustrator struct {
	image string
	err   error
	calls atomic.Int32
}

func (f *fakeIllustrator) Illustrate(_ context.Context, _ string, _ quiz.Language) (string, error) {
	f.calls.Add(1)
	return f.image, f.err
}

// fakeTicker is driven by the test; sends block until the countdown reads.
type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

// tick delivers one tick, reporting false if nobody received it.
func (f *fakeTicker) tick(timeout time.Duration) bool {
	select {
	case f.ch <- time.Now():
		return true
	case <-time.After(timeout):
		return false
	}
}

type harness struct {
	session *quiz.Session
	gen     *fakeGenerator
	illus   *fakeIllustrator
	events  *quiz.MemoryEventLogger
	results *quiz.MemoryResultStore
	tickers chan *fakeTicker
}

func newHarness(t *testing.T, gen *fakeGenerator) *harness {
	t.Helper()
	h := &harness{
		gen:     gen,
		illus:   &fakeIllustrator{image: "data:image/png;base64,AAAA"},
		events:  quiz.NewMemoryEventLogger(),
		results: quiz.NewMemoryResultStore(),
		tickers: make(chan *fakeTicker, 4),
	}
	h.session = quiz.NewSession(quiz.SessionConfig{
		ClientID:    "client-1",
		Table:       mustTable(t),
		Generator:   gen,
		Illustrator: h.illus,
		Results:     h.results,
		Events:      h.events,
		NewTicker: func(time.Duration) quiz.Ticker {
			ft := &fakeTicker{ch: make(chan time.Time)}
			h.tickers <- ft
			return ft
		},
	})
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) start(t *testing.T, cfg quiz.Config) {
	t.Helper()
	if err := h.session.Start(t.Context(), cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func (h *harness) ticker(t *testing.T) *fakeTicker {
	t.Helper()
	select {
	case ft := <-h.tickers:
		return ft
	case <-time.After(time.Second):
		t.Fatal("countdown was not started")
		return nil
	}
}

func waitUpdate(t *testing.T, ch <-chan quiz.Update) quiz.Update {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return quiz.Update{}
	}
}
