package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/p-n-ai/dsc-prep/internal/quiz"
	"github.com/p-n-ai/dsc-prep/internal/syllabus"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type postView struct {
	syllabus.Post
	StreamSubjects []string `json:"streamSubjects"`
	TotalWeight    int      `json:"totalWeight"`
}

type postsResponse struct {
	Posts         []postView          `json:"posts"`
	ExamSizes     []syllabus.ExamSize `json:"examSizes"`
	PracticeSizes []int               `json:"practiceSizes"`
	Difficulties  []quiz.Difficulty   `json:"difficulties"`
	Languages     []quiz.Language     `json:"languages"`
	DefaultTopic  string              `json:"defaultTopic"`
}

func (s *Server) handleListPosts(w http.ResponseWriter, _ *http.Request) {
	posts := s.table.Posts()
	views := make([]postView, 0, len(posts))
	for _, p := range posts {
		views = append(views, postView{
			Post:           p,
			StreamSubjects: s.table.StreamSubjects(p.ID),
			TotalWeight:    p.TotalWeight(),
		})
	}
	writeJSON(w, http.StatusOK, postsResponse{
		Posts:         views,
		ExamSizes:     syllabus.ExamSizes,
		PracticeSizes: syllabus.PracticeSizes,
		Difficulties:  quiz.Difficulties,
		Languages:     quiz.Languages,
		DefaultTopic:  quiz.DefaultTopic,
	})
}

func (s *Server) postParam(w http.ResponseWriter, r *http.Request) (syllabus.Post, bool) {
	id := syllabus.PostID(chi.URLParam(r, "post"))
	p, ok := s.table.Post(id)
	if !ok {
		writeErr(w, http.StatusNotFound, fmt.Sprintf("unknown post %q", id))
	}
	return p, ok
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	p, ok := s.postParam(w, r)
	if !ok {
		return
	}
	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil || count <= 0 {
		writeErr(w, http.StatusBadRequest, "count must be a positive integer")
		return
	}

	allocs, err := syllabus.Distribute(p.Pattern, count, r.URL.Query().Get("subject"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post": p.ID, "count": count, "sections": allocs})
}

func (s *Server) handleQuickSubject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.postParam(w, r)
	if !ok {
		return
	}
	code := chi.URLParam(r, "code")
	subject, ok := s.table.QuickSubject(p.ID, code)
	if !ok {
		writeErr(w, http.StatusNotFound, fmt.Sprintf("no %q subject for post %q", code, p.ID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"subject": subject})
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		writeErr(w, http.StatusBadRequest, "subject is required")
		return
	}
	var topics []string
	if q := r.URL.Query().Get("q"); q != "" {
		topics = s.table.SearchTopics(subject, q)
	} else {
		topics = s.table.Topics(subject)
	}
	if topics == nil {
		topics = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"subject": subject, "topics": topics})
}

func (s *Server) handlePlans(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plans": s.plans.Plans()})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := quiz.LoadPrefs(r.Context(), s.prefs, clientID(r), s.table)
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg quiz.Config
	if err := decodeJSON(w, r, &cfg); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := cfg.Validate(s.table); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.prefs.SaveConfig(r.Context(), clientID(r), cfg); err != nil {
		writeError(w, r, fmt.Errorf("saving configuration: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type resultView struct {
	quiz.Result
	Percentage int `json:"percentage"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			writeErr(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}

	results, err := s.results.ListResults(r.Context(), clientID(r), limit)
	if err != nil {
		writeError(w, r, fmt.Errorf("listing results: %w", err))
		return
	}
	views := make([]resultView, 0, len(results))
	for _, res := range results {
		views = append(views, resultView{Result: res, Percentage: res.Percentage()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": views})
}

// savePrefs remembers the last started configuration. Failures are logged
// and do not fail the request.
func (s *Server) savePrefs(r *http.Request, cfg quiz.Config) {
	if err := s.prefs.SaveConfig(r.Context(), clientID(r), cfg); err != nil {
		slog.Warn("saving quiz configuration", "client_id", clientID(r), "error", err)
	}
}
