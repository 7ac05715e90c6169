package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/p-n-ai/dsc-prep/internal/quiz"
	"github.com/p-n-ai/dsc-prep/internal/report"
)

type sessionKey struct{}

// loadSession resolves {id} to a live session. A session is only visible to
// the client that created it.
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.sessions.Get(chi.URLParam(r, "id"))
		if !ok || sess.ClientID() != clientID(r) {
			writeErr(w, http.StatusNotFound, "session not found")
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *quiz.Session {
	return r.Context().Value(sessionKey{}).(*quiz.Session)
}

// view hides the key and explanation of questions that are still open while
// the quiz runs.
func view(snap quiz.Snapshot) quiz.Snapshot {
	if snap.Status != quiz.StatusActive {
		return snap
	}
	for i, q := range snap.Questions {
		if snap.Answered(q.ID) {
			continue
		}
		q.CorrectAnswerIndex = -1
		q.Explanation = ""
		q.AdditionalInfo = ""
		snap.Questions[i] = q
	}
	return snap
}

// startConfig decodes and checks a start request against the syllabus and
// the caller's plan. A missing language follows Accept-Language.
func (s *Server) startConfig(w http.ResponseWriter, r *http.Request) (quiz.Config, bool) {
	var cfg quiz.Config
	if err := decodeJSON(w, r, &cfg); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return cfg, false
	}
	if cfg.Language == "" {
		cfg.Language = quiz.MatchLanguage(r.Header.Get("Accept-Language"))
	}
	if err := cfg.Validate(s.table); err != nil {
		writeError(w, r, err)
		return cfg, false
	}

	p, err := s.plans.Lookup(r.Header.Get(HeaderPlan))
	if err != nil {
		writeError(w, r, err)
		return cfg, false
	}
	if err := p.CheckQuestions(cfg.QuestionCount); err != nil {
		writeError(w, r, err)
		return cfg, false
	}
	return cfg, true
}

// launch starts generation detached from the request; the session's own
// timeout bounds it.
func (s *Server) launch(w http.ResponseWriter, r *http.Request, sess *quiz.Session, start func(context.Context) error, mode quiz.Mode) bool {
	if err := start(context.WithoutCancel(r.Context())); err != nil {
		writeError(w, r, err)
		return false
	}
	if s.metrics != nil {
		s.metrics.QuizStarted(string(mode))
	}
	w.Header().Set("Location", "/api/sessions/"+sess.ID())
	writeJSON(w, http.StatusAccepted, view(sess.Snapshot()))
	return true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.startConfig(w, r)
	if !ok {
		return
	}
	sess := s.sessions.Create(clientID(r))
	start := func(ctx context.Context) error { return sess.StartAsync(ctx, cfg) }
	if !s.launch(w, r, sess, start, cfg.Mode) {
		s.sessions.Remove(sess.ID())
		return
	}
	s.savePrefs(r, cfg)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	cfg, ok := s.startConfig(w, r)
	if !ok {
		return
	}
	start := func(ctx context.Context) error { return sess.StartAsync(ctx, cfg) }
	if s.launch(w, r, sess, start, cfg.Mode) {
		s.savePrefs(r, cfg)
	}
}

func (s *Server) handleRetrySession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	var mode quiz.Mode
	if c := sess.Snapshot().Config; c != nil {
		mode = c.Mode
	}
	s.launch(w, r, sess, sess.RetryAsync, mode)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view(sessionFrom(r).Snapshot()))
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.Reset()
	writeJSON(w, http.StatusOK, view(sess.Snapshot()))
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.MarkAuthenticated()
	writeJSON(w, http.StatusOK, view(sess.Snapshot()))
}

type answerRequest struct {
	QuestionID string `json:"questionId"`
	Option     *int   `json:"option"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.QuestionID == "" || req.Option == nil {
		writeErr(w, http.StatusBadRequest, "questionId and option are required")
		return
	}

	res, err := sessionFrom(r).RecordAnswer(req.QuestionID, *req.Option)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.Next(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(sess.Snapshot()))
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.Finish(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(sess.Snapshot()))
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	qid := chi.URLParam(r, "qid")
	img, err := sessionFrom(r).FetchImage(r.Context(), qid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"questionId": qid, "image": img})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := report.Build(sessionFrom(r).Snapshot(), s.table)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	p, err := s.plans.Lookup(r.Header.Get(HeaderPlan))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := p.CheckExport(); err != nil {
		writeError(w, r, err)
		return
	}
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	rep, err := report.Build(sessionFrom(r).Snapshot(), s.table)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Render fully first so a failure still gets a JSON error response.
	var buf bytes.Buffer
	if err := s.exporter.Write(&buf, rep, format); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename(rep)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
