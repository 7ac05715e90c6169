package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/dsc-prep/internal/ai"
	"github.com/p-n-ai/dsc-prep/internal/api"
	"github.com/p-n-ai/dsc-prep/internal/platform/metrics"
	"github.com/p-n-ai/dsc-prep/internal/quiz"
	"github.com/p-n-ai/dsc-prep/internal/report"
	"github.com/p-n-ai/dsc-prep/internal/syllabus"
)

const client = "client-1"

// 1x1 transparent PNG.
const pixelPNG = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func questionJSON(n int) string {
	records := make([]map[string]any, n)
	for i := range records {
		records[i] = map[string]any{
			"questionText":       fmt.Sprintf("What is %d + %d?", i, i),
			"options":            []string{"1", "2", "3", "4"},
			"correctAnswerIndex": i % 4,
			"explanation":        "Addition.",
			"additionalInfo":     "Arithmetic basics.",
			"visualPrompt":       "A number line from 0 to 10",
		}
	}
	raw, _ := json.Marshal(map[string]any{"questions": records})
	return string(raw)
}

func practice(count int) quiz.Config {
	return quiz.Config{
		Mode:          quiz.ModePractice,
		Post:          syllabus.SGT,
		Language:      quiz.English,
		Subject:       "Mathematics",
		Difficulty:    quiz.Medium,
		QuestionCount: count,
		TimeLimit:     15,
	}
}

type env struct {
	url      string
	provider *ai.MockProvider
	results  *quiz.MemoryResultStore
	metrics  *metrics.Metrics
}

func newEnv(t *testing.T, configure ...func(*api.Options)) *env {
	t.Helper()
	table, err := syllabus.Default()
	if err != nil {
		t.Fatal(err)
	}
	provider := ai.NewMockProvider(questionJSON(3))
	provider.Image = pixelPNG
	results := quiz.NewMemoryResultStore()
	m := metrics.New()

	registry := quiz.NewRegistry(quiz.RegistryConfig{
		Table:       table,
		Generator:   quiz.NewAIGenerator(provider, quiz.WithObserver(m.ObserveAI)),
		Illustrator: quiz.NewAIIllustrator(provider, m.ObserveAI),
		Results:     results,
		GenTimeout:  5 * time.Second,
	})
	t.Cleanup(registry.CloseAll)

	opts := api.Options{
		Table:         table,
		Sessions:      registry,
		Prefs:         quiz.NewMemoryPrefsStore(),
		Results:       results,
		Metrics:       m,
		RatePerMinute: 600,
		RateBurst:     100,
	}
	for _, c := range configure {
		c(&opts)
	}

	srv := httptest.NewServer(api.New(opts).Handler())
	t.Cleanup(srv.Close)
	return &env{url: srv.URL, provider: provider, results: results, metrics: m}
}

func (e *env) do(t *testing.T, method, path string, body any, headers ...string) (int, http.Header, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, e.url+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.HeaderClientID, client)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, resp.Header, out
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func (e *env) create(t *testing.T, cfg quiz.Config, headers ...string) quiz.Snapshot {
	t.Helper()
	status, hdr, body := e.do(t, http.MethodPost, "/api/sessions", cfg, headers...)
	if status != http.StatusAccepted {
		t.Fatalf("create status = %d, body = %s", status, body)
	}
	snap := decode[quiz.Snapshot](t, body)
	if hdr.Get("Location") != "/api/sessions/"+snap.ID {
		t.Errorf("Location = %q", hdr.Get("Location"))
	}
	return snap
}

func (e *env) waitStatus(t *testing.T, id string, want quiz.Status) quiz.Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var snap quiz.Snapshot
	for time.Now().Before(deadline) {
		_, _, body := e.do(t, http.MethodGet, "/api/sessions/"+id, nil)
		snap = decode[quiz.Snapshot](t, body)
		if snap.Status == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s never reached %q (now %q)", id, want, snap.Status)
	return snap
}

func TestHealth(t *testing.T) {
	e := newEnv(t, func(o *api.Options) {
		o.Ready = map[string]api.Check{
			"database": func(context.Context) error { return errors.New("connection refused") },
		}
	})

	if status, _, _ := e.do(t, http.MethodGet, "/healthz", nil); status != http.StatusOK {
		t.Errorf("healthz status = %d", status)
	}
	status, _, body := e.do(t, http.MethodGet, "/readyz", nil)
	if status != http.StatusServiceUnavailable || !strings.Contains(string(body), "connection refused") {
		t.Errorf("readyz = %d %s", status, body)
	}
}

type postsBody struct {
	Posts []struct {
		ID             string   `json:"id"`
		Subjects       []string `json:"subjects"`
		StreamSubjects []string `json:"streamSubjects"`
	} `json:"posts"`
	ExamSizes []syllabus.ExamSize `json:"examSizes"`
	Languages []string            `json:"languages"`
}

func TestListPosts(t *testing.T) {
	e := newEnv(t)
	status, _, body := e.do(t, http.MethodGet, "/api/posts", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	resp := decode[postsBody](t, body)

	if len(resp.Posts) == 0 || resp.Posts[0].ID != string(syllabus.SGT) {
		t.Fatalf("posts = %+v", resp.Posts)
	}
	if len(resp.ExamSizes) != 3 || resp.ExamSizes[1].Count != 40 {
		t.Errorf("examSizes = %+v", resp.ExamSizes)
	}
	if len(resp.Languages) == 0 || resp.Languages[0] != "English" {
		t.Errorf("languages = %v", resp.Languages)
	}
}

func TestDistribution(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"sgt forty", "/api/posts/sgt/distribution?count=40", http.StatusOK},
		{"unknown post", "/api/posts/nope/distribution?count=40", http.StatusNotFound},
		{"missing count", "/api/posts/sgt/distribution", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, body := e.do(t, http.MethodGet, tt.path, nil)
			if status != tt.status {
				t.Fatalf("status = %d, want %d (%s)", status, tt.status, body)
			}
			if status != http.StatusOK {
				return
			}
			resp := decode[struct {
				Sections []syllabus.Allocation `json:"sections"`
			}](t, body)
			total := 0
			for _, s := range resp.Sections {
				total += s.Count
			}
			if total != 40 {
				t.Errorf("sections sum to %d, want 40", total)
			}
		})
	}
}

func TestTopics(t *testing.T) {
	e := newEnv(t)
	if status, _, _ := e.do(t, http.MethodGet, "/api/topics", nil); status != http.StatusBadRequest {
		t.Errorf("missing subject status = %d, want 400", status)
	}
	status, _, body := e.do(t, http.MethodGet, "/api/topics?subject=Mathematics", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	resp := decode[struct {
		Topics []string `json:"topics"`
	}](t, body)
	if resp.Topics == nil {
		t.Error("topics should be a list")
	}
}

func TestPlans(t *testing.T) {
	e := newEnv(t)
	_, _, body := e.do(t, http.MethodGet, "/api/plans", nil)
	resp := decode[struct {
		Plans []struct {
			ID     string `json:"id"`
			Export bool   `json:"export"`
		} `json:"plans"`
	}](t, body)
	if len(resp.Plans) != 3 || resp.Plans[0].ID != "free" || resp.Plans[0].Export {
		t.Errorf("plans = %+v", resp.Plans)
	}
}

func TestConfig(t *testing.T) {
	e := newEnv(t)

	_, _, body := e.do(t, http.MethodGet, "/api/config", nil)
	def := decode[quiz.Config](t, body)
	if def.Mode != quiz.ModePractice || def.QuestionCount != quiz.DefaultQuestionCount {
		t.Errorf("default config = %+v", def)
	}

	cfg := practice(15)
	cfg.Language = quiz.Telugu
	if status, _, body := e.do(t, http.MethodPut, "/api/config", cfg); status != http.StatusOK {
		t.Fatalf("PUT status = %d (%s)", status, body)
	}
	_, _, body = e.do(t, http.MethodGet, "/api/config", nil)
	if got := decode[quiz.Config](t, body); got != cfg {
		t.Errorf("stored config = %+v, want %+v", got, cfg)
	}

	bad := practice(0)
	if status, _, _ := e.do(t, http.MethodPut, "/api/config", bad); status != http.StatusBadRequest {
		t.Errorf("invalid PUT status = %d, want 400", status)
	}
}

func TestSessionLifecycle(t *testing.T) {
	e := newEnv(t)

	created := e.create(t, practice(3))
	snap := e.waitStatus(t, created.ID, quiz.StatusActive)
	if len(snap.Questions) != 3 || !snap.Timed || snap.Clock == "" {
		t.Fatalf("active snapshot = %+v", snap)
	}
	for _, q := range snap.Questions {
		if q.CorrectAnswerIndex != -1 || q.Explanation != "" {
			t.Errorf("open question %s leaks its key", q.ID)
		}
	}

	first := snap.Questions[0]
	path := "/api/sessions/" + created.ID
	status, _, body := e.do(t, http.MethodPost, path+"/answers", map[string]any{"questionId": first.ID, "option": 0})
	if status != http.StatusOK {
		t.Fatalf("answer status = %d (%s)", status, body)
	}
	ans := decode[quiz.AnswerResult](t, body)
	if !ans.Correct || ans.Score != 1 || ans.Explanation != "Addition." {
		t.Errorf("answer = %+v", ans)
	}

	_, _, body = e.do(t, http.MethodGet, path, nil)
	if q := decode[quiz.Snapshot](t, body).Questions[0]; q.CorrectAnswerIndex != 0 {
		t.Errorf("answered question key = %d, want 0", q.CorrectAnswerIndex)
	}

	status, _, body = e.do(t, http.MethodPost, path+"/questions/"+first.ID+"/image", nil)
	if status != http.StatusOK || !strings.Contains(string(body), "data:image/png;base64,") {
		t.Errorf("image = %d %s", status, body)
	}

	if status, _, _ := e.do(t, http.MethodPost, path+"/next", nil); status != http.StatusOK {
		t.Errorf("next status = %d", status)
	}
	status, _, body = e.do(t, http.MethodPost, path+"/finish", nil)
	if status != http.StatusOK {
		t.Fatalf("finish status = %d", status)
	}
	done := decode[quiz.Snapshot](t, body)
	if done.Status != quiz.StatusCompleted || done.Score != 1 {
		t.Errorf("completed = %s score %d", done.Status, done.Score)
	}

	_, _, body = e.do(t, http.MethodGet, path+"/report", nil)
	rep := decode[report.Report](t, body)
	if rep.Score != 1 || rep.Total != 3 || rep.Unanswered != 2 {
		t.Errorf("report = %+v (%s)", rep, body)
	}

	status, _, body = e.do(t, http.MethodGet, "/api/history", nil)
	if status != http.StatusOK || !strings.Contains(string(body), `"percentage":33`) {
		t.Errorf("history = %d %s", status, body)
	}

	if status, _, _ := e.do(t, http.MethodPost, path+"/answers", map[string]any{"questionId": first.ID, "option": 1}); status != http.StatusConflict {
		t.Errorf("answer after finish status = %d, want 409", status)
	}
}

func TestExport(t *testing.T) {
	e := newEnv(t)
	created := e.create(t, practice(3))
	e.waitStatus(t, created.ID, quiz.StatusActive)
	path := "/api/sessions/" + created.ID

	if status, _, _ := e.do(t, http.MethodGet, path+"/export?format=pdf", nil, api.HeaderPlan, "pro_monthly"); status != http.StatusConflict {
		t.Errorf("export before finish status = %d, want 409", status)
	}
	e.do(t, http.MethodPost, path+"/finish", nil)

	tests := []struct {
		name   string
		query  string
		plan   string
		status int
		ctype  string
	}{
		{"free plan locked", "?format=pdf", "", http.StatusPaymentRequired, ""},
		{"unknown plan", "?format=pdf", "gold", http.StatusBadRequest, ""},
		{"unknown format", "?format=odt", "pro_yearly", http.StatusBadRequest, ""},
		{"pdf", "?format=pdf", "pro_monthly", http.StatusOK, "application/pdf"},
		{"word", "?format=word", "pro_monthly", http.StatusOK, "application/msword"},
		{"xlsx", "?format=xlsx", "pro_yearly", http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, hdr, body := e.do(t, http.MethodGet, path+"/export"+tt.query, nil, api.HeaderPlan, tt.plan)
			if status != tt.status {
				t.Fatalf("status = %d, want %d (%s)", status, tt.status, body)
			}
			if tt.ctype == "" {
				return
			}
			if hdr.Get("Content-Type") != tt.ctype {
				t.Errorf("Content-Type = %q", hdr.Get("Content-Type"))
			}
			if !strings.Contains(hdr.Get("Content-Disposition"), "dsc-quiz-") || len(body) == 0 {
				t.Errorf("Content-Disposition = %q, body %d bytes", hdr.Get("Content-Disposition"), len(body))
			}
		})
	}
}

func TestCreateSession_Rejections(t *testing.T) {
	e := newEnv(t)

	noSubject := practice(5)
	noSubject.Subject = ""

	tests := []struct {
		name   string
		cfg    quiz.Config
		plan   string
		status int
	}{
		{"invalid config", noSubject, "", http.StatusBadRequest},
		{"free plan limit", practice(20), "", http.StatusPaymentRequired},
		{"pro plan lifts limit", practice(20), "pro_monthly", http.StatusAccepted},
		{"unknown plan", practice(5), "platinum", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, body := e.do(t, http.MethodPost, "/api/sessions", tt.cfg, api.HeaderPlan, tt.plan)
			if status != tt.status {
				t.Errorf("status = %d, want %d (%s)", status, tt.status, body)
			}
		})
	}
}

func TestCreateSession_LanguageFromHeader(t *testing.T) {
	e := newEnv(t)
	cfg := practice(3)
	cfg.Language = ""

	snap := e.create(t, cfg, "Accept-Language", "hi-IN,hi;q=0.9,en;q=0.5")
	if snap.Config == nil || snap.Config.Language != quiz.Hindi {
		t.Errorf("config language = %+v, want Hindi", snap.Config)
	}
}

func TestSession_NotVisibleToOtherClients(t *testing.T) {
	e := newEnv(t)
	created := e.create(t, practice(3))

	status, _, _ := e.do(t, http.MethodGet, "/api/sessions/"+created.ID, nil, api.HeaderClientID, "someone-else")
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if status, _, _ := e.do(t, http.MethodGet, "/api/sessions/missing", nil); status != http.StatusNotFound {
		t.Errorf("missing session status = %d, want 404", status)
	}
}

func TestSession_ResetAndRestart(t *testing.T) {
	e := newEnv(t)
	created := e.create(t, practice(3))
	e.waitStatus(t, created.ID, quiz.StatusActive)
	path := "/api/sessions/" + created.ID

	status, _, body := e.do(t, http.MethodDelete, path, nil)
	if status != http.StatusOK || decode[quiz.Snapshot](t, body).Status != quiz.StatusIdle {
		t.Fatalf("reset = %d %s", status, body)
	}
	if status, _, _ := e.do(t, http.MethodPost, path+"/finish", nil); status != http.StatusConflict {
		t.Errorf("finish while idle status = %d, want 409", status)
	}

	if status, _, body := e.do(t, http.MethodPost, path+"/start", practice(3)); status != http.StatusAccepted {
		t.Fatalf("restart status = %d (%s)", status, body)
	}
	e.waitStatus(t, created.ID, quiz.StatusActive)
}

func TestSession_AuthExpiredNeedsReauth(t *testing.T) {
	e := newEnv(t)
	e.provider.Err = fmt.Errorf("gemini api error (status 401): %w", ai.ErrAuthExpired)

	created := e.create(t, practice(3))
	snap := e.waitStatus(t, created.ID, quiz.StatusError)
	if !snap.AuthExpired || snap.Authenticated || snap.ErrorMessage == "" {
		t.Fatalf("failed snapshot = %+v", snap)
	}

	path := "/api/sessions/" + created.ID
	if status, _, _ := e.do(t, http.MethodPost, path+"/retry", nil); status != http.StatusConflict {
		t.Errorf("retry before re-auth status = %d, want 409", status)
	}

	e.provider.Err = nil
	if status, _, _ := e.do(t, http.MethodPost, path+"/auth", nil); status != http.StatusOK {
		t.Errorf("auth status = %d", status)
	}
	if status, _, body := e.do(t, http.MethodPost, path+"/retry", nil); status != http.StatusAccepted {
		t.Fatalf("retry status = %d (%s)", status, body)
	}
	e.waitStatus(t, created.ID, quiz.StatusActive)
}

func TestRateLimit(t *testing.T) {
	e := newEnv(t, func(o *api.Options) {
		o.RatePerMinute = 1
		o.RateBurst = 1
	})

	e.create(t, practice(3))
	status, hdr, _ := e.do(t, http.MethodPost, "/api/sessions", practice(3))
	if status != http.StatusTooManyRequests {
		t.Fatalf("second create status = %d, want 429", status)
	}
	if hdr.Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", hdr.Get("Retry-After"))
	}

	// Other clients have their own bucket.
	if status, _, _ := e.do(t, http.MethodPost, "/api/sessions", practice(3), api.HeaderClientID, "client-2"); status != http.StatusAccepted {
		t.Errorf("other client status = %d, want 202", status)
	}
}

func TestWebsocket(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping websocket test in short mode")
	}
	e := newEnv(t)
	created := e.create(t, practice(3))
	e.waitStatus(t, created.ID, quiz.StatusActive)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(e.url, "http") + "/api/sessions/" + created.ID + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{api.HeaderClientID: []string{client}},
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	var first quiz.Update
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read initial update: %v", err)
	}
	if first.Kind != quiz.UpdateState || first.Status != quiz.StatusActive || first.Remaining <= 0 || first.Clock == "" {
		t.Errorf("initial update = %+v", first)
	}

	e.do(t, http.MethodPost, "/api/sessions/"+created.ID+"/finish", nil)
	for {
		var u quiz.Update
		if err := wsjson.Read(ctx, conn, &u); err != nil {
			t.Fatalf("read update: %v", err)
		}
		if u.Kind == quiz.UpdateState && u.Status == quiz.StatusCompleted {
			break
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t)
	created := e.create(t, practice(3))
	e.waitStatus(t, created.ID, quiz.StatusActive)

	_, _, body := e.do(t, http.MethodGet, "/metrics", nil)
	for _, want := range []string{
		`dsc_quizzes_started_total{mode="practice"} 1`,
		`dsc_ai_calls_total{outcome="ok",task="questions"} 1`,
		`route="/api/sessions/{id}`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
