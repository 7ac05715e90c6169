package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/dsc-prep/internal/ai"
	"github.com/p-n-ai/dsc-prep/internal/syllabus"
)

const (
	msgAuthExpired      = "Subscriber session expired. Please re-authenticate your API key."
	msgGenerationFailed = "Failed to generate questions. Ensure your subscriber key is active."

	updateBuffer = 16
)

// SessionConfig holds dependencies for a session.
type SessionConfig struct {
	ID          string // generated when empty
	ClientID    string
	Table       *syllabus.Table
	Generator   Generator
	Illustrator Illustrator // optional
	Results     ResultStore // default: in-memory
	Events      EventLogger // default: discard
	NewTicker   func(time.Duration) Ticker
	Now         func() time.Time
	Timeout     time.Duration // bounds each generation call; 0 means none
}

// Session is one client's quiz. All methods are safe for concurrent use;
// mutations are serialized so timer ticks always observe the latest answers.
type Session struct {
	id          string
	clientID    string
	table       *syllabus.Table
	generator   Generator
	illustrator Illustrator
	results     ResultStore
	events      EventLogger
	newTicker   func(time.Duration) Ticker
	now         func() time.Time
	timeout     time.Duration

	mu            sync.Mutex
	state         State
	images        map[string]string
	inflight      map[string]chan struct{}
	epoch         uint64
	cancelGen     context.CancelFunc
	cd            *countdown
	authenticated bool
	closed        bool
	lastActive    time.Time

	subMu   sync.Mutex
	subs    map[int]chan Update
	nextSub int
}

// NewSession creates an idle session.
func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		id:            cfg.ID,
		clientID:      cfg.ClientID,
		table:         cfg.Table,
		generator:     cfg.Generator,
		illustrator:   cfg.Illustrator,
		results:       cfg.Results,
		events:        cfg.Events,
		newTicker:     cfg.NewTicker,
		now:           cfg.Now,
		timeout:       cfg.Timeout,
		state:         Idle{},
		images:        make(map[string]string),
		inflight:      make(map[string]chan struct{}),
		authenticated: true,
		subs:          make(map[int]chan Update),
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.results == nil {
		s.results = NewMemoryResultStore()
	}
	if s.events == nil {
		s.events = NopEventLogger{}
	}
	if s.newTicker == nil {
		s.newTicker = NewTimeTicker
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.lastActive = s.now()
	return s
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// ClientID returns the owning client's ID.
func (s *Session) ClientID() string { return s.clientID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start validates cfg, generates questions and enters the active state. It
// blocks for the duration of the generation call. Configuration errors leave
// the state unchanged; generation errors move the session to the error state.
func (s *Session) Start(ctx context.Context, cfg Config) error {
	return s.generate(ctx, &cfg)
}

// Retry regenerates with the configuration of the failed attempt.
func (s *Session) Retry(ctx context.Context) error {
	return s.generate(ctx, nil)
}

// StartAsync is Start without waiting for the generator. It returns once the
// session is generating or the start was rejected; the outcome is visible
// through Snapshot and Subscribe.
func (s *Session) StartAsync(ctx context.Context, cfg Config) error {
	return s.launch(ctx, &cfg)
}

// RetryAsync is Retry without waiting for the generator.
func (s *Session) RetryAsync(ctx context.Context) error {
	return s.launch(ctx, nil)
}

func (s *Session) generate(ctx context.Context, cfg *Config) error {
	pending, out, err := s.begin(ctx, cfg)
	if err != nil {
		return err
	}
	s.flush(out)
	return s.await(pending)
}

func (s *Session) launch(ctx context.Context, cfg *Config) error {
	pending, out, err := s.begin(ctx, cfg)
	if err != nil {
		return err
	}
	s.flush(out)
	go func() {
		_ = s.await(pending)
	}()
	return nil
}

// pendingGeneration is a generation call started under one epoch.
type pendingGeneration struct {
	ctx    context.Context
	epoch  uint64
	config Config
	req    GenerationRequest
}

// begin moves to generating. A nil cfg retries the failed configuration.
func (s *Session) begin(ctx context.Context, cfg *Config) (pendingGeneration, outbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out outbox
	if s.closed {
		return pendingGeneration{}, out, ErrClosed
	}
	switch st := s.state.(type) {
	case Failed:
		if cfg == nil {
			c := st.Config
			cfg = &c
		}
	case Idle:
		if cfg == nil {
			return pendingGeneration{}, out, fmt.Errorf("%w: retry is only valid after a failed generation", ErrInvalidTransition)
		}
	case Generating:
		return pendingGeneration{}, out, ErrGenerationInFlight
	default:
		return pendingGeneration{}, out, fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, st.Status())
	}
	if !s.authenticated {
		return pendingGeneration{}, out, ErrAuthRequired
	}

	if err := cfg.Validate(s.table); err != nil {
		return pendingGeneration{}, out, err
	}
	req, err := BuildRequest(*cfg, s.table)
	if err != nil {
		return pendingGeneration{}, out, err
	}

	s.epoch++
	var (
		genCtx context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		genCtx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		genCtx, cancel = context.WithCancel(ctx)
	}
	s.cancelGen = cancel
	s.state = Generating{Config: *cfg, StartedAt: s.now()}
	s.touchLocked()

	out.event(s, EventGenerationStarted, map[string]any{
		"mode":  string(cfg.Mode),
		"post":  string(cfg.Post),
		"count": cfg.QuestionCount,
	})
	out.update(s.stateUpdateLocked())
	return pendingGeneration{ctx: genCtx, epoch: s.epoch, config: *cfg, req: req}, out, nil
}

// await runs the generator without holding the lock and applies the result
// only if the session has not been reset or closed meanwhile.
func (s *Session) await(p pendingGeneration) error {
	questions, genErr := s.generator.Generate(p.ctx, p.req)
	cfg := p.config

	s.mu.Lock()
	if s.epoch != p.epoch || s.closed {
		s.mu.Unlock()
		slog.Info("discarding superseded generation result", "session_id", s.id)
		return ErrSuperseded
	}
	s.cancelGen()
	s.cancelGen = nil

	var out outbox
	if genErr == nil && len(questions) == 0 {
		genErr = fmt.Errorf("%w: no questions returned", ErrGeneration)
	}
	if genErr != nil {
		if !errors.Is(genErr, ErrGeneration) {
			genErr = fmt.Errorf("%w: %w", ErrGeneration, genErr)
		}
		authExpired := errors.Is(genErr, ai.ErrAuthExpired)
		if authExpired {
			s.authenticated = false
		}
		msg := msgGenerationFailed
		if authExpired {
			msg = msgAuthExpired
		}
		s.state = Failed{Config: cfg, Message: msg, AuthExpired: authExpired}
		out.event(s, EventGenerationFailed, map[string]any{
			"error":        genErr.Error(),
			"auth_expired": authExpired,
		})
		out.update(s.stateUpdateLocked())
		s.mu.Unlock()

		slog.Warn("question generation failed", "session_id", s.id, "error", genErr)
		s.flush(out)
		return genErr
	}

	s.state = Active{
		Config:    cfg,
		Questions: questions,
		Answers:   map[string]int{},
		StartedAt: s.now(),
	}
	clear(s.images)
	s.startCountdownLocked(cfg.TimeLimit)
	out.event(s, EventQuizStarted, map[string]any{"questions": len(questions)})
	out.update(s.stateUpdateLocked())
	s.mu.Unlock()

	s.flush(out)
	return nil
}

// AnswerResult describes a recorded answer.
type AnswerResult struct {
	QuestionID     string `json:"questionId"`
	Chosen         int    `json:"chosen"`
	CorrectIndex   int    `json:"correctAnswerIndex"`
	Correct        bool   `json:"correct"`
	Explanation    string `json:"explanation"`
	AdditionalInfo string `json:"additionalInfo"`
	Duplicate      bool   `json:"duplicate"` // the question was already answered
	Score          int    `json:"score"`
}

// RecordAnswer records the chosen option for a question. The first answer is
// final: repeated calls leave it unchanged and report Duplicate.
func (s *Session) RecordAnswer(questionID string, option int) (AnswerResult, error) {
	s.mu.Lock()
	a, ok := s.state.(Active)
	if !ok {
		s.mu.Unlock()
		return AnswerResult{}, ErrNotActive
	}
	q, ok := findQuestion(a.Questions, questionID)
	if !ok {
		s.mu.Unlock()
		return AnswerResult{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if option < 0 || option >= len(q.Options) {
		s.mu.Unlock()
		return AnswerResult{}, fmt.Errorf("%w: %d", ErrInvalidOption, option)
	}

	res := AnswerResult{
		QuestionID:     q.ID,
		CorrectIndex:   q.CorrectAnswerIndex,
		Explanation:    q.Explanation,
		AdditionalInfo: q.AdditionalInfo,
	}
	if prev, answered := a.Answers[questionID]; answered {
		res.Chosen = prev
		res.Correct = prev == q.CorrectAnswerIndex
		res.Duplicate = true
		res.Score = score(a.Questions, a.Answers)
		s.mu.Unlock()
		return res, nil
	}

	answers := maps.Clone(a.Answers)
	answers[questionID] = option
	a.Answers = answers
	s.state = a
	s.touchLocked()

	res.Chosen = option
	res.Correct = option == q.CorrectAnswerIndex
	res.Score = score(a.Questions, answers)

	var out outbox
	out.event(s, EventAnswerRecorded, map[string]any{
		"question_id": questionID,
		"correct":     res.Correct,
	})
	out.update(s.stateUpdateLocked())
	s.mu.Unlock()

	s.flush(out)
	return res, nil
}

// Score returns the running score while active, or the final score once
// completed.
func (s *Session) Score() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch st := s.state.(type) {
	case Active:
		return score(st.Questions, st.Answers), nil
	case Completed:
		return st.Score, nil
	}
	return 0, ErrNotActive
}

// Next advances to the following question; on the last question it finishes
// the quiz.
func (s *Session) Next() error {
	s.mu.Lock()
	a, ok := s.state.(Active)
	if !ok {
		s.mu.Unlock()
		return ErrNotActive
	}

	var out outbox
	if a.CurrentIndex < len(a.Questions)-1 {
		a.CurrentIndex++
		s.state = a
		s.touchLocked()
		out.update(s.stateUpdateLocked())
	} else {
		out = s.finishLocked(false)
	}
	s.mu.Unlock()

	s.flush(out)
	return nil
}

// Finish scores the quiz over the full question list and completes it.
func (s *Session) Finish() error {
	s.mu.Lock()
	if _, ok := s.state.(Active); !ok {
		s.mu.Unlock()
		return ErrNotActive
	}
	out := s.finishLocked(false)
	s.mu.Unlock()

	s.flush(out)
	return nil
}

// finishLocked completes an active quiz. The caller holds s.mu and has
// checked the state.
func (s *Session) finishLocked(timedOut bool) outbox {
	a := s.state.(Active)
	s.stopCountdownLocked()

	finished := s.now()
	final := score(a.Questions, a.Answers)
	s.state = Completed{
		Config:     a.Config,
		Questions:  a.Questions,
		Answers:    a.Answers,
		Score:      final,
		TimedOut:   timedOut,
		StartedAt:  a.StartedAt,
		FinishedAt: finished,
	}
	s.touchLocked()

	var out outbox
	out.result = &Result{
		ID:         uuid.NewString(),
		SessionID:  s.id,
		ClientID:   s.clientID,
		Mode:       a.Config.Mode,
		Post:       a.Config.Post,
		Subject:    a.Config.Subject,
		Language:   a.Config.Language,
		Difficulty: a.Config.Difficulty,
		Total:      len(a.Questions),
		Score:      final,
		TimedOut:   timedOut,
		StartedAt:  a.StartedAt,
		FinishedAt: finished,
	}
	out.event(s, EventQuizCompleted, map[string]any{
		"score":     final,
		"total":     len(a.Questions),
		"answered":  len(a.Answers),
		"timed_out": timedOut,
	})
	out.update(s.stateUpdateLocked())
	return out
}

// Reset returns to idle from any state. It cancels an in-flight generation,
// stops the countdown and drops cached images.
func (s *Session) Reset() {
	s.mu.Lock()
	s.epoch++
	if s.cancelGen != nil {
		s.cancelGen()
		s.cancelGen = nil
	}
	s.stopCountdownLocked()
	prev := s.state.Status()
	s.state = Idle{}
	s.images = make(map[string]string)
	s.touchLocked()

	var out outbox
	out.event(s, EventQuizReset, map[string]any{"from": string(prev)})
	out.update(s.stateUpdateLocked())
	s.mu.Unlock()

	s.flush(out)
}

// MarkAuthenticated records that the client supplied fresh credentials.
func (s *Session) MarkAuthenticated() {
	s.mu.Lock()
	s.authenticated = true
	s.mu.Unlock()
}

// Authenticated reports whether generation may be attempted.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// FetchImage returns the illustration for a question, generating it on first
// request. Image failures are logged and yield an empty result; only
// precondition violations are returned as errors.
func (s *Session) FetchImage(ctx context.Context, questionID string) (string, error) {
	s.mu.Lock()
	var (
		questions []Question
		lang      Language
	)
	switch st := s.state.(type) {
	case Active:
		questions, lang = st.Questions, st.Config.Language
	case Completed:
		questions, lang = st.Questions, st.Config.Language
	default:
		s.mu.Unlock()
		return "", ErrNotActive
	}
	q, ok := findQuestion(questions, questionID)
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if img, ok := s.images[questionID]; ok {
		s.mu.Unlock()
		return img, nil
	}
	if s.illustrator == nil || q.VisualPrompt == "" {
		s.mu.Unlock()
		return "", nil
	}
	if wait, ok := s.inflight[questionID]; ok {
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return "", nil
		}
		s.mu.Lock()
		img := s.images[questionID]
		s.mu.Unlock()
		return img, nil
	}

	done := make(chan struct{})
	s.inflight[questionID] = done
	epoch := s.epoch
	s.mu.Unlock()

	img, err := s.illustrator.Illustrate(ctx, q.VisualPrompt, lang)

	s.mu.Lock()
	delete(s.inflight, questionID)
	close(done)
	var out outbox
	switch {
	case err != nil:
		img = ""
		out.event(s, EventImageFailed, map[string]any{"question_id": questionID, "error": err.Error()})
	case s.epoch != epoch:
		img = ""
	case img != "":
		s.images[questionID] = img
	}
	s.mu.Unlock()

	if err != nil {
		slog.Warn("image generation failed", "session_id", s.id, "question_id", questionID, "error", err)
	}
	s.flush(out)
	return img, nil
}

// Images returns a copy of the image cache.
func (s *Session) Images() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.images)
}

// Close stops the countdown, abandons any generation and ends every
// subscription. A closed session rejects new starts.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.epoch++
	if s.cancelGen != nil {
		s.cancelGen()
		s.cancelGen = nil
	}
	s.stopCountdownLocked()
	s.mu.Unlock()

	s.subMu.Lock()
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.subMu.Unlock()
}

// LastActive returns the time of the last state change.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// busy reports whether work is still pending: a generation call or a
// running countdown.
func (s *Session) busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, generating := s.state.(Generating)
	return generating || s.cd != nil
}

func (s *Session) touchLocked() {
	s.lastActive = s.now()
}

func (s *Session) startCountdownLocked(minutes int) {
	if minutes <= 0 {
		return
	}
	cd := newCountdown(minutes*60, s.newTicker(time.Second))
	s.cd = cd
	go cd.run(s.tick)
}

func (s *Session) stopCountdownLocked() {
	if s.cd != nil {
		s.cd.stop()
		s.cd = nil
	}
}

// tick handles one countdown second. Ticks from a countdown that has been
// replaced or stopped are ignored.
func (s *Session) tick(cd *countdown) {
	s.mu.Lock()
	if s.cd != cd {
		s.mu.Unlock()
		return
	}
	cd.remaining--

	var out outbox
	if cd.remaining <= 0 {
		cd.remaining = 0
		out = s.finishLocked(true)
	} else {
		out.update(Update{
			Kind:      UpdateTick,
			Status:    StatusActive,
			Remaining: cd.remaining,
			Clock:     FormatClock(cd.remaining),
			Urgency:   UrgencyFor(cd.remaining),
		})
	}
	s.mu.Unlock()

	s.flush(out)
}

// outbox collects side effects produced under the session lock so they can
// run after it is released.
type outbox struct {
	events  []Event
	result  *Result
	updates []Update
}

func (o *outbox) event(s *Session, eventType string, data map[string]any) {
	o.events = append(o.events, Event{
		SessionID: s.id,
		ClientID:  s.clientID,
		EventType: eventType,
		Data:      data,
		CreatedAt: s.now(),
	})
}

func (o *outbox) update(u Update) {
	o.updates = append(o.updates, u)
}

func (s *Session) flush(out outbox) {
	for _, e := range out.events {
		if err := s.events.LogEvent(e); err != nil {
			slog.Warn("failed to log quiz event", "session_id", s.id, "type", e.EventType, "error", err)
		}
	}
	if out.result != nil {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		if err := s.results.SaveResult(ctx, *out.result); err != nil {
			slog.Error("failed to save quiz result", "session_id", s.id, "error", err)
		}
		cancel()
	}
	for _, u := range out.updates {
		s.publish(u)
	}
}
