package quiz

import (
	"maps"
	"slices"
	"time"
)

// Update kinds pushed to subscribers.
const (
	UpdateState = "state"
	UpdateTick  = "tick"
)

// Update is a change notification. Tick updates carry only the countdown;
// state updates follow every transition and recorded answer.
type Update struct {
	Kind      string  `json:"kind"`
	Status    Status  `json:"status"`
	Remaining int     `json:"remaining"`
	Clock     string  `json:"clock,omitempty"`
	Urgency   Urgency `json:"urgency,omitempty"`
	Score     int     `json:"score"`
}

func (s *Session) stateUpdateLocked() Update {
	u := Update{Kind: UpdateState, Status: s.state.Status()}
	switch st := s.state.(type) {
	case Active:
		u.Score = score(st.Questions, st.Answers)
	case Completed:
		u.Score = st.Score
	}
	if s.cd != nil {
		u.Remaining = s.cd.remaining
		u.Clock = FormatClock(s.cd.remaining)
		u.Urgency = UrgencyFor(s.cd.remaining)
	}
	return u
}

// Subscribe returns a channel of updates and a function that ends the
// subscription. Slow subscribers miss updates rather than block the session.
// The channel is closed when the session closes or cancel is called.
func (s *Session) Subscribe() (<-chan Update, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan Update, updateBuffer)
	if s.subs == nil {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
}

func (s *Session) publish(u Update) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Snapshot is a read-only copy of a session for rendering.
type Snapshot struct {
	ID            string            `json:"id"`
	ClientID      string            `json:"clientId"`
	Status        Status            `json:"status"`
	Config        *Config           `json:"config,omitempty"`
	Questions     []Question        `json:"questions,omitempty"`
	CurrentIndex  int               `json:"currentIndex"`
	Answers       map[string]int    `json:"answers,omitempty"`
	Score         int               `json:"score"`
	TimedOut      bool              `json:"timedOut,omitempty"`
	ErrorMessage  string            `json:"errorMessage,omitempty"`
	AuthExpired   bool              `json:"authExpired,omitempty"`
	Authenticated bool              `json:"authenticated"`
	Timed         bool              `json:"timed"`
	Remaining     int               `json:"remaining"`
	Clock         string            `json:"clock,omitempty"`
	Urgency       Urgency           `json:"urgency,omitempty"`
	Images        map[string]string `json:"images,omitempty"`
	StartedAt     time.Time         `json:"startedAt,omitzero"`
	FinishedAt    time.Time         `json:"finishedAt,omitzero"`
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:            s.id,
		ClientID:      s.clientID,
		Status:        s.state.Status(),
		Authenticated: s.authenticated,
	}
	switch st := s.state.(type) {
	case Generating:
		snap.Config = &st.Config
		snap.StartedAt = st.StartedAt
	case Active:
		snap.Config = &st.Config
		snap.Questions = slices.Clone(st.Questions)
		snap.CurrentIndex = st.CurrentIndex
		snap.Answers = maps.Clone(st.Answers)
		snap.Score = score(st.Questions, st.Answers)
		snap.StartedAt = st.StartedAt
	case Completed:
		snap.Config = &st.Config
		snap.Questions = slices.Clone(st.Questions)
		snap.CurrentIndex = len(st.Questions) - 1
		snap.Answers = maps.Clone(st.Answers)
		snap.Score = st.Score
		snap.TimedOut = st.TimedOut
		snap.StartedAt = st.StartedAt
		snap.FinishedAt = st.FinishedAt
	case Failed:
		snap.Config = &st.Config
		snap.ErrorMessage = st.Message
		snap.AuthExpired = st.AuthExpired
	}
	if s.cd != nil {
		snap.Timed = true
		snap.Remaining = s.cd.remaining
		snap.Clock = FormatClock(s.cd.remaining)
		snap.Urgency = UrgencyFor(s.cd.remaining)
	}
	if len(s.images) > 0 {
		snap.Images = maps.Clone(s.images)
	}
	return snap
}

// Answered reports whether the question has an answer.
func (s Snapshot) Answered(questionID string) bool {
	_, ok := s.Answers[questionID]
	return ok
}
