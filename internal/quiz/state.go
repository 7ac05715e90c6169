package quiz

import "time"

// Status names a lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusActive     Status = "active"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// State is one lifecycle state. Each variant carries only the fields that are
// meaningful in it. Values are replaced, never mutated, on every transition.
type State interface {
	Status() Status
	isState()
}

// Idle is the initial state: no questions, no answers.
type Idle struct{}

// Generating waits for the generator.
type Generating struct {
	Config    Config
	StartedAt time.Time
}

// Active is a quiz being played.
type Active struct {
	Config       Config
	Questions    []Question
	CurrentIndex int
	Answers      map[string]int
	StartedAt    time.Time
}

// Completed is a scored quiz. Questions and answers are frozen.
type Completed struct {
	Config     Config
	Questions  []Question
	Answers    map[string]int
	Score      int
	TimedOut   bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed is the error state after a generation failure.
type Failed struct {
	Config      Config
	Message     string
	AuthExpired bool
}

func (Idle) Status() Status       { return StatusIdle }
func (Generating) Status() Status { return StatusGenerating }
func (Active) Status() Status     { return StatusActive }
func (Completed) Status() Status  { return StatusCompleted }
func (Failed) Status() Status     { return StatusError }

func (Idle) isState()       {}
func (Generating) isState() {}
func (Active) isState()     {}
func (Completed) isState()  {}
func (Failed) isState()     {}

// score counts answers matching the correct option. Unanswered questions
// never count.
func score(questions []Question, answers map[string]int) int {
	n := 0
	for _, q := range questions {
		if chosen, ok := answers[q.ID]; ok && chosen == q.CorrectAnswerIndex {
			n++
		}
	}
	return n
}

func findQuestion(questions []Question, id string) (Question, bool) {
	for _, q := range questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}
