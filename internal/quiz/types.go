// Package quiz owns a quiz session: request building, question generation,
// the lifecycle state machine, answer scoring and the countdown.
package quiz

import (
	"errors"
	"fmt"
	"slices"

	"github.com/p-n-ai/dsc-prep/internal/syllabus"
)

// Mode selects between single-subject practice and a weighted mock exam.
type Mode string

const (
	ModePractice Mode = "practice"
	ModeExam     Mode = "exam"
)

// Difficulty of the generated questions.
type Difficulty string

const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
	Hard   Difficulty = "Hard"
)

// Difficulties lists the accepted difficulty levels.
var Difficulties = []Difficulty{Easy, Medium, Hard}

const (
	// DefaultTopic stands for "no topic restriction" in practice mode.
	DefaultTopic = "General Syllabus Mix"

	DefaultQuestionCount = 10
	DefaultTimeLimit     = 15 // minutes
	MaxQuestionCount     = 100
)

// Config is a submitted quiz configuration. It is not modified after Start.
type Config struct {
	Mode          Mode            `json:"mode"`
	Post          syllabus.PostID `json:"post"`
	Language      Language        `json:"language"`
	Subject       string          `json:"subject"`
	Topic         string          `json:"topic,omitempty"`
	Difficulty    Difficulty      `json:"difficulty"`
	QuestionCount int             `json:"questionCount"`
	IsPYQ         bool            `json:"isPYQ"`
	TimeLimit     int             `json:"timeLimit"` // minutes
}

// DefaultConfig returns the configuration offered to a first-time visitor.
func DefaultConfig(table *syllabus.Table) Config {
	post := table.FirstPost()
	cfg := Config{
		Mode:          ModePractice,
		Post:          post.ID,
		Language:      English,
		Difficulty:    Medium,
		QuestionCount: DefaultQuestionCount,
		TimeLimit:     DefaultTimeLimit,
	}
	if len(post.Subjects) > 0 {
		cfg.Subject = post.Subjects[0]
	}
	return cfg
}

// Validate checks the configuration against the syllabus. All problems are
// reported together, wrapped in ErrInvalidConfiguration.
func (c Config) Validate(table *syllabus.Table) error {
	var errs []error

	switch c.Mode {
	case ModePractice, ModeExam:
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Mode))
	}

	if _, ok := table.Post(c.Post); !ok {
		errs = append(errs, fmt.Errorf("unknown post %q", c.Post))
	}
	if !c.Language.Valid() {
		errs = append(errs, fmt.Errorf("unsupported language %q", c.Language))
	}
	if !c.Difficulty.Valid() {
		errs = append(errs, fmt.Errorf("unknown difficulty %q", c.Difficulty))
	}
	if c.QuestionCount <= 0 || c.QuestionCount > MaxQuestionCount {
		errs = append(errs, fmt.Errorf("question count must be between 1 and %d, got %d", MaxQuestionCount, c.QuestionCount))
	}
	if c.TimeLimit <= 0 {
		errs = append(errs, fmt.Errorf("time limit must be positive, got %d", c.TimeLimit))
	}

	switch {
	case c.Mode == ModePractice && c.Subject == "":
		errs = append(errs, errors.New("practice mode needs a subject"))
	case c.Mode == ModeExam && c.Subject != "" && !slices.Contains(table.StreamSubjects(c.Post), c.Subject):
		errs = append(errs, fmt.Errorf("subject %q is not a content stream of post %q", c.Subject, c.Post))
	case c.Subject != "" && !table.HasSubject(c.Post, c.Subject):
		errs = append(errs, fmt.Errorf("subject %q is not offered for post %q", c.Subject, c.Post))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfiguration, errors.Join(errs...))
}

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	for _, v := range Difficulties {
		if d == v {
			return true
		}
	}
	return false
}

// Question is one generated multiple-choice item.
type Question struct {
	ID                 string   `json:"id"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
	Explanation        string   `json:"explanation"`
	AdditionalInfo     string   `json:"additionalInfo"`
	VisualPrompt       string   `json:"visualPrompt"`
	Section            string   `json:"section,omitempty"`
	SourceExam         string   `json:"sourceExam,omitempty"`
	SourceYear         string   `json:"sourceYear,omitempty"`
}
