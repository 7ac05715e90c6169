// Package report turns a completed quiz into a results summary and review
// list, and writes it out as PDF, Word or spreadsheet documents.
package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/p-n-ai/dsc-prep/internal/quiz"
	"github.com/p-n-ai/dsc-prep/internal/syllabus"
)

// SkippedLabel stands in for the chosen answer of an unanswered question.
const SkippedLabel = "Skipped"

var (
	// ErrNotCompleted is returned when the session has no final score yet.
	ErrNotCompleted = errors.New("quiz is not completed")

	// ErrExport means the document could not be assembled or written. The
	// session is unaffected.
	ErrExport = errors.New("export failed")
)

// Tier is the headline grade of a result.
type Tier string

const (
	TierOutstanding Tier = "outstanding"
	TierGreat       Tier = "great"
	TierPractice    Tier = "practice"
)

// TierFor grades a percentage.
func TierFor(percentage int) Tier {
	switch {
	case percentage >= 90:
		return TierOutstanding
	case percentage >= 70:
		return TierGreat
	default:
		return TierPractice
	}
}

// Message returns the headline shown with the score.
func (t Tier) Message() string {
	switch t {
	case TierOutstanding:
		return "Outstanding! DSC Ready!"
	case TierGreat:
		return "Great Job!"
	default:
		return "Keep Practicing!"
	}
}

// Item is one reviewed question.
type Item struct {
	Number         int      `json:"number"`
	QuestionID     string   `json:"questionId"`
	Text           string   `json:"text"`
	Options        []string `json:"options"`
	Section        string   `json:"section,omitempty"`
	CorrectIndex   int      `json:"correctIndex"`
	CorrectAnswer  string   `json:"correctAnswer"`
	ChosenIndex    int      `json:"chosenIndex"` // -1 when skipped
	ChosenAnswer   string   `json:"chosenAnswer"`
	Skipped        bool     `json:"skipped"`
	Correct        bool     `json:"correct"`
	Explanation    string   `json:"explanation"`
	AdditionalInfo string   `json:"additionalInfo,omitempty"`
	SourceExam     string   `json:"sourceExam,omitempty"`
	SourceYear     string   `json:"sourceYear,omitempty"`
	Image          string   `json:"image,omitempty"` // data URL
}

// Report is the summary of a completed quiz.
type Report struct {
	SessionID  string          `json:"sessionId"`
	Mode       quiz.Mode       `json:"mode"`
	Post       syllabus.PostID `json:"post"`
	PostName   string          `json:"postName"`
	Subject    string          `json:"subject,omitempty"`
	Language   quiz.Language   `json:"language"`
	Difficulty quiz.Difficulty `json:"difficulty"`
	Score      int             `json:"score"`
	Total      int             `json:"total"`
	Percentage int             `json:"percentage"`
	Incorrect  int             `json:"incorrect"` // total minus score, skipped included
	Unanswered int             `json:"unanswered"`
	Tier       Tier            `json:"tier"`
	Message    string          `json:"message"`
	TimedOut   bool            `json:"timedOut"`
	FinishedAt time.Time       `json:"finishedAt"`
	Items      []Item          `json:"items"`
}

// Build assembles the report for a completed session snapshot. Items keep
// the question order; images come from the session cache.
func Build(snap quiz.Snapshot, table *syllabus.Table) (Report, error) {
	if snap.Status != quiz.StatusCompleted || snap.Config == nil {
		return Report{}, fmt.Errorf("%w: status %s", ErrNotCompleted, snap.Status)
	}
	cfg := snap.Config

	r := Report{
		SessionID:  snap.ID,
		Mode:       cfg.Mode,
		Post:       cfg.Post,
		PostName:   string(cfg.Post),
		Subject:    cfg.Subject,
		Language:   cfg.Language,
		Difficulty: cfg.Difficulty,
		Score:      snap.Score,
		Total:      len(snap.Questions),
		TimedOut:   snap.TimedOut,
		FinishedAt: snap.FinishedAt,
	}
	if table != nil {
		if post, ok := table.Post(cfg.Post); ok {
			r.PostName = post.Name
		}
	}

	r.Items = lo.Map(snap.Questions, func(q quiz.Question, i int) Item {
		item := Item{
			Number:         i + 1,
			QuestionID:     q.ID,
			Text:           q.Text,
			Options:        q.Options,
			Section:        q.Section,
			CorrectIndex:   q.CorrectAnswerIndex,
			CorrectAnswer:  optionText(q.Options, q.CorrectAnswerIndex),
			ChosenIndex:    -1,
			ChosenAnswer:   SkippedLabel,
			Skipped:        true,
			Explanation:    q.Explanation,
			AdditionalInfo: q.AdditionalInfo,
			SourceExam:     q.SourceExam,
			SourceYear:     q.SourceYear,
			Image:          snap.Images[q.ID],
		}
		if chosen, ok := snap.Answers[q.ID]; ok {
			item.ChosenIndex = chosen
			item.ChosenAnswer = optionText(q.Options, chosen)
			item.Skipped = false
			item.Correct = chosen == q.CorrectAnswerIndex
		}
		return item
	})

	r.Percentage = quiz.Percentage(r.Score, r.Total)
	r.Incorrect = r.Total - r.Score
	r.Unanswered = lo.CountBy(r.Items, func(it Item) bool { return it.Skipped })
	r.Tier = TierFor(r.Percentage)
	r.Message = r.Tier.Message()
	return r, nil
}

// Title is the document heading.
func (r Report) Title() string {
	if r.Subject != "" && r.Mode == quiz.ModePractice {
		return fmt.Sprintf("AP DSC %s: %s", r.PostName, r.Subject)
	}
	return "AP DSC " + r.PostName + " Mock Exam"
}

// ScoreLine is the "score / total (pct%)" header line.
func (r Report) ScoreLine() string {
	return fmt.Sprintf("Score: %d / %d (%d%%)", r.Score, r.Total, r.Percentage)
}

func optionText(options []string, i int) string {
	if i < 0 || i >= len(options) {
		return ""
	}
	return fmt.Sprintf("%c. %s", 'A'+i, options[i])
}
