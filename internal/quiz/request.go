package quiz

import (
	"fmt"
	"strings"

	"github.com/p-n-ai/dsc-prep/internal/syllabus"
)

// GenerationRequest is everything the generator needs to produce one quiz.
type GenerationRequest struct {
	Mode       Mode            `json:"mode"`
	Post       syllabus.PostID `json:"post"`
	PostName   string          `json:"postName"`
	Language   Language        `json:"language"`
	Difficulty Difficulty      `json:"difficulty"`
	Count      int             `json:"count"`
	IsPYQ      bool            `json:"isPYQ"`

	// Practice mode.
	Subject string `json:"subject,omitempty"`
	Topic   string `json:"topic,omitempty"`

	// Exam mode.
	Distribution []syllabus.Allocation `json:"sectionDistribution,omitempty"`
}

// BuildRequest turns a configuration into a generation request. Exam mode
// distributes the question count over the post's pattern; an empty
// distribution is a configuration error.
func BuildRequest(cfg Config, table *syllabus.Table) (GenerationRequest, error) {
	post, ok := table.Post(cfg.Post)
	if !ok {
		return GenerationRequest{}, fmt.Errorf("%w: unknown post %q", ErrInvalidConfiguration, cfg.Post)
	}

	req := GenerationRequest{
		Mode:       cfg.Mode,
		Post:       post.ID,
		PostName:   post.Name,
		Language:   cfg.Language,
		Difficulty: cfg.Difficulty,
		Count:      cfg.QuestionCount,
		IsPYQ:      cfg.IsPYQ,
	}

	if cfg.Mode == ModeExam {
		dist, err := syllabus.Distribute(post.Pattern, cfg.QuestionCount, cfg.Subject)
		if err != nil {
			return GenerationRequest{}, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		}
		req.Distribution = dist
		return req, nil
	}

	req.Subject = cfg.Subject
	req.Topic = strings.TrimSpace(cfg.Topic)
	if req.Topic == "" {
		req.Topic = DefaultTopic
	}
	return req, nil
}

// SystemPrompt renders the examiner instructions.
func (r GenerationRequest) SystemPrompt() string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a world-class educational examiner specialized in the Andhra Pradesh DSC/TRT syllabus.\n")
	fmt.Fprintf(&b, "Generate %d high-quality MCQs for %s in %s.\n\n", r.Count, r.PostName, r.Language)

	if r.Mode == ModeExam {
		b.WriteString("MODE: FULL EXAM SIMULATION\nDistribution:\n")
		for _, d := range r.Distribution {
			fmt.Fprintf(&b, "- %s: %d\n", d.Name, d.Count)
		}
		b.WriteString("Set each question's 'section' field to the section it belongs to.\n")
	} else {
		b.WriteString("MODE: SUBJECT PRACTICE\n")
		fmt.Fprintf(&b, "Subject: %s.\n", r.Subject)
		fmt.Fprintf(&b, "Topic: %s.\n", r.Topic)
		fmt.Fprintf(&b, "Count: %d questions.\n", r.Count)
	}

	if r.IsPYQ {
		b.WriteString("\nPREVIOUS YEAR QUESTIONS:\n")
		b.WriteString("Prefer authentic questions from previous AP DSC/TET/TRT papers. ")
		b.WriteString("For every question fill 'sourceExam' with the exam name and 'sourceYear' with the year it appeared.\n")
	}

	b.WriteString("\nCRITICAL VISUAL PROMPT RULE:\n")
	b.WriteString("The 'visualPrompt' field will be used by an advanced image generator.\n")
	b.WriteString("- Describe a professional, clear educational diagram.\n")
	b.WriteString("- MANDATORY: All labels in the image prompt must be in ENGLISH font for perfect legibility.\n")
	b.WriteString("- Example: \"A cross-section of a volcano with labels 'Magma Chamber', 'Vent', and 'Crater' in clear English sans-serif font.\"\n\n")

	fmt.Fprintf(&b, "Language of Question/Options: %s.\n", r.Language)
	fmt.Fprintf(&b, "Difficulty: %s.\n", r.Difficulty)
	b.WriteString("Every question has exactly 4 options and 'correctAnswerIndex' is the 0-based index of the right one.")

	return b.String()
}

// UserPrompt renders the short user turn that triggers generation.
func (r GenerationRequest) UserPrompt() string {
	return fmt.Sprintf("Generate %d JSON MCQs for AP DSC %s in %s.", r.Count, r.PostName, r.Language)
}
