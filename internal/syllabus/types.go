package syllabus

import "github.com/samber/lo"

// PostID identifies a teaching post category.
type PostID string

const (
	SGT                     PostID = "sgt"
	SA                      PostID = "sa"
	TGT                     PostID = "tgt"
	PGT                     PostID = "pgt"
	Principal               PostID = "principal"
	PET                     PostID = "pet"
	SpecialEducationTeacher PostID = "special-education"
)

// Section is one weighted slice of a post's mock exam.
type Section struct {
	Name          string `yaml:"section" json:"name"`
	Weight        int    `yaml:"weight" json:"weight"`
	IsContent     bool   `yaml:"is_content" json:"isContent,omitempty"`
	IsMethodology bool   `yaml:"is_methodology" json:"isMethodology,omitempty"`
}

// Post describes a teaching post: its practice subjects and exam pattern.
type Post struct {
	ID       PostID    `yaml:"id" json:"id"`
	Name     string    `yaml:"name" json:"name"`
	Subjects []string  `yaml:"subjects" json:"subjects"`
	Pattern  []Section `yaml:"pattern" json:"pattern"`
}

// TotalWeight returns the sum of the post's section weights.
func (p Post) TotalWeight() int {
	return lo.SumBy(p.Pattern, func(s Section) int { return s.Weight })
}

// Allocation is the number of questions assigned to one section.
type Allocation struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ExamSize is a preset mock-test size with its suggested time limit.
type ExamSize struct {
	Label     string `json:"label"`
	Count     int    `json:"count"`
	TimeLimit int    `json:"timeLimit"` // minutes
}

// ExamSizes are the mock-test presets offered in exam mode.
var ExamSizes = []ExamSize{
	{Label: "Mini", Count: 20, TimeLimit: 30},
	{Label: "Std", Count: 40, TimeLimit: 60},
	{Label: "Long", Count: 60, TimeLimit: 90},
}

// PracticeSizes are the question counts offered in practice mode.
var PracticeSizes = []int{5, 10, 15, 20}

type postsFile struct {
	Posts []Post `yaml:"posts"`
}

type topicGroup struct {
	Subject string   `yaml:"subject"`
	Items   []string `yaml:"items"`
}

type topicsFile struct {
	Topics []topicGroup `yaml:"topics"`
}
