// Package syllabus holds the static post/subject/pattern table and the
// exam-mode section distribution.
package syllabus

import (
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var builtin embed.FS

// Table is the loaded syllabus: posts in display order plus topic suggestions.
type Table struct {
	order  []PostID
	posts  map[PostID]Post
	topics []topicGroup
	mu     sync.RWMutex
}

// Default returns the table compiled into the binary.
func Default() (*Table, error) {
	t := newTable()
	for _, name := range []string{"data/posts.yaml", "data/topics.yaml"} {
		data, err := builtin.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		if err := t.parse(name, data); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Load returns the built-in table with any YAML files under dir applied on
// top. Posts with a known ID replace the built-in entry; new IDs are appended.
// An empty dir yields the built-in table.
func Load(dir string) (*Table, error) {
	t, err := Default()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return t, nil
	}

	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := t.parse(path, data); err != nil {
			slog.Warn("skipping invalid syllabus YAML", "path", path, "error", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading syllabus: %w", err)
	}

	slog.Info("syllabus loaded", "posts", len(t.order), "dir", dir)
	return t, nil
}

func newTable() *Table {
	return &Table{posts: make(map[PostID]Post)}
}

func (t *Table) parse(path string, data []byte) error {
	var pf postsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	var tf topicsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for _, p := range pf.Posts {
		if err := validatePost(p); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range pf.Posts {
		if _, exists := t.posts[p.ID]; !exists {
			t.order = append(t.order, p.ID)
		}
		t.posts[p.ID] = p
	}
	for _, g := range tf.Topics {
		t.setTopics(g)
	}
	return nil
}

func (t *Table) setTopics(g topicGroup) {
	for i := range t.topics {
		if t.topics[i].Subject == g.Subject {
			t.topics[i] = g
			return
		}
	}
	t.topics = append(t.topics, g)
}

func validatePost(p Post) error {
	if p.ID == "" {
		return fmt.Errorf("post without id")
	}
	if len(p.Subjects) == 0 {
		return fmt.Errorf("post %s has no subjects", p.ID)
	}
	if len(p.Pattern) == 0 {
		return fmt.Errorf("post %s has no exam pattern", p.ID)
	}
	for _, s := range p.Pattern {
		if s.Weight <= 0 {
			return fmt.Errorf("post %s: section %q has non-positive weight %d", p.ID, s.Name, s.Weight)
		}
	}
	return nil
}

// Post returns a post by ID.
func (t *Table) Post(id PostID) (Post, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.posts[id]
	return p, ok
}

// Posts returns all posts in table order.
func (t *Table) Posts() []Post {
	t.mu.RLock()
	defer t.mu.RUnlock()
	posts := make([]Post, 0, len(t.order))
	for _, id := range t.order {
		posts = append(posts, t.posts[id])
	}
	return posts
}

// FirstPost returns the first post in table order.
func (t *Table) FirstPost() Post {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.order) == 0 {
		return Post{}
	}
	return t.posts[t.order[0]]
}

// HasSubject reports whether subject is offered for the post.
func (t *Table) HasSubject(id PostID, subject string) bool {
	p, ok := t.Post(id)
	if !ok {
		return false
	}
	for _, s := range p.Subjects {
		if s == subject {
			return true
		}
	}
	return false
}

// StreamSubjects returns the subjects selectable as a content stream in exam
// mode. Common papers are excluded; SGT sits one fixed paper and has none.
func (t *Table) StreamSubjects(id PostID) []string {
	if id == SGT {
		return nil
	}
	p, ok := t.Post(id)
	if !ok {
		return nil
	}
	var out []string
	for _, s := range p.Subjects {
		if isCommonPaper(s) || strings.Contains(s, "Educational Psychology") || strings.Contains(s, "School Administration") {
			continue
		}
		out = append(out, s)
	}
	return out
}

func isCommonPaper(subject string) bool {
	return strings.Contains(subject, "General Knowledge") || strings.Contains(subject, "Perspectives")
}

// Quick-select subject categories.
const (
	QuickGK         = "GK"
	QuickPIE        = "PIE"
	QuickPsychology = "Psy"
	QuickContent    = "Con"
)

// QuickSubject resolves a quick-select category to one of the post's
// subjects. It returns false when the post has no matching subject.
func (t *Table) QuickSubject(id PostID, code string) (string, bool) {
	p, ok := t.Post(id)
	if !ok {
		return "", false
	}
	for _, s := range p.Subjects {
		switch code {
		case QuickGK:
			if strings.Contains(s, "General Knowledge") {
				return s, true
			}
		case QuickPIE:
			if strings.Contains(s, "Perspectives") {
				return s, true
			}
		case QuickPsychology:
			if strings.Contains(s, "Psychology") {
				return s, true
			}
		case QuickContent:
			if !isCommonPaper(s) && !strings.Contains(s, "Psychology") {
				return s, true
			}
		}
	}
	return "", false
}

// Topics returns topic suggestions for a subject. Subjects without their own
// list fall back to the first known subject whose name they contain, so
// "Mathematics (Content & Methodology)" gets the Mathematics topics.
func (t *Table) Topics(subject string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, g := range t.topics {
		if g.Subject == subject {
			return append([]string(nil), g.Items...)
		}
	}
	for _, g := range t.topics {
		if strings.Contains(subject, g.Subject) {
			return append([]string(nil), g.Items...)
		}
	}
	return nil
}

// SearchTopics filters a subject's suggestions by a fuzzy query, best match
// first. An empty query returns every suggestion.
func (t *Table) SearchTopics(subject, query string) []string {
	topics := t.Topics(subject)
	if query == "" {
		return topics
	}
	ranks := fuzzy.RankFindFold(query, topics)
	sort.Stable(ranks)
	out := make([]string, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, r.Target)
	}
	return out
}
