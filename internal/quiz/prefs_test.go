package quiz_test

import (
	"testing"

	"github.com/p-n-ai/dsc-prep/internal/quiz"
	"github.com/p-n-ai/dsc-prep/internal/syllabus"
)

func TestLoadPrefs(t *testing.T) {
	table := mustTable(t)
	defaults := quiz.DefaultConfig(table)

	saved := practiceConfig()
	saved.Post = syllabus.SA
	saved.Language = quiz.Urdu

	invalid := practiceConfig()
	invalid.QuestionCount = -4

	tests := []struct {
		name  string
		setup func(*quiz.MemoryPrefsStore)
		want  quiz.Config
	}{
		{"nothing stored", func(*quiz.MemoryPrefsStore) {}, defaults},
		{"stored config", func(s *quiz.MemoryPrefsStore) { _ = s.SaveConfig(t.Context(), "c1", saved) }, saved},
		{"corrupt JSON", func(s *quiz.MemoryPrefsStore) { quiz.PutRawPrefs(s, "c1", []byte("{not json")) }, defaults},
		{"invalid config", func(s *quiz.MemoryPrefsStore) { _ = s.SaveConfig(t.Context(), "c1", invalid) }, defaults},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := quiz.NewMemoryPrefsStore()
			tt.setup(store)
			if got := quiz.LoadPrefs(t.Context(), store, "c1", table); got != tt.want {
				t.Errorf("LoadPrefs() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMemoryPrefsStore_PerClient(t *testing.T) {
	store := quiz.NewMemoryPrefsStore()
	cfg := practiceConfig()

	if err := store.SaveConfig(t.Context(), "a", cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}
	if _, err := store.LoadConfig(t.Context(), "b"); err != quiz.ErrNoPrefs {
		t.Errorf("LoadConfig(b) error = %v, want ErrNoPrefs", err)
	}
	got, err := store.LoadConfig(t.Context(), "a")
	if err != nil || got != cfg {
		t.Errorf("LoadConfig(a) = %+v, %v", got, err)
	}
}
