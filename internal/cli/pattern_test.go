package cli

import (
	"testing"
)

func TestMatchPaths(t *testing.T) {
	paths := []string{
		"/home/alice/docs/constitution.md",
		"/home/alice/docs/values.md",
		"/home/alice/notes/journal.txt",
	}

	tests := []struct {
		name    string
		pattern string
		want    int
		wantErr bool
	}{
		{"exact full path", "/home/alice/docs/values.md", 1, false},
		{"exact base name", "constitution.md", 1, false},
		{"glob on base", "*.md", 2, false},
		{"glob on full path", "/home/alice/docs/*", 2, false},
		{"question mark", "values.m?", 1, false},
		{"no match", "missing.txt", 0, true},
		{"bad pattern", "[", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchPaths(tt.pattern, paths)
			if tt.wantErr {
				if err == nil {
					t.Errorf("MatchPaths(%q) should fail", tt.pattern)
				}
				return
			}
			if err != nil {
				t.Fatalf("MatchPaths(%q) failed: %v", tt.pattern, err)
			}
			if len(got) != tt.want {
				t.Errorf("MatchPaths(%q) = %d paths, want %d", tt.pattern, len(got), tt.want)
			}
		})
	}
}
