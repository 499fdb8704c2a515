package songkey

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		title  string
		artist string
		want   string
	}{
		{
			name:   "lowercases both halves",
			title:  "Bohemian Rhapsody",
			artist: "Queen",
			want:   "bohemian rhapsody:queen",
		},
		{
			name:   "trims surrounding whitespace",
			title:  "  Yesterday ",
			artist: "\tThe Beatles\n",
			want:   "yesterday:the beatles",
		},
		{
			name:   "collapses inner whitespace runs",
			title:  "Bohemian   Rhapsody",
			artist: "Queen",
			want:   "bohemian rhapsody:queen",
		},
		{
			name:   "empty artist keeps the separator",
			title:  "Intro",
			artist: "",
			want:   "intro:",
		},
		{
			name:   "empty title and artist",
			title:  "",
			artist: "",
			want:   ":",
		},
		{
			name:   "unicode titles fold by case",
			title:  "Für Elise",
			artist: "BEETHOVEN",
			want:   "für elise:beethoven",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.title, tt.artist); got != tt.want {
				t.Errorf("Normalize(%q, %q) = %q, want %q", tt.title, tt.artist, got, tt.want)
			}
		})
	}
}

func TestNormalize_EquivalentSubmissionsCollide(t *testing.T) {
	base := Normalize("Bohemian Rhapsody", "Queen")
	variants := [][2]string{
		{"bohemian rhapsody", "queen"},
		{"BOHEMIAN RHAPSODY", "QUEEN"},
		{" Bohemian  Rhapsody ", " Queen "},
	}
	for _, v := range variants {
		if got := Normalize(v[0], v[1]); got != base {
			t.Errorf("Normalize(%q, %q) = %q, want %q", v[0], v[1], got, base)
		}
	}

	if Normalize("Bohemian Rhapsody", "Queen") == Normalize("Bohemian", "Rhapsody Queen") {
		t.Error("different title/artist splits must not share a key")
	}
}
