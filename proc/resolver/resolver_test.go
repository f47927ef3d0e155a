package resolver

import "testing"

func TestResolve(t *testing.T) {
	const id = "dQw4w9WgXcQ"

	tests := []struct {
		name   string
		input  string
		wantID string
		wantOK bool
	}{
		{"watch url", "https://www.youtube.com/watch?v=" + id, id, true},
		{"watch url with playlist", "https://www.youtube.com/watch?v=" + id + "&list=PL0123456789", id, true},
		{"watch url with timestamp", "https://youtube.com/watch?v=" + id + "#t=30", id, true},
		{"short link", "https://youtu.be/" + id, id, true},
		{"short link with query", "youtu.be/" + id + "?si=abcdef", id, true},
		{"mobile", "https://m.youtube.com/watch?v=" + id, id, true},
		{"music", "https://music.youtube.com/watch?v=" + id, id, true},
		{"embed", "https://www.youtube.com/embed/" + id, id, true},
		{"v path", "//www.youtube.com/v/" + id, id, true},
		{"shorts", "https://youtube.com/shorts/" + id, id, true},
		{"no scheme", "www.youtube.com/watch?v=" + id, id, true},
		{"bare id", id, id, true},
		{"bare id with spaces", "  " + id + "\n", id, true},

		{"empty", "", "", false},
		{"free text", "never gonna give you up", "", false},
		{"other host", "https://example.com/watch?v=" + id, "", false},
		{"lookalike host", "https://youtuxbe/" + id, "", false},
		{"unsupported scheme", "ftp://youtube.com/watch?v=" + id, "", false},
		{"too short for bare id", "dQw4w9", "", false},
		{"host only", "https://youtube.com/", "", false},
		{"playlist page", "https://www.youtube.com/playlist?list=PL0123456789", "", false},
		{"watch without v", "https://www.youtube.com/watch", "", false},
		{"watch with other query", "https://www.youtube.com/watch?list=PL0123456789", "", false},
		{"channel page", "https://www.youtube.com/@somechannel", "", false},
		{"id too long", "https://youtu.be/" + id + "X", "", false},
		{"id too short", "https://youtu.be/dQw4w9", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.input)
			if ok != tt.wantOK || got != tt.wantID {
				t.Errorf("Resolve(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestResolveEquivalentShapes(t *testing.T) {
	const id = "aBcD_eF-123"
	shapes := []string{
		id,
		CanonicalURL(id),
		"https://youtu.be/" + id,
		"https://www.youtube.com/embed/" + id,
	}

	for _, s := range shapes {
		got, ok := Resolve(s)
		if !ok || got != id {
			t.Errorf("Resolve(%q) = (%q, %v), want (%q, true)", s, got, ok, id)
		}
	}
}

func TestLooksLikeID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"dQw4w9WgXcQ", true},
		{" lofi-beats1 ", true},
		{"dQw4w9", false},
		{"lofi beats 1", false},
		{"https://youtu.be/dQw4w9WgXcQ", false},
	}
	for _, tt := range tests {
		if got := LooksLikeID(tt.in); got != tt.want {
			t.Errorf("LooksLikeID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalURLRoundTrip(t *testing.T) {
	const id = "dQw4w9WgXcQ"
	url := CanonicalURL(id)
	if url != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Fatalf("CanonicalURL(%q) = %q", id, url)
	}
	if got, ok := Resolve(url); !ok || got != id {
		t.Errorf("Resolve(CanonicalURL(%q)) = (%q, %v)", id, got, ok)
	}
}

func TestLooksLikeURL(t *testing.T) {
	tests := map[string]bool{
		"https://youtu.be/x":   true,
		"http://example.com":   true,
		"//youtube.com/v/x":    true,
		"lofi hip hop":         false,
		"youtube.com/watch?v=": false,
	}
	for in, want := range tests {
		if got := LooksLikeURL(in); got != want {
			t.Errorf("LooksLikeURL(%q) = %v, want %v", in, got, want)
		}
	}
}
