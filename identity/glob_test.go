package identity

import "testing"

func TestParseGlob(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "suffix glob", input: "user:*@example.com"},
		{name: "prefix glob", input: "bot:build-*"},
		{name: "interior glob", input: "service:ci-*-prod"},
		{name: "multiple wildcards", input: "user:*@*.example.com"},
		{name: "no separator", input: "justaname*", wantErr: true},
		{name: "unknown kind", input: "robot:*", wantErr: true},
		{name: "no wildcard", input: "user:joe@example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGlob(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseGlob(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		glob string
		id   string
		want bool
	}{
		{"user:*@example.com", "user:joe@example.com", true},
		{"user:*@example.com", "user:jane@example.com", true},
		{"user:*@example.com", "user:joe@other.com", false},
		{"user:*@example.com", "bot:joe@example.com", false},
		{"bot:build-*", "bot:build-host-17", true},
		{"bot:build-*", "bot:test-host-17", false},
		{"service:ci-*-prod", "service:ci-linux-prod", true},
		{"service:ci-*-prod", "service:ci-linux-dev", false},
		{"user:*", "user:anyone@anywhere.com", true},
		// A leading wildcard may match the empty string too.
		{"user:*@example.com", "user:@example.com", true},
		{"user:*", "service:anyone", false},
		// '*' is a wildcard, not a literal: the dot must not widen it.
		{"user:*@example.com", "user:joe@exampleXcom", false},
	}

	for _, tt := range tests {
		t.Run(tt.glob+"/"+tt.id, func(t *testing.T) {
			g, err := ParseGlob(tt.glob)
			if err != nil {
				t.Fatalf("ParseGlob(%q) error = %v", tt.glob, err)
			}
			if got := g.Match(MustParse(tt.id)); got != tt.want {
				t.Errorf("Glob(%q).Match(%q) = %v, want %v", tt.glob, tt.id, got, tt.want)
			}
		})
	}
}

func TestGlobZeroValue(t *testing.T) {
	var g Glob
	if g.Match(MustParse("user:joe@example.com")) {
		t.Error("zero glob matched an identity")
	}
}
