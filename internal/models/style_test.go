package models

import "testing"

func TestParseStyle(t *testing.T) {
	tests := []struct {
		input   string
		want    Style
		wantErr bool
	}{
		{"", DefaultStyle, false},
		{"heartwarming", StyleHeartwarming, false},
		{"  Suspense ", StyleSuspense, false},
		{"sci-fi", StyleSciFi, false},
		{"fantasy", StyleAdventure, false},
		{"limerick", Style("limerick"), true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStyle(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStyle(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStyle(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStylesClosedSet(t *testing.T) {
	all := Styles()
	if len(all) != 5 {
		t.Fatalf("expected 5 styles, got %d", len(all))
	}
	if all[0] != DefaultStyle {
		t.Errorf("expected first style to be the default, got %q", all[0])
	}
	for _, s := range all {
		if !s.Known() {
			t.Errorf("style %q should be known", s)
		}
		if s.Label() == string(s) {
			t.Errorf("style %q has no label", s)
		}
	}

	// Mutating the returned slice must not leak into the package state.
	all[0] = "mutated"
	if Styles()[0] != DefaultStyle {
		t.Error("Styles returned a shared slice")
	}
}
