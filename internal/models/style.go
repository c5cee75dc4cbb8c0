package models

import (
	"fmt"
	"strings"
)

// Style selects the prompt template used to seed a story.
type Style string

const (
	StyleAdventure    Style = "adventure"
	StyleHeartwarming Style = "heartwarming"
	StyleSuspense     Style = "suspense"
	StyleSciFi        Style = "scifi"
	StyleFable        Style = "fable"
)

// DefaultStyle is the first entry of Styles.
const DefaultStyle = StyleAdventure

var styles = []Style{StyleAdventure, StyleHeartwarming, StyleSuspense, StyleSciFi, StyleFable}

var styleLabels = map[Style]string{
	StyleAdventure:    "Adventure / Fantasy",
	StyleHeartwarming: "Heartwarming",
	StyleSuspense:     "Suspense / Thriller",
	StyleSciFi:        "Science Fiction",
	StyleFable:        "Fable",
}

// Styles returns the closed set of known styles in display order.
func Styles() []Style {
	out := make([]Style, len(styles))
	copy(out, styles)
	return out
}

// Known reports whether s is one of the five named styles.
func (s Style) Known() bool {
	_, ok := styleLabels[s]
	return ok
}

// Label is the human readable name of the style.
func (s Style) Label() string {
	if label, ok := styleLabels[s]; ok {
		return label
	}
	return string(s)
}

// ParseStyle normalizes a user supplied style name. An empty name yields
// DefaultStyle. Unknown names are returned as-is with an error so callers
// can decide whether to reject them or fall back to the generic template.
func ParseStyle(name string) (Style, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "":
		return DefaultStyle, nil
	case "fantasy", "adventure/fantasy":
		return StyleAdventure, nil
	case "thriller", "suspense/thriller":
		return StyleSuspense, nil
	case "sci-fi", "science fiction":
		return StyleSciFi, nil
	}
	s := Style(name)
	if !s.Known() {
		return s, fmt.Errorf("unknown style %q", name)
	}
	return s, nil
}
