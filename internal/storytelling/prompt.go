package storytelling

import (
	"strings"

	"github.com/lehigh-university-libraries/picturebook/internal/models"
)

const captionPlaceholder = "{caption}"

// genericTemplate is used for any style outside the closed set.
const genericTemplate = "let me tell you a story about {caption}"

var templates = map[models.Style]string{
	models.StyleAdventure:    "In a land of ancient magic and uncharted wilds, an adventure began with {caption}. ",
	models.StyleHeartwarming: "This is a heartwarming story about {caption}, and the small kindness that changed everything. ",
	models.StyleSuspense:     "Nobody noticed it at first: {caption}. But by midnight, everyone in town was afraid. ",
	models.StyleSciFi:        "In the year 3042, long after the colonies went dark, the scanners picked up {caption}. ",
	models.StyleFable:        "Once upon a time, there was {caption}, and this is the lesson it taught the forest. ",
}

func init() {
	for _, s := range models.Styles() {
		if _, ok := templates[s]; !ok {
			panic("storytelling: no template for style " + string(s))
		}
	}
}

// Template returns the prompt template for style and whether it is one of the
// named styles.
func Template(style models.Style) (string, bool) {
	if tmpl, ok := templates[style]; ok {
		return tmpl, true
	}
	return genericTemplate, false
}

// BuildPrompt substitutes caption verbatim into the template for style.
func BuildPrompt(caption string, style models.Style) string {
	tmpl, _ := Template(style)
	return strings.Replace(tmpl, captionPlaceholder, caption, 1)
}
