package scoring

import (
	"strings"
	"unicode"
)

// colorWords is the closed vocabulary recognized in clothing descriptions.
// Synonyms map onto a canonical color.
var colorWords = map[string]string{ //nolint:gochecknoglobals // fixed lookup table
	"red":    "red",
	"blue":   "blue",
	"navy":   "blue",
	"green":  "green",
	"yellow": "yellow",
	"orange": "orange",
	"white":  "white",
	"black":  "black",
	"gray":   "gray",
	"grey":   "gray",
	"brown":  "brown",
	"pink":   "pink",
	"purple": "purple",
	"beige":  "beige",
	"khaki":  "beige",
}

// DominantColor returns the first known color word in a clothing description,
// or "" when the description names no color.
func DominantColor(description string) string {
	fields := strings.FieldsFunc(strings.ToLower(description), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, f := range fields {
		if c, ok := colorWords[f]; ok {
			return c
		}
	}
	return ""
}
