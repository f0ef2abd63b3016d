package common

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// HasAnyWord reports whether s contains any of words as a whole word, ignoring case.
func HasAnyWord(s string, words ...string) bool {
	for _, field := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		field = folder.String(field)
		for _, w := range words {
			if field == folder.String(w) {
				return true
			}
		}
	}
	return false
}

// FoldKey returns the case-insensitive lookup key for a city name.
func FoldKey(s string) string {
	return folder.String(strings.TrimSpace(s))
}

// RoundTo rounds a float to the given number of decimal places.
func RoundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}

// ClampInt limits a value between min and max.
func ClampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
