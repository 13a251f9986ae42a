package core

import (
	"strings"
	"unicode"
)

// AggregateName is the column name of the whole-house meter.
const AggregateName = "aggregate"

// Vocabulary maps homogenized raw channel labels to canonical appliance
// names. Labels without an entry are their own canonical name.
type Vocabulary map[string]string

// UKDALEVocabulary returns a fresh copy of the aliases used for UK-DALE.
func UKDALEVocabulary() Vocabulary {
	return Vocabulary{
		"freezer":       "fridge",
		"fridgefreezer": "fridge",
		"washerdryer":   "washingmachine",
	}
}

// Homogenize lowercases a label and drops everything but letters and
// digits, so "Fridge Freezer" and "fridge_freezer" compare equal.
func Homogenize(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (vocabulary Vocabulary) Canonical(label string) string {
	name := Homogenize(label)
	if canonical, ok := vocabulary[name]; ok {
		return canonical
	}
	return name
}
