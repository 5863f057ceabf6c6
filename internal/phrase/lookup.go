package phrase

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// FuzzyThreshold is the minimum Jaro-Winkler similarity for a topic to
// resolve to a built-in alias it does not spell exactly.
const FuzzyThreshold = 0.94

// minFuzzyLen keeps short inputs like "bg" from matching anything.
const minFuzzyLen = 4

// Source tells where [Lookup] found a phrase set.
type Source int

const (
	SourceNone Source = iota
	SourceCache
	SourceBuiltin
)

// String returns the lower-case name used in logs.
func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceBuiltin:
		return "builtin"
	default:
		return "none"
	}
}

// Lookup resolves the phrase set for topic: the store first, then an exact
// built-in alias, then a fuzzy built-in alias. It never writes to store.
func Lookup(store Store, topic string) (Set, Source) {
	key := Normalize(topic)
	if store != nil {
		if s, ok := store.Get(key); ok {
			return s, SourceCache
		}
	}
	if s, ok := Builtin(key); ok {
		return s, SourceBuiltin
	}
	if alias, ok := MatchAlias(key); ok {
		return builtinSets[aliases[alias]], SourceBuiltin
	}
	return nil, SourceNone
}

// MatchAlias returns the built-in alias most similar to topic, provided the
// similarity reaches [FuzzyThreshold] and both spell the same numbers, so
// "baldurs gate 2" never resolves to "baldurs gate 3".
func MatchAlias(topic string) (alias string, ok bool) {
	key := Normalize(topic)
	if len(key) < minFuzzyLen {
		return "", false
	}
	if _, exact := aliases[key]; exact {
		return key, true
	}

	compact := strings.Join(strings.Fields(key), "")
	digits := digitsOf(key)

	var best float64
	for a := range aliases {
		if digitsOf(a) != digits {
			continue
		}
		score := matchr.JaroWinkler(key, a, false)
		if s := matchr.JaroWinkler(compact, strings.Join(strings.Fields(a), ""), false); s > score {
			score = s
		}
		// Ties break on the alias name so results do not depend on map order.
		if score > best || (score == best && score > 0 && a < alias) {
			best, alias = score, a
		}
	}
	if best < FuzzyThreshold {
		return "", false
	}
	return alias, true
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
