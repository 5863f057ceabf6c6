// Package phrase holds the categorized phrase sets that feed the synthetic
// chat, the process-wide cache of AI-generated sets and the per-user topic
// quota ledger.
//
// Topics are always keyed by their normalized form (see [Normalize]). The
// cache and the ledger are independent maps: a user may own a topic that is
// not cached yet (generation in flight), and a cached topic may be owned by
// nobody.
package phrase

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Category is a bucket of chat messages with a shared flavour.
type Category string

const (
	CategoryGameplay  Category = "gameplay"
	CategoryReactions Category = "reactions"
	CategoryQuestions Category = "questions"
	CategoryComments  Category = "comments"
	CategoryEmotes    Category = "emotes"
)

// Mode selects the category vocabulary and the prompt flavour.
type Mode string

const (
	// ModeGame is the default: the topic is a video game.
	ModeGame Mode = "game"

	// ModeJustChatting treats the topic as a free conversation subject.
	ModeJustChatting Mode = "justchatting"
)

// ParseMode maps a request value to a [Mode]. The empty string selects
// [ModeGame]; anything else unknown is an error.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeGame:
		return ModeGame, nil
	case ModeJustChatting:
		return ModeJustChatting, nil
	default:
		return "", fmt.Errorf("phrase: unknown mode %q", s)
	}
}

// Categories returns the category keys a phrase set for m must carry, in
// the order the message generator weighs them.
func (m Mode) Categories() []Category {
	if m == ModeJustChatting {
		return []Category{CategoryComments, CategoryReactions, CategoryQuestions, CategoryEmotes}
	}
	return []Category{CategoryGameplay, CategoryReactions, CategoryQuestions, CategoryEmotes}
}

// Set maps a category to its candidate phrases. Sets handed out by the
// store are shared and must be treated as read-only.
type Set map[Category][]string

// Phrases returns the phrases of c, or nil when the category is absent.
func (s Set) Phrases(c Category) []string {
	return s[c]
}

// Clone returns a deep copy of s.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for c, p := range s {
		out[c] = slices.Clone(p)
	}
	return out
}

// Normalized returns a copy of s in which every present category is a
// non-nil slice, so it always encodes as a JSON array. Categories in
// required that are missing are added as empty slices.
func (s Set) Normalized(required ...Category) Set {
	out := make(Set, len(s)+len(required))
	for c, p := range s {
		if p == nil {
			p = []string{}
		}
		out[c] = slices.Clone(p)
	}
	for _, c := range required {
		if _, ok := out[c]; !ok {
			out[c] = []string{}
		}
	}
	return out
}

// Normalize returns the cache and quota key for a topic name: lower-cased
// and trimmed.
func Normalize(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

// Entry is one cached phrase set. Entries are replaced wholesale and never
// mutated.
type Entry struct {
	Phrases     Set
	GeneratedAt time.Time
	GeneratedBy string
	Mode        Mode
}

// Quota is the topic ledger of a single user.
type Quota struct {
	// Games are the normalized topics owned by the user, in insertion order.
	Games     []string
	CreatedAt time.Time
}

// Stats summarizes the store contents for diagnostics.
type Stats struct {
	Topics int      `json:"totalTopics"`
	Users  int      `json:"totalUsers"`
	Keys   []string `json:"topics"`
}
