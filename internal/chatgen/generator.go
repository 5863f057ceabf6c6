// Package chatgen produces single synthetic chat messages. Each message has
// a weighted random category, a phrase from the topic's phrase set (or a
// generic fallback) and a random viewer name.
package chatgen

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/chatsim/internal/observe"
	"github.com/MrWong99/chatsim/internal/phrase"
)

// Message is one chat event as sent to clients.
type Message struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	Content   string          `json:"content"`
	Timestamp int64           `json:"timestamp"`
	Category  phrase.Category `json:"category"`
}

// Usernames are the viewer names messages are attributed to.
var Usernames = []string{
	"ProGaming", "Viewer42", "Player123", "NoobMaster", "GamerPro",
	"EpicPlayer", "LegendaryKing", "DarkNinja", "ShadowGamer", "DragonSlayer",
	"MasterChief", "PixelWarrior", "StreamFan", "LiveViewer", "CoolDude69",
	"xXProXx", "GamingTV", "PlayerOne", "RetroGamer", "SpeedRunner",
}

// Option configures a [Generator].
type Option func(*Generator)

// WithRand sets the random source. Tests pass a seeded generator.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) {
		g.rng = r
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// WithIDs overrides message id generation. Defaults to random UUIDs.
func WithIDs(newID func() string) Option {
	return func(g *Generator) {
		g.newID = newID
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) {
		g.metrics = m
	}
}

// Generator builds chat messages from a phrase store. It only reads the
// store and is safe for concurrent use.
type Generator struct {
	store   phrase.Store
	now     func() time.Time
	newID   func() string
	metrics *observe.Metrics

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Generator reading from store.
func New(store phrase.Store, opts ...Option) *Generator {
	g := &Generator{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g
}

// Generate returns one message for topic. Content is never empty.
func (g *Generator) Generate(ctx context.Context, topic string, mode phrase.Mode) Message {
	set, src := phrase.Lookup(g.store, topic)
	g.metrics.RecordPhraseLookup(ctx, src.String())
	if src == phrase.SourceNone {
		set = phrase.Fallback(mode)
	}

	g.mu.Lock()
	category := Draw(WeightsFor(mode), g.rng.Float64())
	content := g.pickContent(set, mode, category)
	username := Usernames[g.rng.IntN(len(Usernames))]
	g.mu.Unlock()

	return Message{
		ID:        g.newID(),
		Username:  username,
		Content:   content,
		Timestamp: g.now().UnixMilli(),
		Category:  category,
	}
}

// counterpart maps the dominant bucket of one mode onto the other's, so a
// set generated for the other mode still answers the draw.
func counterpart(c phrase.Category) phrase.Category {
	switch c {
	case phrase.CategoryGameplay:
		return phrase.CategoryComments
	case phrase.CategoryComments:
		return phrase.CategoryGameplay
	}
	return c
}

// pickContent tries the drawn category, its counterpart, then the same two
// in the mode's fallback set. Callers hold g.mu.
func (g *Generator) pickContent(set phrase.Set, mode phrase.Mode, c phrase.Category) string {
	alt := counterpart(c)
	fb := phrase.Fallback(mode)
	for _, candidates := range [][]string{
		set.Phrases(c), set.Phrases(alt), fb.Phrases(c), fb.Phrases(alt),
	} {
		if len(candidates) > 0 {
			return candidates[g.rng.IntN(len(candidates))]
		}
	}
	// Unreachable while the fallback sets cover every drawable category.
	reactions := phrase.Fallback(phrase.ModeGame).Phrases(phrase.CategoryReactions)
	return reactions[g.rng.IntN(len(reactions))]
}
