package chatgen

import (
	"context"
	"encoding/json"
	"math"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/chatsim/internal/phrase"
)

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestDraw_Frequencies(t *testing.T) {
	t.Parallel()

	weights := []Weight{{"a", 0.5}, {"b", 0.2}, {"c", 0.3}}
	rng := seeded()

	const n = 100_000
	counts := map[phrase.Category]int{}
	for range n {
		counts[Draw(weights, rng.Float64())]++
	}
	for _, w := range weights {
		got := float64(counts[w.Category]) / n
		if math.Abs(got-w.Weight) > 0.02 {
			t.Errorf("category %s frequency = %.4f, want %.2f ± 0.02", w.Category, got, w.Weight)
		}
	}
}

func TestDraw_Boundaries(t *testing.T) {
	t.Parallel()

	if got := Draw(GameWeights, 0); got != phrase.CategoryGameplay {
		t.Errorf("Draw(0) = %s, want gameplay", got)
	}
	if got := Draw(GameWeights, 0.4); got != phrase.CategoryReactions {
		t.Errorf("Draw(0.4) = %s, want reactions", got)
	}
	if got := Draw(GameWeights, 0.95); got != phrase.CategoryEmotes {
		t.Errorf("Draw(0.95) = %s, want emotes", got)
	}
	// Weights summing to less than one leave the tail to the first category.
	short := []Weight{{"x", 0.1}, {"y", 0.1}}
	if got := Draw(short, 0.9999); got != "x" {
		t.Errorf("Draw(uncovered) = %s, want x", got)
	}
}

func TestWeightsFor_SumToOne(t *testing.T) {
	t.Parallel()

	for _, m := range []phrase.Mode{phrase.ModeGame, phrase.ModeJustChatting} {
		var sum float64
		var cats []phrase.Category
		for _, w := range WeightsFor(m) {
			sum += w.Weight
			cats = append(cats, w.Category)
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("weights of %s sum to %v", m, sum)
		}
		if !slices.Equal(cats, m.Categories()) {
			t.Errorf("weights of %s cover %v, want %v", m, cats, m.Categories())
		}
	}
}

func TestGenerate_MessageShape(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1_700_000_000_123)
	g := New(phrase.NewMemStore(), WithRand(seeded()), WithClock(func() time.Time { return now }))

	msg := g.Generate(context.Background(), "hollow knight", phrase.ModeGame)
	if _, err := uuid.Parse(msg.ID); err != nil {
		t.Errorf("id %q is not a uuid: %v", msg.ID, err)
	}
	if msg.Timestamp != 1_700_000_000_123 {
		t.Errorf("timestamp = %d", msg.Timestamp)
	}
	if !slices.Contains(Usernames, msg.Username) {
		t.Errorf("username %q not in list", msg.Username)
	}

	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	if want := []string{"category", "content", "id", "timestamp", "username"}; !slices.Equal(keys, want) {
		t.Errorf("json keys = %v, want %v", keys, want)
	}
}

func TestGenerate_UniqueIDs(t *testing.T) {
	t.Parallel()

	g := New(phrase.NewMemStore(), WithRand(seeded()))
	seen := map[string]bool{}
	for range 500 {
		id := g.Generate(context.Background(), "x", phrase.ModeGame).ID
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestGenerate_EmptyCategoriesFallBack(t *testing.T) {
	t.Parallel()

	store := phrase.NewMemStore()
	store.Put("empty game", phrase.Set{
		phrase.CategoryGameplay:  {},
		phrase.CategoryReactions: {},
		phrase.CategoryQuestions: {},
		phrase.CategoryEmotes:    {},
	}, "u", phrase.ModeGame)
	g := New(store, WithRand(seeded()))

	for _, mode := range []phrase.Mode{phrase.ModeGame, phrase.ModeJustChatting} {
		for range 2000 {
			msg := g.Generate(context.Background(), "Empty Game", mode)
			if msg.Content == "" {
				t.Fatalf("empty content for category %s in mode %s", msg.Category, mode)
			}
		}
	}
}

func TestGenerate_CrossModeSetUsesCounterpart(t *testing.T) {
	t.Parallel()

	store := phrase.NewMemStore()
	store.Put("cocina", phrase.Set{
		phrase.CategoryComments:  {"comentario"},
		phrase.CategoryReactions: {"reaccion"},
		phrase.CategoryQuestions: {"pregunta"},
		phrase.CategoryEmotes:    {"emote"},
	}, "u", phrase.ModeJustChatting)
	g := New(store, WithRand(seeded()))

	allowed := []string{"comentario", "reaccion", "pregunta", "emote"}
	for range 1000 {
		msg := g.Generate(context.Background(), "cocina", phrase.ModeGame)
		if !slices.Contains(allowed, msg.Content) {
			t.Fatalf("content %q (category %s) did not come from the cached set", msg.Content, msg.Category)
		}
	}
}

func TestGenerate_UnknownTopicUsesFallback(t *testing.T) {
	t.Parallel()

	g := New(phrase.NewMemStore(), WithRand(seeded()))
	fb := phrase.Fallback(phrase.ModeJustChatting)

	for range 1000 {
		msg := g.Generate(context.Background(), "a topic nobody generated", phrase.ModeJustChatting)
		if !slices.Contains(fb.Phrases(msg.Category), msg.Content) {
			t.Fatalf("content %q not in fallback %s phrases", msg.Content, msg.Category)
		}
	}
}

func TestGenerate_MinecraftFromBuiltinTable(t *testing.T) {
	t.Parallel()

	store := phrase.NewMemStore()
	g := New(store, WithRand(seeded()))
	table, ok := phrase.Builtin("minecraft")
	if !ok {
		t.Fatal("no builtin minecraft table")
	}

	for range 2000 {
		msg := g.Generate(context.Background(), "Minecraft", phrase.ModeGame)
		if msg.Content == "" {
			t.Fatal("empty content")
		}
		if !slices.Contains(table.Phrases(msg.Category), msg.Content) {
			t.Fatalf("content %q not in minecraft %s table", msg.Content, msg.Category)
		}
	}
	if st := store.Stats(); st.Topics != 0 || st.Users != 0 {
		t.Errorf("Generate wrote to the store: %+v", st)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	t.Parallel()

	ids := func() func() string {
		n := 0
		return func() string { n++; return string(rune('a' + n)) }
	}
	clock := func() time.Time { return time.UnixMilli(0) }
	g1 := New(phrase.NewMemStore(), WithRand(seeded()), WithIDs(ids()), WithClock(clock))
	g2 := New(phrase.NewMemStore(), WithRand(seeded()), WithIDs(ids()), WithClock(clock))

	for range 50 {
		a := g1.Generate(context.Background(), "bg3", phrase.ModeGame)
		b := g2.Generate(context.Background(), "bg3", phrase.ModeGame)
		if a != b {
			t.Fatalf("same seed produced %+v and %+v", a, b)
		}
	}
}
