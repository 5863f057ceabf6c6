package phrase_test

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/chatsim/internal/phrase"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Minecraft", "minecraft"},
		{"  Baldur's Gate 3  ", "baldur's gate 3"},
		{"\tRDR2\n", "rdr2"},
		{"", ""},
		{"ÉLDEN RING", "élden ring"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := phrase.Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_CaseAndSpaceInsensitive(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"Minecraft", " hollow knight ", "Stardew Valley", "just CHATTING"} {
		upper := fmt.Sprintf("  %s\t", strings.ToUpper(s))
		if phrase.Normalize(s) != phrase.Normalize(upper) {
			t.Errorf("Normalize(%q) != Normalize(%q)", s, upper)
		}
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    phrase.Mode
		wantErr bool
	}{
		{"", phrase.ModeGame, false},
		{"game", phrase.ModeGame, false},
		{"JustChatting", phrase.ModeJustChatting, false},
		{"irl", "", true},
	}
	for _, tt := range tests {
		got, err := phrase.ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSet_NormalizedEncodesArrays(t *testing.T) {
	t.Parallel()

	s := phrase.Set{phrase.CategoryGameplay: nil, phrase.CategoryReactions: {"XD"}}
	n := s.Normalized(phrase.ModeGame.Categories()...)

	b, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, c := range phrase.ModeGame.Categories() {
		if _, ok := decoded[string(c)].([]any); !ok {
			t.Errorf("category %q = %v, want JSON array", c, decoded[string(c)])
		}
	}
	if s[phrase.CategoryGameplay] != nil {
		t.Error("Normalized must not modify the receiver")
	}
}

func TestMemStore_PutGet(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := phrase.NewMemStore(phrase.WithClock(func() time.Time { return now }))

	if _, ok := s.Get("hollow knight"); ok {
		t.Fatal("Get on empty store returned ok")
	}

	set := phrase.Set{phrase.CategoryGameplay: {"Nice parry"}}
	s.Put("  Hollow Knight ", set, "user-1", phrase.ModeGame)

	got, ok := s.Get("HOLLOW KNIGHT")
	if !ok {
		t.Fatal("Get after Put returned !ok")
	}
	if !slices.Equal(got.Phrases(phrase.CategoryGameplay), []string{"Nice parry"}) {
		t.Errorf("gameplay = %v", got.Phrases(phrase.CategoryGameplay))
	}

	e, ok := s.Entry("hollow knight")
	if !ok {
		t.Fatal("Entry returned !ok")
	}
	if e.GeneratedBy != "user-1" || !e.GeneratedAt.Equal(now) || e.Mode != phrase.ModeGame {
		t.Errorf("entry = %+v", e)
	}

	// Mutating the caller's set afterwards must not leak into the cache.
	set[phrase.CategoryGameplay][0] = "changed"
	got, _ = s.Get("hollow knight")
	if got.Phrases(phrase.CategoryGameplay)[0] != "Nice parry" {
		t.Error("store shares backing array with caller")
	}
}

func TestMemStore_PutReplacesWholesale(t *testing.T) {
	t.Parallel()

	s := phrase.NewMemStore()
	s.Put("celeste", phrase.Set{phrase.CategoryGameplay: {"a"}, phrase.CategoryEmotes: {"b"}}, "u1", phrase.ModeGame)
	s.Put("celeste", phrase.Set{phrase.CategoryGameplay: {"c"}}, "u2", phrase.ModeGame)

	got, _ := s.Get("celeste")
	if _, ok := got[phrase.CategoryEmotes]; ok {
		t.Error("second Put should replace the whole set")
	}
	e, _ := s.Entry("celeste")
	if e.GeneratedBy != "u2" {
		t.Errorf("GeneratedBy = %q, want u2", e.GeneratedBy)
	}
}

func TestMemStore_QuotaLimit(t *testing.T) {
	t.Parallel()

	s := phrase.NewMemStore()
	for _, g := range []string{"a", "b", "c", "d"} {
		if !s.AddTopic("u", g) {
			t.Fatalf("AddTopic(%q) = false, want true", g)
		}
	}
	before := s.Topics("u")

	if s.AddTopic("u", "new") {
		t.Error("AddTopic beyond quota = true, want false")
	}
	if !slices.Equal(s.Topics("u"), before) {
		t.Errorf("Topics changed after rejected add: %v", s.Topics("u"))
	}

	if !s.AddTopic("u", " B ") {
		t.Error("AddTopic(existing) = false, want true")
	}
	if got := len(s.Topics("u")); got != 4 {
		t.Errorf("len(Topics) = %d, want 4", got)
	}
	if got := s.RemainingSlots("u"); got != 0 {
		t.Errorf("RemainingSlots = %d, want 0", got)
	}
}

func TestMemStore_RemainingSlotsNeverNegative(t *testing.T) {
	t.Parallel()

	s := phrase.NewMemStore(phrase.WithMaxTopics(3))
	for _, g := range []string{"a", "b", "c"} {
		s.AddTopic("u", g)
	}
	s.SetMaxTopics(1)

	if got := s.RemainingSlots("u"); got != 0 {
		t.Errorf("RemainingSlots = %d, want 0", got)
	}
	if got := len(s.Topics("u")); got != 3 {
		t.Errorf("lowering the limit shrank the ledger to %d", got)
	}
	if got := s.RemainingSlots("nobody"); got != 1 {
		t.Errorf("RemainingSlots(new user) = %d, want 1", got)
	}
}

func TestMemStore_HasTopicAndTopics(t *testing.T) {
	t.Parallel()

	s := phrase.NewMemStore()
	if s.HasTopic("u", "minecraft") {
		t.Error("HasTopic on empty ledger = true")
	}
	if got := s.Topics("u"); got == nil || len(got) != 0 {
		t.Errorf("Topics(unknown) = %#v, want empty non-nil slice", got)
	}

	s.AddTopic("u", "Minecraft")
	s.AddTopic("u", "Terraria")

	if !s.HasTopic("u", "MINECRAFT ") {
		t.Error("HasTopic should normalize its argument")
	}
	if want := []string{"minecraft", "terraria"}; !slices.Equal(s.Topics("u"), want) {
		t.Errorf("Topics = %v, want %v", s.Topics("u"), want)
	}
	if q, ok := s.Quota("u"); !ok || q.CreatedAt.IsZero() {
		t.Errorf("Quota = %+v, %v", q, ok)
	}
}

func TestMemStore_Stats(t *testing.T) {
	t.Parallel()

	s := phrase.NewMemStore()
	s.Put("zelda", phrase.Set{}, "u1", phrase.ModeGame)
	s.Put("celeste", phrase.Set{}, "u1", phrase.ModeGame)
	s.AddTopic("u1", "zelda")
	s.AddTopic("u2", "celeste")
	s.AddTopic("u3", "not cached yet")

	st := s.Stats()
	if st.Topics != 2 || st.Users != 3 {
		t.Errorf("Stats = %+v", st)
	}
	if want := []string{"celeste", "zelda"}; !slices.Equal(st.Keys, want) {
		t.Errorf("Keys = %v, want %v", st.Keys, want)
	}
}

func TestMemStore_ConcurrentAddTopic(t *testing.T) {
	t.Parallel()

	s := phrase.NewMemStore()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddTopic("u", fmt.Sprintf("game-%d", i))
			s.Put(fmt.Sprintf("game-%d", i), phrase.Set{}, "u", phrase.ModeGame)
		}()
	}
	wg.Wait()

	if got := len(s.Topics("u")); got != phrase.DefaultMaxTopicsPerUser {
		t.Errorf("len(Topics) = %d, want %d", got, phrase.DefaultMaxTopicsPerUser)
	}
}
