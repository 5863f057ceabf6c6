package chatgen

import "github.com/MrWong99/chatsim/internal/phrase"

// Weight is the probability mass of one category in a draw.
type Weight struct {
	Category phrase.Category
	Weight   float64
}

// GameWeights is the category distribution of game streams.
var GameWeights = []Weight{
	{phrase.CategoryGameplay, 0.4},
	{phrase.CategoryReactions, 0.3},
	{phrase.CategoryQuestions, 0.2},
	{phrase.CategoryEmotes, 0.1},
}

// JustChattingWeights is the category distribution of just-chatting streams.
var JustChattingWeights = []Weight{
	{phrase.CategoryComments, 0.45},
	{phrase.CategoryReactions, 0.25},
	{phrase.CategoryQuestions, 0.2},
	{phrase.CategoryEmotes, 0.1},
}

// WeightsFor returns the distribution of mode.
func WeightsFor(mode phrase.Mode) []Weight {
	if mode == phrase.ModeJustChatting {
		return JustChattingWeights
	}
	return GameWeights
}

// Draw maps r, uniform in [0,1), to a category: the first whose cumulative
// weight exceeds r. When rounding leaves r uncovered the first category is
// returned. Draw panics on an empty table.
func Draw(weights []Weight, r float64) phrase.Category {
	var sum float64
	for _, w := range weights {
		sum += w.Weight
		if r < sum {
			return w.Category
		}
	}
	return weights[0].Category
}
