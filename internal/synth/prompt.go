package synth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/chatsim/internal/phrase"
	"github.com/MrWong99/chatsim/pkg/provider/llm"
)

// Topic length bounds, in runes.
const (
	MinTopicLength    = 2
	MaxTopicLength    = 60
	MaxGameNameLength = 100
)

// Upper bounds on phrases kept per category. The prompts ask for the same
// amounts.
var categoryLimits = map[phrase.Category]int{
	phrase.CategoryGameplay:  50,
	phrase.CategoryComments:  50,
	phrase.CategoryReactions: 15,
	phrase.CategoryQuestions: 30,
	phrase.CategoryEmotes:    20,
}

// ValidateTopic checks a topic before any provider is involved. Game names
// only need to be non-blank. Just-chatting topics must also be 2 to 60
// characters long, not purely numeric and contain a letter or digit.
func ValidateTopic(topic string, mode phrase.Mode) error {
	t := strings.TrimSpace(topic)
	if t == "" {
		return fmt.Errorf("synth: %w: topic is required", ErrInvalidInput)
	}
	n := utf8.RuneCountInString(t)

	if mode != phrase.ModeJustChatting {
		if n > MaxGameNameLength {
			return fmt.Errorf("synth: %w: game name longer than %d characters", ErrInvalidInput, MaxGameNameLength)
		}
		return nil
	}

	if n < MinTopicLength || n > MaxTopicLength {
		return fmt.Errorf("synth: %w: topic must be between %d and %d characters", ErrInvalidInput, MinTopicLength, MaxTopicLength)
	}
	var digits, alnum int
	for _, r := range t {
		switch {
		case unicode.IsDigit(r):
			digits++
			alnum++
		case unicode.IsLetter(r):
			alnum++
		}
	}
	if digits == n {
		return fmt.Errorf("synth: %w: topic cannot be only numbers", ErrInvalidInput)
	}
	if alnum == 0 {
		return fmt.Errorf("synth: %w: topic must contain letters or numbers", ErrInvalidInput)
	}
	return nil
}

const gameSystemPrompt = `Eres un generador de comentarios de chat de Twitch/YouTube para streams de videojuegos.
Genera comentarios autenticos, variados y entretenidos que los espectadores escribirian durante un stream.

VALIDACION:
- Si el nombre recibido NO corresponde a un videojuego real y reconocible, responde UNICAMENTE con:
  {"error": "INVALID_GAME", "reason": "<explicacion breve>"}

REGLAS:
- Los comentarios deben ser cortos o medios (1-65 palabras maximo)
- Usa espanol casual y coloquial
- Incluye variedad: comentarios sobre gameplay, reacciones, preguntas y emotes
- Usa jerga de gamers y cultura de internet
- Incluye emotes populares como: 🤯, 🕹️, 😂, ❤️, 🥲, 🤬, 🤓
- Varia entre comentarios serios, graciosos, preguntas y reacciones
- NO repitas frases
- Adapta el contenido especificamente al juego mencionado`

const gameUserPrompt = `Genera comentarios de chat de Twitch para el videojuego: %q

Devuelve EXACTAMENTE este formato JSON (sin markdown, solo el JSON):
{
  "gameplay": ["frase1", "frase2", ... hasta 50 frases sobre gameplay/mecanicas],
  "reactions": ["frase1", "frase2", ... hasta 15 frases de reacciones cortas],
  "questions": ["frase1", "frase2", ... hasta 30 preguntas que haria el chat],
  "emotes": ["emote1", "emote2", ... hasta 20 emotes o mensajes de solo emotes]
}`

const chatSystemPrompt = `Eres un generador de comentarios de chat de Twitch/YouTube para streams de "Just Chatting",
donde el streamer conversa con su audiencia sobre un tema.

VALIDACION:
- Si el tema recibido no tiene sentido, es ofensivo o no es un tema de conversacion reconocible, responde UNICAMENTE con:
  {"error": "INVALID_TOPIC", "reason": "<explicacion breve>"}

REGLAS:
- Los comentarios deben ser cortos o medios (1-65 palabras maximo)
- Usa espanol casual y coloquial
- Incluye variedad: opiniones, reacciones, preguntas y emotes
- Incluye emotes populares como: 🤯, 😂, ❤️, 🥲, 🤓
- NO repitas frases
- Adapta el contenido especificamente al tema mencionado`

const chatUserPrompt = `Genera comentarios de chat de Twitch para una conversacion sobre el tema: %q

Devuelve EXACTAMENTE este formato JSON (sin markdown, solo el JSON):
{
  "comments": ["frase1", "frase2", ... hasta 50 comentarios u opiniones sobre el tema],
  "reactions": ["frase1", "frase2", ... hasta 15 frases de reacciones cortas],
  "questions": ["frase1", "frase2", ... hasta 30 preguntas que haria el chat],
  "emotes": ["emote1", "emote2", ... hasta 20 emotes o mensajes de solo emotes]
}`

// Prompts returns the system and user messages that ask a model for a
// phrase set about topic.
func Prompts(topic string, mode phrase.Mode) []llm.Message {
	system, user := gameSystemPrompt, gameUserPrompt
	if mode == phrase.ModeJustChatting {
		system, user = chatSystemPrompt, chatUserPrompt
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: fmt.Sprintf(user, strings.TrimSpace(topic))},
	}
}
