package phrase

// builtinSets are hand-written phrase sets for a few popular games. They
// serve streams for these topics without any AI generation.
var builtinSets = map[string]Set{
	"rdr2": {
		CategoryGameplay: {
			"Ese headshot estuvo limpio!",
			"Cuidado con los O'Driscolls",
			"Ya desbloqueaste el campamento completo?",
			"BOAH ese caballo esta epico",
			"F por el caballo",
			"Dutch tiene un plan... seguro",
			"Ese lasso fue perfecto",
			"Nice robbery!",
			"La punteria esta on fire",
			"Vas a subir o bajar el honor?",
			"Esa mision es de las mejores",
			"Arthur es el mejor protagonista",
			"Los graficos son una locura",
			"Ese campamento esta aesthetic",
			"Ya fuiste a Saint Denis?",
			"Momento cinematografico",
		},
		CategoryReactions: {
			"JAJAJA ese ragdoll",
			"XD",
			"LOL",
			"Clasico Rockstar",
			"No puede ser",
			"KEKW",
			"Brutal hermano",
			"LMAOOO",
			"Uff ese momento",
			"Increible",
			"Epico",
			"Me muero jajaja",
			"Ese bug es legendario",
		},
		CategoryQuestions: {
			"Honor alto o bajo?",
			"Que arma usas mas?",
			"Ya exploraste toda la zona?",
			"Cuantas horas llevas?",
			"Que capitulo vas?",
			"Customizaste tu caballo?",
			"Completaste todos los desafios?",
			"Encontraste algun easter egg?",
			"Ya hiciste todas las side quests?",
			"Que build estas usando?",
		},
		CategoryEmotes: {"🤠", "🐎", "PogChamp", "KEKW", "😂", "🔥"},
	},
	"bg3": {
		CategoryGameplay: {
			"Esa tirada critica salvo la party",
			"Romance con Shadowheart?",
			"Ese build esta roto jaja",
			"Multiclase o puro?",
			"Los dados estan bendiciendo hoy",
			"Natural 20! POG",
			"Ese spell combo fue 200 IQ",
			"Karlach best girl",
			"Esa decision tiene consecuencias",
			"Ya probaste hablar con los animales?",
			"Ese dialogo fue oro puro",
			"La historia es una obra de arte",
			"Astarion siendo Astarion",
			"Esa build es meta",
			"Gale y sus discursos jajaja",
			"Los graficos son insanos",
		},
		CategoryReactions: {
			"JAJAJA",
			"KEKW ese fail",
			"XD los dados te odian",
			"Brutal",
			"Epico",
			"LOL",
			"No puede ser",
			"Ese RNG",
			"Increible",
			"LMAO",
			"Uff que momento",
			"Clasico D&D",
			"Me encanta este juego",
		},
		CategoryQuestions: {
			"Que clase estas usando?",
			"Ya llegaste al acto 2?",
			"Con quien vas a hacer romance?",
			"Cuantos NPCs has matado?",
			"Que companion usas mas?",
			"Multiclase o puro?",
			"Completaste el acto 1?",
			"Que build recomiendas?",
			"Cuantas horas llevas?",
			"Salvaste a todos?",
		},
		CategoryEmotes: {"🎲", "🧙", "PogChamp", "LUL", "🤓", "❤️"},
	},
	"minecraft": {
		CategoryGameplay: {
			"Nice build!",
			"Ya encontraste diamantes?",
			"Cuidado con los creepers",
			"Esa redstone esta 200 IQ",
			"F por las cosas",
			"Modo survival o creativo?",
			"Ese diseno esta limpio",
			"Fortune III! POG",
			"Esa granja es eficiente",
			"Los shaders se ven increibles",
			"Ese es tu main world?",
			"Esa casa esta aesthetic",
			"Nice enchantments!",
			"El Nether da miedo",
			"Ese mob farm es genius",
			"La textura pack esta bonita",
		},
		CategoryReactions: {
			"JAJAJA",
			"XD",
			"LOL ese fail",
			"Clasico Minecraft",
			"No puede ser",
			"KEKW",
			"F",
			"RIP",
			"Brutal hermano",
			"Epico",
			"Ese creeper",
			"Me muero jajaja",
			"Uff que susto",
		},
		CategoryQuestions: {
			"Que version estas jugando?",
			"Vas a hacer granja automatica?",
			"Ya fuiste al Nether?",
			"Cuantos dias llevas?",
			"Usas mods?",
			"Tienes elytra ya?",
			"Que texture pack usas?",
			"Encontraste una mansion?",
			"Ya derrotaste al Ender Dragon?",
			"Cuantos diamantes tienes?",
		},
		CategoryEmotes: {"⛏️", "💎", "🟩", "PogChamp", "😱", "🕹️"},
	},
}

// aliases maps normalized topic names to a key of builtinSets.
var aliases = map[string]string{
	"red dead redemption 2": "rdr2",
	"rdr2":                  "rdr2",
	"red dead":              "rdr2",
	"baldur's gate 3":       "bg3",
	"baldurs gate 3":        "bg3",
	"bg3":                   "bg3",
	"minecraft":             "minecraft",
}

var gameFallback = Set{
	CategoryGameplay: {
		"Nice!",
		"GG",
		"Bien jugado",
		"Eso estuvo genial",
		"Que pro",
		"Increible",
		"Brutal",
	},
	CategoryReactions: {"JAJAJA", "XD", "LOL", "KEKW", "No puede ser"},
	CategoryQuestions: {"Cuantas horas llevas?", "Que tal el juego?", "Lo recomiendas?"},
	CategoryEmotes:    {"PogChamp", "LUL", "KEKW", "GG", "EZ"},
}

var justChattingFallback = Set{
	CategoryComments: {
		"Que buen tema",
		"Totalmente de acuerdo",
		"Interesante",
		"No lo habia pensado asi",
		"Buen punto",
		"Eso es muy cierto",
	},
	CategoryReactions: {"JAJAJA", "XD", "LOL", "KEKW", "No puede ser"},
	CategoryQuestions: {"Que opinas tu?", "Desde cuando te interesa?", "Lo recomiendas?"},
	CategoryEmotes:    {"PogChamp", "LUL", "KEKW", "❤️", "🤓"},
}

// Builtin returns the hand-written set registered under a normalized alias.
func Builtin(topic string) (Set, bool) {
	id, ok := aliases[Normalize(topic)]
	if !ok {
		return nil, false
	}
	s, ok := builtinSets[id]
	return s, ok
}

// Aliases returns every alias that resolves to a built-in set.
func Aliases() []string {
	out := make([]string, 0, len(aliases))
	for a := range aliases {
		out = append(out, a)
	}
	return out
}

// Fallback returns the generic phrase set for mode. Every category of mode
// has at least one phrase.
func Fallback(mode Mode) Set {
	if mode == ModeJustChatting {
		return justChattingFallback
	}
	return gameFallback
}
