// Package parser classifies player utterances into interaction kinds.
// Intentionally dumb: no NLP, just phrase matching.
package parser

import (
	"strings"
	"unicode"

	"github.com/nathoo/npcmind/types"
)

// Utterance is a classified line of player speech.
type Utterance struct {
	Kind     types.PlayerKind
	Strength float64
	Text     string
	Matched  string // phrase that decided the kind, empty for the fallback
}

// Empty reports whether there was nothing to classify.
func (u Utterance) Empty() bool {
	return u.Kind == ""
}

// commands are single-word shortcuts, mostly for scripted sessions.
var commands = map[string]types.PlayerKind{
	"gift":     types.PlayerGift,
	"praise":   types.PlayerPraise,
	"help":     types.PlayerHelp,
	"talk":     types.PlayerTalk,
	"insult":   types.PlayerInsult,
	"threaten": types.PlayerThreaten,
	"punch":    types.PlayerPunch,
	"steal":    types.PlayerTheft,
}

type rule struct {
	kind     types.PlayerKind
	strength float64
	phrases  []string
}

// rules are checked in order; the first phrase found wins. Threats come
// before insults so "i will hurt you, idiot" reads as a threat.
var rules = []rule{
	{types.PlayerThreaten, 1.0, []string{"kill you", "hurt you", "watch your back", "i'll end you", "i will end you", "you'll regret", "or else"}},
	{types.PlayerPunch, 1.0, []string{"punch you", "punches", "hit you", "slap you", "kick you", "shove you"}},
	{types.PlayerInsult, 1.0, []string{"idiot", "stupid", "useless", "pathetic", "fool", "worthless", "shut up"}},
	{types.PlayerTheft, 1.0, []string{"stole", "steal from", "pickpocket", "robbed", "took your", "snatched"}},
	{types.PlayerGift, 1.0, []string{"a gift", "for you", "take this", "present for", "brought you"}},
	{types.PlayerPraise, 0.8, []string{"thank you", "thanks", "good work", "well done", "proud of you", "you're amazing", "kind of you"}},
	{types.PlayerHelp, 0.7, []string{"help", "save", "heal", "protect", "cover me", "let me carry", "i can assist"}},
}

// talkStrength is used when nothing matched.
const talkStrength = 0.2

// Classify converts a raw utterance into a player interaction.
func Classify(input string) Utterance {
	input = strings.TrimSpace(input)
	if input == "" {
		return Utterance{}
	}

	words := normalize(input)
	if len(words) == 0 {
		return Utterance{Kind: types.PlayerTalk, Strength: talkStrength, Text: input}
	}

	// Single-word shortcut: bare "gift", "punch", etc.
	if len(words) == 1 {
		if kind, ok := commands[words[0]]; ok {
			return Utterance{Kind: kind, Strength: 1.0, Text: input, Matched: words[0]}
		}
	}

	padded := " " + strings.Join(words, " ") + " "
	for _, r := range rules {
		for _, p := range r.phrases {
			if strings.Contains(padded, " "+p+" ") {
				return Utterance{Kind: r.kind, Strength: r.strength, Text: input, Matched: p}
			}
		}
	}
	return Utterance{Kind: types.PlayerTalk, Strength: talkStrength, Text: input}
}

// normalize lowercases input and splits it into words, dropping punctuation
// other than apostrophes.
func normalize(input string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '\'':
			return unicode.ToLower(r)
		case r == '’':
			return '\''
		default:
			return ' '
		}
	}, input)
	return strings.Fields(cleaned)
}
