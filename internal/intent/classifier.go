// Package intent decides which output modalities a message asks for.
package intent

import (
	"strings"

	"pkt.systems/companion/schema"
)

// Classifier maps message text to intent flags using a keyword table.
// It is safe for concurrent use.
type Classifier struct {
	generate []string
	describe []string
	speech   []string
}

// New builds a classifier from rules. Keywords are lower-cased; blank ones are dropped.
func New(rules []Rule) *Classifier {
	c := &Classifier{}
	for _, rule := range rules {
		keyword := strings.ToLower(strings.TrimSpace(rule.Keyword))
		if keyword == "" {
			continue
		}
		switch rule.Flag {
		case FlagGenerate:
			c.generate = append(c.generate, keyword)
		case FlagDescribe:
			c.describe = append(c.describe, keyword)
		case FlagSpeech:
			c.speech = append(c.speech, keyword)
		}
	}
	return c
}

// Default returns a classifier over DefaultRules.
func Default() *Classifier {
	return New(DefaultRules)
}

// WithExtra returns rules with the extra keywords appended under their flags.
func WithExtra(rules []Rule, generate, describe, speech []string) []Rule {
	out := make([]Rule, 0, len(rules)+len(generate)+len(describe)+len(speech))
	out = append(out, rules...)
	for _, kw := range generate {
		out = append(out, Rule{Keyword: kw, Flag: FlagGenerate})
	}
	for _, kw := range describe {
		out = append(out, Rule{Keyword: kw, Flag: FlagDescribe})
	}
	for _, kw := range speech {
		out = append(out, Rule{Keyword: kw, Flag: FlagSpeech})
	}
	return out
}

// Classify returns the intent flags for text.
// Descriptive keywords veto image generation; speech is decided independently.
func (c *Classifier) Classify(text string) schema.Intent {
	lower := strings.ToLower(text)
	return schema.Intent{
		WantsImage:  containsAny(lower, c.generate) && !containsAny(lower, c.describe),
		WantsSpeech: containsAny(lower, c.speech),
	}
}

// Classify uses the default keyword table.
func Classify(text string) schema.Intent {
	return defaultClassifier.Classify(text)
}

var defaultClassifier = Default()

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
