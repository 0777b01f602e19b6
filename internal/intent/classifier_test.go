package intent

import (
	"testing"

	"pkt.systems/companion/schema"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		text string
		want schema.Intent
	}{
		{"generation", "create a photo of a cat", schema.Intent{WantsImage: true}},
		{"descriptive-overrides", "describe what you would draw", schema.Intent{}},
		{"both-modalities", "speak and draw a sunset", schema.Intent{WantsImage: true, WantsSpeech: true}},
		{"plain", "how was your day?", schema.Intent{}},
		{"case-insensitive", "DRAW ME A DRAGON", schema.Intent{WantsImage: true}},
		{"substring-match", "can you redraw it", schema.Intent{WantsImage: true}},
		{"look-like-veto", "Create... no wait, what do you look like?", schema.Intent{}},
		{"speech-only", "read aloud a poem", schema.Intent{WantsSpeech: true}},
		{"speech-with-veto", "speak and describe yourself", schema.Intent{WantsSpeech: true}},
		{"roman-urdu-image", "ek billi ki tasveer banao", schema.Intent{WantsImage: true}},
		{"roman-urdu-speech", "mujhe kahani sunao", schema.Intent{WantsSpeech: true}},
		{"empty", "", schema.Intent{}},
	}
	for _, tc := range cases {
		if got := Classify(tc.text); got != tc.want {
			t.Fatalf("case %q: Classify(%q) = %+v, want %+v", tc.name, tc.text, got, tc.want)
		}
	}
}

func TestClassifySpeechIndependentOfImage(t *testing.T) {
	texts := []string{
		"speak",
		"speak and draw a sunset",
		"speak and describe what you would draw",
		"voice note please",
	}
	for _, text := range texts {
		if !Classify(text).WantsSpeech {
			t.Fatalf("expected speech for %q", text)
		}
	}
}

func TestEveryGenerationKeywordWithoutVeto(t *testing.T) {
	for _, rule := range DefaultRules {
		if rule.Flag != FlagGenerate {
			continue
		}
		got := Classify("please " + rule.Keyword + " something")
		if !got.WantsImage {
			t.Fatalf("keyword %q did not request an image", rule.Keyword)
		}
		vetoed := Classify("describe how you would " + rule.Keyword)
		if vetoed.WantsImage {
			t.Fatalf("keyword %q was not vetoed by describe", rule.Keyword)
		}
	}
}

func TestNewSkipsBlankKeywords(t *testing.T) {
	c := New([]Rule{{Keyword: "  ", Flag: FlagGenerate}, {Keyword: "Render", Flag: FlagGenerate}})
	if c.Classify("anything").WantsImage {
		t.Fatalf("blank keyword must not match everything")
	}
	if !c.Classify("please render this").WantsImage {
		t.Fatalf("expected lower-cased keyword to match")
	}
}

func TestWithExtra(t *testing.T) {
	rules := WithExtra(DefaultRules, []string{"dibujar"}, []string{"quien eres"}, []string{"habla"})
	c := New(rules)
	if !c.Classify("dibujar un gato").WantsImage {
		t.Fatalf("expected extra generation keyword to match")
	}
	if c.Classify("dibujar... quien eres").WantsImage {
		t.Fatalf("expected extra descriptive keyword to veto")
	}
	if !c.Classify("habla conmigo").WantsSpeech {
		t.Fatalf("expected extra speech keyword to match")
	}
	if len(DefaultRules) == len(rules) {
		t.Fatalf("expected extra rules to be appended")
	}
}
