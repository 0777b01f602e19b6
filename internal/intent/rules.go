package intent

// Flag is the signal a keyword contributes to classification.
type Flag int

const (
	// FlagGenerate marks keywords that ask for a generated image.
	FlagGenerate Flag = iota + 1
	// FlagDescribe marks descriptive or personality questions; they veto FlagGenerate.
	FlagDescribe
	// FlagSpeech marks keywords that ask for a spoken reply.
	FlagSpeech
)

func (f Flag) String() string {
	switch f {
	case FlagGenerate:
		return "generate"
	case FlagDescribe:
		return "describe"
	case FlagSpeech:
		return "speech"
	default:
		return "unknown"
	}
}

// Rule maps a lower-case keyword to the flag it raises.
// Keywords match as substrings, not whole words.
type Rule struct {
	Keyword string
	Flag    Flag
}

// DefaultRules is the built-in keyword table (English and Roman Urdu).
var DefaultRules = []Rule{
	{"create", FlagGenerate},
	{"draw", FlagGenerate},
	{"generate", FlagGenerate},
	{"make a picture", FlagGenerate},
	{"make an image", FlagGenerate},
	{"make a photo", FlagGenerate},
	{"picture of", FlagGenerate},
	{"image of", FlagGenerate},
	{"photo of", FlagGenerate},
	{"paint", FlagGenerate},
	{"sketch", FlagGenerate},
	{"illustrate", FlagGenerate},
	{"tasveer", FlagGenerate},
	{"tasvir", FlagGenerate},
	{"banao", FlagGenerate},
	{"bana do", FlagGenerate},

	{"describe", FlagDescribe},
	{"what do you look like", FlagDescribe},
	{"how do you look", FlagDescribe},
	{"who are you", FlagDescribe},
	{"tell me about yourself", FlagDescribe},
	{"your personality", FlagDescribe},
	{"my personality", FlagDescribe},
	{"kaise dikhte", FlagDescribe},
	{"apne bare", FlagDescribe},
	{"shakhsiyat", FlagDescribe},

	{"speak", FlagSpeech},
	{"say it", FlagSpeech},
	{"read aloud", FlagSpeech},
	{"out loud", FlagSpeech},
	{"voice", FlagSpeech},
	{"bolo", FlagSpeech},
	{"bol kar", FlagSpeech},
	{"sunao", FlagSpeech},
	{"awaz", FlagSpeech},
}
