package prompts

// Prompts holds all user-facing strings for a locale.
type Prompts struct {
	Welcome      string // first BOT message of every transcript
	LocationAck  string // BOT reply to the location turn
	InputHint    string // shown when the user submits blank input
	Busy         string // shown when a reply is still streaming
	ExchangeFail string // replaces a reply that failed in transport or parsing

	ConsoleBanner string
	ConsolePrompt string
	ConsoleBye    string
}

// Get returns prompts for the given locale. Unknown or empty locales fall back to English.
func Get(locale string) *Prompts {
	if p, ok := byLocale[locale]; ok {
		return p
	}
	return PromptsEN
}

var byLocale = map[string]*Prompts{
	"en": PromptsEN,
	"es": PromptsES,
}
