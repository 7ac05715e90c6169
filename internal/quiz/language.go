package quiz

import "golang.org/x/text/language"

// Language is an output language for generated questions.
type Language string

const (
	English  Language = "English"
	Telugu   Language = "Telugu"
	Hindi    Language = "Hindi"
	Urdu     Language = "Urdu"
	Tamil    Language = "Tamil"
	Kannada  Language = "Kannada"
	Odiya    Language = "Odiya"
	Sanskrit Language = "Sanskrit"
)

// Languages lists the supported languages; English comes first and is the
// fallback for negotiation.
var Languages = []Language{English, Telugu, Hindi, Urdu, Tamil, Kannada, Odiya, Sanskrit}

var languageTags = map[Language]language.Tag{
	English:  language.English,
	Telugu:   language.Make("te"),
	Hindi:    language.Hindi,
	Urdu:     language.Make("ur"),
	Tamil:    language.Make("ta"),
	Kannada:  language.Make("kn"),
	Odiya:    language.Make("or"),
	Sanskrit: language.Make("sa"),
}

var matcher = language.NewMatcher(supportedTags())

func supportedTags() []language.Tag {
	tags := make([]language.Tag, len(Languages))
	for i, l := range Languages {
		tags[i] = languageTags[l]
	}
	return tags
}

// Valid reports whether l is supported.
func (l Language) Valid() bool {
	_, ok := languageTags[l]
	return ok
}

// Tag returns the BCP 47 tag for l, or language.Und when unsupported.
func (l Language) Tag() language.Tag {
	if t, ok := languageTags[l]; ok {
		return t
	}
	return language.Und
}

// MatchLanguage picks the best supported language for an Accept-Language
// header value, falling back to English.
func MatchLanguage(acceptLanguage string) Language {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return English
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return English
	}
	return Languages[idx]
}
