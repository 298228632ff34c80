package dialogue

import (
	"regexp"

	"github.com/teslashibe/go-wayfinder/pkg/textnorm"
)

// SlotKind tells what a slot pattern captures.
type SlotKind int

const (
	SlotDestination SlotKind = iota
	SlotOrigin
	SlotObject
)

// SlotPattern extracts a slot value from a normalized utterance.
// The value is the first capture group.
type SlotPattern struct {
	Name string
	Kind SlotKind
	Re   *regexp.Regexp
}

// pattern compiles expr against normalized text. Alternatives are anchored on
// word boundaries.
func pattern(name string, kind SlotKind, expr string) SlotPattern {
	return SlotPattern{Name: name, Kind: kind, Re: regexp.MustCompile(`\b(?:` + expr + `)`)}
}

// station words that may precede a station name.
const stationPrefix = `(?:(?:la|el|the) )?(?:(?:estacion|station) )?`

// StationPatterns are tried in order; the first match wins.
var StationPatterns = []SlotPattern{
	pattern("go to station", SlotDestination, `(?:go to (?:the )?station|ir a (?:la |el )?estacion) (.+)`),
	pattern("heading to station", SlotDestination, `(?:(?:heading|going) to (?:the )?station|voy a (?:la |el )?estacion) (.+)`),
	pattern("headed to", SlotDestination, `(?:(?:i m|im|i am) (?:headed|heading) to|me dirijo a) `+stationPrefix+`(.+)`),
	pattern("want to go to", SlotDestination, `(?:i want to go to|quiero ir a) `+stationPrefix+`(.+)`),
	pattern("destination", SlotDestination, `(?:destination|destino) (?:is |es )?`+stationPrefix+`(.+)`),
	pattern("i am at", SlotOrigin, `(?:i am at|i m at|im at|estoy en) `+stationPrefix+`(.+)`),
}

// ObjectPatterns extract the object of a search command.
var ObjectPatterns = []SlotPattern{
	pattern("search for", SlotObject, `(?:search for|look for|find|buscar|encontrar|encuentra|objetivo) (?:(?:a|an|the|la|el|una|un) )?(.+)`),
}

// Extract returns the value of the first pattern in table that matches the
// utterance, restricted to kinds when given.
func Extract(table []SlotPattern, utterance string, kinds ...SlotKind) (string, SlotPattern, bool) {
	text := textnorm.Normalize(utterance)
	if text == "" {
		return "", SlotPattern{}, false
	}
	for _, p := range table {
		if len(kinds) > 0 && !hasKind(kinds, p.Kind) {
			continue
		}
		m := p.Re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v := textnorm.TrimSlot(m[len(m)-1]); v != "" {
			return v, p, true
		}
	}
	return "", SlotPattern{}, false
}

func hasKind(kinds []SlotKind, k SlotKind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}
