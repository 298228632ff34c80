package perception

import (
	"strings"

	"github.com/teslashibe/go-wayfinder/pkg/detection"
)

// Vocabulary maps model labels to spoken names and marks labels that are only
// worth announcing from far away.
type Vocabulary struct {
	names map[string]string
	quiet map[string]bool
}

// NewVocabulary creates a vocabulary from a label -> spoken name map and a
// list of quiet labels.
func NewVocabulary(names map[string]string, quiet ...string) *Vocabulary {
	v := &Vocabulary{
		names: make(map[string]string, len(names)),
		quiet: make(map[string]bool, len(quiet)),
	}
	for k, n := range names {
		v.names[strings.ToLower(k)] = n
	}
	for _, q := range quiet {
		v.quiet[strings.ToLower(q)] = true
	}
	return v
}

// DefaultVocabulary covers the metro station model classes.
func DefaultVocabulary() *Vocabulary {
	return NewVocabulary(map[string]string{
		"escalera_norm":     "stairs",
		"escalera_meca":     "stairs",
		"puerta":            "door",
		"torniquete":        "turnstile",
		"ascensor":          "elevator",
		"podo_circulo":      "tactile paving",
		"podo_linea":        "tactile paving",
		"senales_amarillas": "yellow sign",
		"senales_azules":    "blue sign",
		"senales_cafes":     "brown sign",
		"senales_rosas":     "pink sign",
		"senales_rojas":     "red sign",
		"senales_verdes":    "green sign",
	}, "podo_circulo", "podo_linea")
}

// Name returns the spoken name for label.
func (v *Vocabulary) Name(label string) string {
	if v != nil {
		if n, ok := v.names[strings.ToLower(label)]; ok {
			return n
		}
	}
	if n := detection.DisplayLabel(label); n != "" {
		return n
	}
	return "object"
}

// Quiet reports whether label is suppressed unless far away.
func (v *Vocabulary) Quiet(label string) bool {
	return v != nil && v.quiet[strings.ToLower(label)]
}

// Phrase formats r with its spoken name. Quiet labels produce an empty phrase
// unless the object is far.
func (v *Vocabulary) Phrase(r Result) string {
	if v.Quiet(r.Label) && r.Distance != Far {
		return ""
	}
	return formatPhrase(v.Name(r.Label), r)
}
