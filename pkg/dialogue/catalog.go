package dialogue

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-wayfinder/pkg/textnorm"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// ErrCatalog is returned when a command catalog cannot be read or parsed.
var ErrCatalog = errors.New("dialogue: invalid catalog")

// Entry is one voice command definition.
type Entry struct {
	// Phrases holds the phrase variants. Each element may itself hold several
	// variants separated by '|'.
	Phrases []string `yaml:"phrases" json:"phrases"`
	Intent  string   `yaml:"intent" json:"intent"`
	Object  string   `yaml:"object,omitempty" json:"object,omitempty"`
	Mode    string   `yaml:"mode,omitempty" json:"mode,omitempty"`
	Station string   `yaml:"station,omitempty" json:"station,omitempty"`

	variants [][]string
}

// Variants returns the normalized token list of every phrase variant.
func (e Entry) Variants() [][]string {
	return e.variants
}

// Matches reports whether every token of some variant is in tokens.
// Token order and contiguity are ignored.
func (e Entry) Matches(tokens map[string]struct{}) bool {
	for _, v := range e.variants {
		if textnorm.ContainsAll(tokens, v) {
			return true
		}
	}
	return false
}

func (e *Entry) compile() {
	e.variants = e.variants[:0]
	for _, p := range e.Phrases {
		for _, v := range strings.Split(p, "|") {
			if tokens := textnorm.Tokens(v); len(tokens) > 0 {
				e.variants = append(e.variants, tokens)
			}
		}
	}
}

// Catalog is an ordered list of commands. Earlier entries win.
type Catalog struct {
	entries []Entry
}

type catalogFile struct {
	Commands []Entry `yaml:"commands" json:"commands"`
}

// NewCatalog builds a catalog from entries in priority order.
func NewCatalog(entries ...Entry) *Catalog {
	c := &Catalog{entries: make([]Entry, len(entries))}
	for i, e := range entries {
		e.Phrases = append([]string(nil), e.Phrases...)
		e.variants = nil
		e.compile()
		c.entries[i] = e
	}
	return c
}

// ParseCatalog parses a YAML or JSON catalog of the form
// {"commands": [{"phrases": ["open camera|start camera"], "intent": "open_camera"}]}.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalog, err)
	}
	for i, e := range f.Commands {
		if strings.TrimSpace(e.Intent) == "" {
			return nil, fmt.Errorf("%w: command %d has no intent", ErrCatalog, i)
		}
	}
	return NewCatalog(f.Commands...), nil
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalog, err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the built-in English and Spanish catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(err) // embedded data
	}
	return c
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Entries returns a copy of the entries.
func (c *Catalog) Entries() []Entry {
	if c == nil {
		return nil
	}
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Match returns the first entry matching the utterance.
func (c *Catalog) Match(utterance string) (Entry, bool) {
	if c.Len() == 0 {
		return Entry{}, false
	}
	tokens := textnorm.TokenSet(utterance)
	for _, e := range c.entries {
		if e.Matches(tokens) {
			return e, true
		}
	}
	return Entry{}, false
}
