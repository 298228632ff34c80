package textnorm

import (
	"strings"
	"testing"
	"unicode"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNormalizeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	text := gen.OneGenOf(
		gen.AlphaString(),
		gen.UnicodeString(unicode.Latin),
		gen.UnicodeString(unicode.Punct),
		gen.OneConstOf("¡Estación Los Leones!", "ÑUÑOA  ", "\tInés de Suárez.", "é\u0301", "Dirección a → PAC", "línea 6"),
	)

	properties.Property("Normalize is idempotent", prop.ForAll(
		func(s string) bool {
			once := Normalize(s)
			return Normalize(once) == once
		},
		text,
	))

	properties.Property("Normalize never has leading, trailing or double spaces", prop.ForAll(
		func(s string) bool {
			n := Normalize(s)
			return n == strings.TrimSpace(n) && !strings.Contains(n, "  ")
		},
		text,
	))

	properties.Property("Normalize output has no uppercase letters", prop.ForAll(
		func(s string) bool {
			for _, r := range Normalize(s) {
				if unicode.IsUpper(r) {
					return false
				}
			}
			return true
		},
		text,
	))

	properties.TestingRun(t)
}
