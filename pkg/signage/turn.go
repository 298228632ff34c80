package signage

import (
	"math"
	"strings"

	"github.com/teslashibe/go-wayfinder/pkg/detection"
	"github.com/teslashibe/go-wayfinder/pkg/perception"
	"github.com/teslashibe/go-wayfinder/pkg/textnorm"
)

// TurnType is the kind of navigation instruction.
type TurnType int

const (
	GoStraight TurnType = iota
	TurnLeft
	TurnRight
)

// String returns the instruction type name, used as the navigation cooldown key.
func (t TurnType) String() string {
	switch t {
	case GoStraight:
		return "go_straight"
	case TurnLeft:
		return "turn_left"
	case TurnRight:
		return "turn_right"
	default:
		return "unknown"
	}
}

// Instruction is a turn decision with a confidence in [0,1].
type Instruction struct {
	Type       TurnType
	Confidence float64
}

// InferTurn decides the turn from the sign's horizontal offset from the frame
// center, normalized to [-1,1].
func InferTurn(box detection.Box, frameWidth, threshold, hysteresis float64) Instruction {
	center := frameWidth / 2
	if center <= 0 {
		return Instruction{Type: GoStraight, Confidence: 1}
	}
	offset := (box.CenterX() - center) / center
	offset = math.Max(-1, math.Min(1, offset))

	switch {
	case offset > threshold+hysteresis:
		return Instruction{Type: TurnRight, Confidence: offset}
	case offset < -(threshold + hysteresis):
		return Instruction{Type: TurnLeft, Confidence: -offset}
	default:
		return Instruction{Type: GoStraight, Confidence: 1 - math.Abs(offset)}
	}
}

var (
	rightWords    = []string{"right", "derecha"}
	leftWords     = []string{"left", "izquierda"}
	straightWords = []string{"straight", "ahead", "recto", "frente"}
)

// OverrideFromText replaces the geometric instruction when the sign text
// carries an arrow or a direction word. Right wins over left, left over straight.
func OverrideFromText(raw string, fallback Instruction) Instruction {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	tokens := textnorm.TokenSet(raw)
	has := func(arrow string, words []string) bool {
		if strings.Contains(raw, arrow) {
			return true
		}
		for _, w := range words {
			if _, ok := tokens[w]; ok {
				return true
			}
		}
		return false
	}

	switch {
	case has("→", rightWords):
		return Instruction{Type: TurnRight, Confidence: 1}
	case has("←", leftWords):
		return Instruction{Type: TurnLeft, Confidence: 1}
	case has("↑", straightWords):
		return Instruction{Type: GoStraight, Confidence: 1}
	}
	return fallback
}

// FormatInstruction composes the spoken instruction, with urgency taken from
// the sign's distance bucket.
func FormatInstruction(inst Instruction, dist perception.Distance) string {
	var action string
	switch inst.Type {
	case TurnLeft:
		action = "turn left"
	case TurnRight:
		action = "turn right"
	default:
		action = "go straight"
	}

	switch dist {
	case perception.Near:
		return "Now, " + action + "."
	case perception.Mid:
		return "In a few meters, " + action + "."
	default:
		if inst.Type == GoStraight {
			return "Continue straight toward the sign."
		}
		return "Continue straight toward the sign, then " + action + "."
	}
}
