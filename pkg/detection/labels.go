package detection

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LabelTable maps synthetic class index references to label names.
//
// Detectors that only know class indices emit labels like "obj3" or "3".
// A nil or empty table passes every label through unchanged.
type LabelTable struct {
	names []string
}

// NewLabelTable creates a table from names in class-index order.
func NewLabelTable(names ...string) *LabelTable {
	out := make([]string, len(names))
	copy(out, names)
	return &LabelTable{names: out}
}

// ParseLabels reads one label per line. Blank lines are ignored.
func ParseLabels(r io.Reader) (*LabelTable, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("detection: read labels: %w", err)
	}
	return &LabelTable{names: names}, nil
}

// LoadLabels reads a label file from disk.
func LoadLabels(path string) (*LabelTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("detection: open labels: %w", err)
	}
	defer f.Close()
	return ParseLabels(f)
}

// Len returns the number of names in the table.
func (t *LabelTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// Name returns the label for class index i, or "obj<i>" when out of range.
func (t *LabelTable) Name(i int) string {
	if t != nil && i >= 0 && i < len(t.names) {
		return t.names[i]
	}
	return "obj" + strconv.Itoa(i)
}

// Resolve maps a raw label to its name. Labels that are not index references,
// or whose index is outside the table, are returned unchanged.
func (t *LabelTable) Resolve(raw string) string {
	if t.Len() == 0 {
		return raw
	}
	i, ok := classIndex(raw)
	if !ok || i >= len(t.names) {
		return raw
	}
	return t.names[i]
}

// ResolveAll returns a copy of dets with every label resolved.
func (t *LabelTable) ResolveAll(dets []Detection) []Detection {
	out := make([]Detection, len(dets))
	for i, d := range dets {
		d.Label = t.Resolve(d.Label)
		out[i] = d
	}
	return out
}

func classIndex(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "obj")
	if s == "" {
		return 0, false
	}
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}
