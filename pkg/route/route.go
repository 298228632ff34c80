// Package route resolves which terminal a rider must head toward on a single
// fixed transit line.
//
// The line is modeled as a totally ordered sequence of stations. It is never
// mutated after construction, so a Line is safe for concurrent use.
package route

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/teslashibe/go-wayfinder/pkg/textnorm"
)

// Sentinel errors.
var (
	// ErrStationNotFound is returned when a station name is not on the line.
	ErrStationNotFound = errors.New("route: station not found")

	// ErrEmptyLine is returned when a line is built without stations.
	ErrEmptyLine = errors.New("route: line has no stations")

	// ErrDuplicateStation is returned when two names normalize to the same key.
	ErrDuplicateStation = errors.New("route: duplicate station")
)

// StationError carries the name that failed to resolve.
type StationError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *StationError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Name)
}

// Unwrap returns the underlying error.
func (e *StationError) Unwrap() error {
	return e.Err
}

// Station is a named stop with its fixed position on the line.
type Station struct {
	Name  string
	Index int
}

// Heading is the coarse direction decision.
type Heading int

const (
	// HeadingArrived means origin and destination are the same station.
	HeadingArrived Heading = iota
	// HeadingTowardLast means ride toward the last station of the line.
	HeadingTowardLast
	// HeadingTowardFirst means ride toward the first station of the line.
	HeadingTowardFirst
)

// String returns the heading name.
func (h Heading) String() string {
	switch h {
	case HeadingArrived:
		return "arrived"
	case HeadingTowardLast:
		return "toward_last"
	case HeadingTowardFirst:
		return "toward_first"
	default:
		return "unknown"
	}
}

// Decision is the result of resolving an origin/destination pair.
type Decision struct {
	Heading  Heading
	Origin   Station
	Target   Station
	Terminal Station // zero when Heading is HeadingArrived
}

// String returns the spoken form of the decision.
func (d Decision) String() string {
	if d.Heading == HeadingArrived {
		return "already at destination"
	}
	return "head toward " + d.Terminal.Name
}

// Line is an ordered, immutable sequence of stations.
type Line struct {
	stations []Station
	index    map[string]int
}

// DefaultStations is Santiago Metro Line 6 from Cerrillos to Los Leones.
var DefaultStations = []string{
	"cerrillos",
	"lo valledor",
	"pac",
	"franklin",
	"biobío",
	"ñuble",
	"estadio nacional",
	"ñuñoa",
	"inés de suárez",
	"los leones",
}

// NewLine builds a line from station names in travel order.
func NewLine(names ...string) (*Line, error) {
	if len(names) == 0 {
		return nil, ErrEmptyLine
	}

	l := &Line{
		stations: make([]Station, 0, len(names)),
		index:    make(map[string]int, len(names)),
	}
	for i, name := range names {
		key := textnorm.Normalize(name)
		if key == "" {
			return nil, &StationError{Name: name, Err: ErrStationNotFound}
		}
		if _, dup := l.index[key]; dup {
			return nil, &StationError{Name: name, Err: ErrDuplicateStation}
		}
		l.index[key] = i
		l.stations = append(l.stations, Station{Name: strings.TrimSpace(name), Index: i})
	}
	return l, nil
}

// DefaultLine returns the built-in line.
func DefaultLine() *Line {
	l, err := NewLine(DefaultStations...)
	if err != nil {
		panic(err) // static data
	}
	return l
}

// Stations returns a copy of the station sequence.
func (l *Line) Stations() []Station {
	out := make([]Station, len(l.stations))
	copy(out, l.stations)
	return out
}

// Len returns the number of stations.
func (l *Line) Len() int {
	return len(l.stations)
}

// First returns the first terminal.
func (l *Line) First() Station {
	return l.stations[0]
}

// Last returns the last terminal.
func (l *Line) Last() Station {
	return l.stations[len(l.stations)-1]
}

// Lookup finds a station by name, ignoring case, accents and punctuation.
func (l *Line) Lookup(name string) (Station, bool) {
	i, ok := l.index[textnorm.Normalize(name)]
	if !ok {
		return Station{}, false
	}
	return l.stations[i], true
}

// Find returns the first station whose normalized name appears as a whole token
// sequence inside text. Used to recognize a station mentioned in free text.
func (l *Line) Find(text string) (Station, bool) {
	padded := " " + textnorm.Normalize(text) + " "
	for _, s := range l.stations {
		if strings.Contains(padded, " "+textnorm.Normalize(s.Name)+" ") {
			return s, true
		}
	}
	return Station{}, false
}

// Resolve decides which terminal to head toward to go from origin to destination.
func (l *Line) Resolve(origin, destination string) (Decision, error) {
	from, ok := l.Lookup(origin)
	if !ok {
		return Decision{}, &StationError{Name: origin, Err: ErrStationNotFound}
	}
	to, ok := l.Lookup(destination)
	if !ok {
		return Decision{}, &StationError{Name: destination, Err: ErrStationNotFound}
	}

	d := Decision{Origin: from, Target: to}
	switch {
	case from.Index == to.Index:
		d.Heading = HeadingArrived
	case from.Index < to.Index:
		d.Heading = HeadingTowardLast
		d.Terminal = l.Last()
	default:
		d.Heading = HeadingTowardFirst
		d.Terminal = l.First()
	}
	return d, nil
}

var titleCaser = cases.Title(language.Spanish)

// TitleCase capitalizes a station name for speech and display ("los leones" -> "Los Leones").
func TitleCase(name string) string {
	return titleCaser.String(name)
}
