package perception

// SmoothingKey identifies one smoothed distance track.
type SmoothingKey struct {
	Label    string
	Position Position
}

type track struct {
	value float64
	warm  bool
}

// Smoother keeps an exponential moving average of distance per key.
// Tracks live for the session and are never removed.
type Smoother struct {
	alpha  float64
	tracks map[SmoothingKey]*track
}

// NewSmoother creates a smoother weighting the newest sample by alpha.
func NewSmoother(alpha float64) *Smoother {
	return &Smoother{
		alpha:  alpha,
		tracks: make(map[SmoothingKey]*track),
	}
}

// Update folds sample x into the track for key and returns the smoothed value.
// The first sample seeds the track.
func (s *Smoother) Update(key SmoothingKey, x float64) float64 {
	t, ok := s.tracks[key]
	if !ok {
		t = &track{}
		s.tracks[key] = t
	}
	if !t.warm {
		t.value = x
		t.warm = true
		return x
	}
	t.value = s.alpha*x + (1-s.alpha)*t.value
	return t.value
}

// Value returns the current smoothed value for key.
func (s *Smoother) Value(key SmoothingKey) (float64, bool) {
	t, ok := s.tracks[key]
	if !ok || !t.warm {
		return 0, false
	}
	return t.value, true
}

// Len returns the number of tracks.
func (s *Smoother) Len() int {
	return len(s.tracks)
}
