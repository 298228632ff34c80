// Package detection provides the labeled bounding boxes produced by the object
// detector once per frame, and the label table used to name them.
package detection

import "strings"

// ModelSize is the side of the square model coordinate space boxes are expressed in.
const ModelSize = 640

// Box is an axis-aligned rectangle in model space (0..ModelSize on each axis).
type Box struct {
	Left, Top, Right, Bottom float64
}

// Width returns the box width.
func (b Box) Width() float64 {
	return b.Right - b.Left
}

// Height returns the box height.
func (b Box) Height() float64 {
	return b.Bottom - b.Top
}

// CenterX returns the horizontal center of the box.
func (b Box) CenterX() float64 {
	return (b.Left + b.Right) / 2
}

// CenterY returns the vertical center of the box.
func (b Box) CenterY() float64 {
	return (b.Top + b.Bottom) / 2
}

// Area returns the area of the box, zero for degenerate boxes.
func (b Box) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Detection is one labeled box from a single frame.
type Detection struct {
	Label      string
	Confidence float64 // 0-1
	Box        Box
}

// Detector is the interface for object detection backends.
type Detector interface {
	// Detect finds objects in the JPEG image. Boxes are in model space.
	Detect(jpeg []byte) ([]Detection, error)

	// Close releases resources
	Close() error
}

// DisplayLabel converts a label into its spoken form: separators become spaces
// and whitespace is collapsed ("escalera_meca" -> "escalera meca").
func DisplayLabel(label string) string {
	r := strings.NewReplacer("_", " ", "-", " ")
	return strings.Join(strings.Fields(r.Replace(label)), " ")
}

// Largest returns up to n detections ordered by decreasing box area.
// The input slice is not modified.
func Largest(dets []Detection, n int) []Detection {
	if n <= 0 || len(dets) == 0 {
		return nil
	}
	out := make([]Detection, len(dets))
	copy(out, dets)
	// insertion sort; frames carry a handful of boxes
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Box.Area() > out[j-1].Box.Area(); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}
