package detection

import (
	"testing"
)

func TestBox_Geometry(t *testing.T) {
	tests := []struct {
		name    string
		box     Box
		expectW float64
		expectH float64
		expectX float64
		area    float64
	}{
		{
			name:    "door on the left",
			box:     Box{Left: 20, Top: 100, Right: 80, Bottom: 400},
			expectW: 60,
			expectH: 300,
			expectX: 50,
			area:    18000,
		},
		{
			name:    "full frame",
			box:     Box{Left: 0, Top: 0, Right: 640, Bottom: 640},
			expectW: 640,
			expectH: 640,
			expectX: 320,
			area:    640 * 640,
		},
		{
			name:    "degenerate",
			box:     Box{Left: 50, Top: 50, Right: 40, Bottom: 60},
			expectW: -10,
			expectH: 10,
			expectX: 45,
			area:    0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.box.Width(); got != tc.expectW {
				t.Errorf("Width: got %.1f, want %.1f", got, tc.expectW)
			}
			if got := tc.box.Height(); got != tc.expectH {
				t.Errorf("Height: got %.1f, want %.1f", got, tc.expectH)
			}
			if got := tc.box.CenterX(); got != tc.expectX {
				t.Errorf("CenterX: got %.1f, want %.1f", got, tc.expectX)
			}
			if got := tc.box.Area(); got != tc.area {
				t.Errorf("Area: got %.1f, want %.1f", got, tc.area)
			}
		})
	}
}

func TestDisplayLabel(t *testing.T) {
	tests := map[string]string{
		"escalera_meca":     "escalera meca",
		"senales-amarillas": "senales amarillas",
		"door":              "door",
		"  a__b ":           "a b",
	}
	for in, want := range tests {
		if got := DisplayLabel(in); got != want {
			t.Errorf("DisplayLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLargest(t *testing.T) {
	dets := []Detection{
		{Label: "small", Box: Box{Right: 10, Bottom: 10}},
		{Label: "big", Box: Box{Right: 100, Bottom: 100}},
		{Label: "medium", Box: Box{Right: 50, Bottom: 50}},
		{Label: "tiny", Box: Box{Right: 2, Bottom: 2}},
	}

	got := Largest(dets, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 detections, got %d", len(got))
	}
	want := []string{"big", "medium", "small"}
	for i, w := range want {
		if got[i].Label != w {
			t.Errorf("position %d: got %s, want %s", i, got[i].Label, w)
		}
	}
	if dets[0].Label != "small" {
		t.Error("input slice must not be reordered")
	}

	if Largest(nil, 3) != nil {
		t.Error("expected nil for no detections")
	}
	if len(Largest(dets, 10)) != 4 {
		t.Error("expected all detections when n exceeds length")
	}
}

func TestLetterbox(t *testing.T) {
	top, bottom, left, right := letterbox(1280, 720)
	if top != 280 || bottom != 280 || left != 0 || right != 0 {
		t.Errorf("landscape letterbox = %d %d %d %d", top, bottom, left, right)
	}
	top, bottom, left, right = letterbox(481, 480)
	if top+bottom != 1 || left != 0 || right != 0 {
		t.Errorf("odd letterbox = %d %d %d %d", top, bottom, left, right)
	}
	top, bottom, left, right = letterbox(480, 640)
	if left != 80 || right != 80 || top != 0 || bottom != 0 {
		t.Errorf("portrait letterbox = %d %d %d %d", top, bottom, left, right)
	}
}
