package detection

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// ErrModelNotFound is returned when the ONNX model file does not exist.
var ErrModelNotFound = errors.New("detection: model file not found")

// YOLOConfig holds YOLO detector configuration
type YOLOConfig struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputSize        int // square model input side, also the output coordinate space
}

// DefaultYOLOConfig returns production defaults for a YOLOv8 export
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/metro.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputSize:        ModelSize,
	}
}

// YOLODetector runs a YOLOv8 ONNX model through OpenCV DNN.
//
// Frames are letterboxed into a centered square before inference, so output
// boxes live in the same square model space the signage cropper maps back from.
type YOLODetector struct {
	net    gocv.Net
	config YOLOConfig
	labels *LabelTable
	logger *slog.Logger
	mu     sync.Mutex
}

// NewYOLO creates a new YOLO object detector. labels may be nil, in which case
// detections are labeled "obj<N>".
func NewYOLO(cfg YOLOConfig, labels *LabelTable, logger *slog.Logger) (*YOLODetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = ModelSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("detection: failed to load YOLO model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLODetector{
		net:    net,
		config: cfg,
		labels: labels,
		logger: logger.With("component", "detection.yolo"),
	}, nil
}

// Detect finds objects in the JPEG image.
func (d *YOLODetector) Detect(jpeg []byte) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	square := gocv.NewMat()
	defer square.Close()
	top, bottom, left, right := letterbox(img.Cols(), img.Rows())
	gocv.CopyMakeBorder(img, &square, top, bottom, left, right, gocv.BorderConstant, color.RGBA{114, 114, 114, 0})

	size := image.Pt(d.config.InputSize, d.config.InputSize)
	blob := gocv.BlobFromImage(square, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	dets := d.parseOutput(output)
	if len(dets) > 0 {
		d.logger.Debug("objects detected", "count", len(dets))
	}
	return dets, nil
}

// letterbox returns the border needed to pad a w×h frame into a centered square.
func letterbox(w, h int) (top, bottom, left, right int) {
	switch {
	case w > h:
		pad := w - h
		return pad / 2, pad - pad/2, 0, 0
	case h > w:
		pad := h - w
		return 0, 0, pad / 2, pad - pad/2
	}
	return 0, 0, 0, 0
}

// parseOutput decodes a YOLOv8 output tensor shaped [1, 4+classes, anchors].
// Boxes stay in model input coordinates.
func (d *YOLODetector) parseOutput(output gocv.Mat) []Detection {
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil
	}
	cols := sizes[1] // 4 bbox + class scores
	rows := sizes[2] // anchors

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil
	}

	var (
		boxes       []image.Rectangle
		confidences []float32
		classIDs    []int
	)
	for i := 0; i < rows; i++ {
		maxScore := float32(0)
		maxClassID := 0
		for c := 4; c < cols; c++ {
			if score := data[c*rows+i]; score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}
		if maxScore < d.config.ConfidenceThresh {
			continue
		}

		cx := data[0*rows+i]
		cy := data[1*rows+i]
		w := data[2*rows+i]
		h := data[3*rows+i]

		boxes = append(boxes, image.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2)))
		confidences = append(confidences, maxScore)
		classIDs = append(classIDs, maxClassID)
	}

	if len(boxes) == 0 {
		return nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)

	limit := float64(d.config.InputSize)
	dets := make([]Detection, 0, len(indices))
	for _, idx := range indices {
		r := boxes[idx]
		dets = append(dets, Detection{
			Label:      d.labels.Name(classIDs[idx]),
			Confidence: float64(confidences[idx]),
			Box: Box{
				Left:   clamp(float64(r.Min.X), 0, limit),
				Top:    clamp(float64(r.Min.Y), 0, limit),
				Right:  clamp(float64(r.Max.X), 0, limit),
				Bottom: clamp(float64(r.Max.Y), 0, limit),
			},
		})
	}
	return dets
}

// Close releases the detector resources
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
