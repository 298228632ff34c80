package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

var (
	// ErrInvalidConfig is returned when a capture is opened or updated with a bad config.
	ErrInvalidConfig = errors.New("camera: invalid config")
	// ErrNoFrame is returned when the device produced no frame.
	ErrNoFrame = errors.New("camera: no frame")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("camera: closed")
)

// Frame is one captured frame, both as JPEG for the detector and decoded for
// sign crops.
type Frame struct {
	Seq    uint64
	JPEG   []byte
	Image  image.Image
	Width  int
	Height int
	At     time.Time
}

// Capture reads frames from an OpenCV video device.
type Capture struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	cfg    Config
	seq    uint64
	closed bool
	logger *slog.Logger
}

// Open opens the device named by cfg.Device and applies the capture settings.
func Open(cfg Config, logger *slog.Logger) (*Capture, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, errs)
	}
	if logger == nil {
		logger = slog.Default()
	}

	vc, err := openDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	c := &Capture{
		vc:     vc,
		mat:    gocv.NewMat(),
		cfg:    cfg,
		logger: logger.With("component", "camera"),
	}
	c.configure()
	c.logger.Info("camera opened", "device", cfg.Device, "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)
	return c, nil
}

// openDevice opens a numeric device index or a URL / path.
func openDevice(device string) (*gocv.VideoCapture, error) {
	var src interface{} = device
	if idx, err := strconv.Atoi(device); err == nil {
		src = idx
	}
	vc, err := gocv.OpenVideoCapture(src)
	if err != nil {
		return nil, fmt.Errorf("camera: open %q: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera: device %q not available", device)
	}
	return vc, nil
}

// configure pushes the size and rate settings to the driver. Drivers ignore
// what they cannot honor. Caller holds mu or owns c exclusively.
func (c *Capture) configure() {
	c.vc.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
	c.vc.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	c.vc.Set(gocv.VideoCaptureFPS, float64(c.cfg.Framerate))
	if c.cfg.Brightness != 0 {
		c.vc.Set(gocv.VideoCaptureBrightness, c.cfg.Brightness)
	}
}

// Config returns the active configuration.
func (c *Capture) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Apply switches to cfg, reopening the device when it changed. It is the
// ApplyFunc of the Manager serving a live device.
func (c *Capture) Apply(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, errs)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	if cfg.Device != c.cfg.Device {
		vc, err := openDevice(cfg.Device)
		if err != nil {
			return err
		}
		c.vc.Close()
		c.vc = vc
	}
	c.cfg = cfg
	c.configure()
	c.logger.Info("camera reconfigured", "device", cfg.Device, "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)
	return nil
}

// Read grabs one frame. Sequence numbers increase by one per frame returned.
func (c *Capture) Read() (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Frame{}, ErrClosed
	}

	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return Frame{}, ErrNoFrame
	}
	if c.cfg.Mirror {
		gocv.Flip(c.mat, &c.mat, 1)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, c.mat, []int{int(gocv.IMWriteJpegQuality), c.cfg.Quality})
	if err != nil {
		return Frame{}, fmt.Errorf("camera: encode: %w", err)
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	img, err := c.mat.ToImage()
	if err != nil {
		return Frame{}, fmt.Errorf("camera: convert: %w", err)
	}

	c.seq++
	return Frame{
		Seq:    c.seq,
		JPEG:   data,
		Image:  img,
		Width:  c.mat.Cols(),
		Height: c.mat.Rows(),
		At:     time.Now(),
	}, nil
}

// Run reads frames at the configured rate and hands each to fn until ctx is
// cancelled or the capture is closed. Individual read failures are logged and
// skipped.
func (c *Capture) Run(ctx context.Context, fn func(Frame)) error {
	interval := frameInterval(c.Config().Framerate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	misses := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		f, err := c.Read()
		switch {
		case errors.Is(err, ErrClosed):
			return nil
		case err != nil:
			misses++
			if misses == 1 || misses%50 == 0 {
				c.logger.Warn("frame read failed", "error", err, "misses", misses)
			}
			continue
		}
		misses = 0
		fn(f)

		if next := frameInterval(c.Config().Framerate); next != interval {
			interval = next
			ticker.Reset(interval)
		}
	}
}

func frameInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = 1
	}
	return time.Second / time.Duration(fps)
}

// Close releases the device.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.mat.Close()
	return c.vc.Close()
}
