// Package display contains the sinks the poll loop feeds: an in-memory
// viewer backing the preview page, a logging sink and a fan-out.
package display

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"cam-viewer/pkg/camera"
	"cam-viewer/pkg/types"
	imageutil "cam-viewer/pkg/utils/image"
)

const StartingMessage = "Starting..."

var ErrNoFrame = errors.New("display: no frame to show")

var (
	_ camera.Sink = (*Viewer)(nil)
	_ camera.Sink = (*LogSink)(nil)
	_ camera.Sink = Multi(nil)
)

// Viewer keeps what a preview window would show: the latest frame and a
// status line. It is written by the poll loop and read by HTTP handlers.
type Viewer struct {
	mu          sync.RWMutex
	frame       *types.Frame
	fps         float64
	status      string
	connected   bool
	frames      uint64
	failures    uint64
	outages     uint64
	lastFrameAt time.Time
}

func NewViewer() *Viewer {
	return &Viewer{status: StartingMessage}
}

func FPSLabel(fps float64) string {
	return fmt.Sprintf("FPS: %.1f", fps)
}

func (v *Viewer) OnFrame(frame *types.Frame, fps float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.frame = frame
	v.fps = fps
	v.status = FPSLabel(fps)
	v.connected = true
	v.frames++
	v.lastFrameAt = frame.CapturedAt
}

// OnDisconnected drops the frame so only the status text is shown.
func (v *Viewer) OnDisconnected(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.connected || v.outages == 0 {
		v.outages++
	}
	v.frame = nil
	v.status = msg
	v.connected = false
	v.failures++
}

type Snapshot struct {
	Connected   bool
	Status      string
	FPS         float64
	Frames      uint64
	Failures    uint64
	Outages     uint64
	LastFrameAt time.Time

	Width     int
	Height    int
	Format    string
	FrameSize int
}

func (v *Viewer) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	s := Snapshot{
		Connected:   v.connected,
		Status:      v.status,
		FPS:         v.fps,
		Frames:      v.frames,
		Failures:    v.failures,
		Outages:     v.outages,
		LastFrameAt: v.lastFrameAt,
	}
	if v.frame != nil {
		s.Width = v.frame.Width()
		s.Height = v.frame.Height()
		s.Format = v.frame.Format
		s.FrameSize = len(v.frame.Raw)
	}

	return s
}

// Render encodes the latest frame as JPEG, shrunk to fit a width x height
// viewport with the FPS readout drawn on top.
func (v *Viewer) Render(width, height, quality int) ([]byte, error) {
	v.mu.RLock()
	frame, label := v.frame, v.status
	v.mu.RUnlock()

	if frame == nil || frame.Image == nil {
		return nil, ErrNoFrame
	}
	img := imageutil.DrawLabel(imageutil.ResizeToFit(frame.Image, width, height), label)

	var buf bytes.Buffer
	if err := imageutil.EncodeJPEG(img, &buf, quality); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
